// Package capacity tracks bay occupancy over time and grants or releases
// reservations. Operations on one bay are serialized by that bay's lock;
// operations on different bays run independently.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/keylock"
)

const (
	defaultSlotStep        = 30 * time.Minute
	defaultHorizon         = 7 * 24 * time.Hour
	defaultSuggestionCount = 3
)

type bayState struct {
	active       bool
	reservations map[string]domain.Window // booking id -> window
}

// Engine is the in-process reservation table. Durability comes from the
// Commit hooks callers pass in. With a Source attached the table is a cache:
// every decision first re-reads the bay from the Source, so grants and
// releases committed by other processes are honored.
type Engine struct {
	locks  *keylock.Map
	ids    []string
	bays   map[string]*bayState
	source Source

	idxMu     sync.Mutex
	byBooking map[string]string

	slotStep    time.Duration
	horizon     time.Duration
	suggestions int
}

// Source is the durable reservation ledger shared by every process.
type Source interface {
	GetBay(ctx context.Context, id string) (domain.Bay, error)
	// ReservationsOn lists the reservations on bayID that overlap w.
	ReservationsOn(ctx context.Context, bayID string, w domain.Window) ([]domain.Reservation, error)
}

type Option func(*Engine)

func WithSource(src Source) Option {
	return func(e *Engine) { e.source = src }
}

// WithSlotStep sets the granularity used when searching for alternatives.
func WithSlotStep(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.slotStep = d
		}
	}
}

// WithHorizon bounds how far ahead alternatives are searched.
func WithHorizon(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.horizon = d
		}
	}
}

func WithSuggestionCount(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.suggestions = n
		}
	}
}

func New(bays []domain.Bay, opts ...Option) *Engine {
	e := &Engine{
		locks:       keylock.New(),
		bays:        make(map[string]*bayState, len(bays)),
		byBooking:   make(map[string]string),
		slotStep:    defaultSlotStep,
		horizon:     defaultHorizon,
		suggestions: defaultSuggestionCount,
	}
	for _, b := range bays {
		if _, dup := e.bays[b.ID]; dup || b.ID == "" {
			continue
		}
		e.bays[b.ID] = &bayState{active: b.Active, reservations: make(map[string]domain.Window)}
		e.ids = append(e.ids, b.ID)
	}
	sort.Strings(e.ids)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CommitFunc persists a grant or release. It runs while the affected bay
// locks are held; the in-memory table changes only when it returns nil.
type CommitFunc func(ctx context.Context, res domain.Reservation) error

type ReserveRequest struct {
	// Bays limits the candidate pool. Empty means every configured bay.
	Bays      []string
	Window    domain.Window
	BookingID string

	// ExcludeBookingID's reservation is ignored by the overlap test.
	ExcludeBookingID string
	// ReleaseExcluded drops the excluded booking's reservation in the same
	// critical section as the grant.
	ReleaseExcluded bool

	Commit CommitFunc
}

// TryReserve grants the lowest-id active bay with no overlapping reservation.
// When none qualifies it returns a *domain.NoCapacityError with alternatives.
func (e *Engine) TryReserve(ctx context.Context, req ReserveRequest) (domain.Reservation, error) {
	if err := req.Window.Validate(); err != nil {
		return domain.Reservation{}, err
	}
	if req.BookingID == "" {
		return domain.Reservation{}, fmt.Errorf("%w: booking id required", domain.ErrInvalidState)
	}
	if held, ok := e.BayOf(req.BookingID); ok && req.BookingID != req.ExcludeBookingID {
		return domain.Reservation{}, fmt.Errorf("%w: booking %s already holds bay %s", domain.ErrInvalidState, req.BookingID, held)
	}

	candidates, err := e.candidates(req.Bays)
	if err != nil {
		return domain.Reservation{}, err
	}

	for _, bay := range candidates {
		if err := ctx.Err(); err != nil {
			return domain.Reservation{}, err
		}
		res, granted, err := e.tryBay(ctx, bay, req)
		if err != nil {
			return domain.Reservation{}, err
		}
		if granted {
			return res, nil
		}
	}

	return domain.Reservation{}, &domain.NoCapacityError{
		Window:      req.Window,
		Suggestions: e.Suggest(ctx, req.Window, req.ExcludeBookingID, e.suggestions),
	}
}

func (e *Engine) tryBay(ctx context.Context, bay string, req ReserveRequest) (domain.Reservation, bool, error) {
	for {
		excludedBay, _ := e.BayOf(req.ExcludeBookingID)
		unlock := e.locks.LockAll(bay, excludedBay)

		// The excluded reservation may have moved between lookup and locking.
		if now, _ := e.BayOf(req.ExcludeBookingID); now != excludedBay {
			unlock()
			continue
		}

		if err := e.refreshLocked(ctx, bay, req.Window); err != nil {
			unlock()
			return domain.Reservation{}, false, err
		}
		st := e.bays[bay]
		if !st.active || st.conflicts(req.Window, req.ExcludeBookingID) {
			unlock()
			return domain.Reservation{}, false, nil
		}

		res := domain.Reservation{BookingID: req.BookingID, BayID: bay, Window: req.Window}
		if req.Commit != nil {
			if err := req.Commit(ctx, res); err != nil {
				if errors.Is(err, domain.ErrNoCapacity) {
					// Another process took the bay after the refresh.
					if rerr := e.refreshLocked(ctx, bay, req.Window); rerr != nil {
						log.Printf("capacity: refresh bay %s: %v", bay, rerr)
					}
					unlock()
					return domain.Reservation{}, false, nil
				}
				unlock()
				return domain.Reservation{}, false, err
			}
		}

		e.idxMu.Lock()
		if req.ReleaseExcluded {
			if held, ok := e.byBooking[req.ExcludeBookingID]; ok && (held == bay || held == excludedBay) {
				delete(e.bays[held].reservations, req.ExcludeBookingID)
				delete(e.byBooking, req.ExcludeBookingID)
			}
		}
		st.reservations[req.BookingID] = req.Window
		e.byBooking[req.BookingID] = bay
		e.idxMu.Unlock()

		unlock()
		return res, true, nil
	}
}

// refreshLocked replaces the cached view of bay within w with the Source's.
// The caller holds the bay lock. Reservations never change bay, so index
// entries pointing at another bay are left alone.
func (e *Engine) refreshLocked(ctx context.Context, bay string, w domain.Window) error {
	if e.source == nil {
		return nil
	}
	b, err := e.source.GetBay(ctx, bay)
	if err != nil {
		return fmt.Errorf("refresh bay %s: %w", bay, err)
	}
	rs, err := e.source.ReservationsOn(ctx, bay, w)
	if err != nil {
		return fmt.Errorf("refresh bay %s: %w", bay, err)
	}

	st := e.bays[bay]
	st.active = b.Active
	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	for id, other := range st.reservations {
		if !other.Overlaps(w) {
			continue
		}
		delete(st.reservations, id)
		if e.byBooking[id] == bay {
			delete(e.byBooking, id)
		}
	}
	for _, r := range rs {
		st.reservations[r.BookingID] = r.Window
		e.byBooking[r.BookingID] = bay
	}
	return nil
}

// Release frees whatever bay the booking holds. Releasing an unreserved
// booking is a no-op for the table, but commit still runs so callers can
// persist their own state change through the same path.
func (e *Engine) Release(ctx context.Context, bookingID string, commit CommitFunc) error {
	for {
		bay, held := e.BayOf(bookingID)
		if !held {
			if commit != nil {
				return commit(ctx, domain.Reservation{BookingID: bookingID})
			}
			return nil
		}

		unlock := e.locks.Lock(bay)
		if now, _ := e.BayOf(bookingID); now != bay {
			unlock()
			continue
		}

		st := e.bays[bay]
		res := domain.Reservation{BookingID: bookingID, BayID: bay, Window: st.reservations[bookingID]}
		if commit != nil {
			if err := commit(ctx, res); err != nil {
				unlock()
				return err
			}
		}

		e.idxMu.Lock()
		delete(st.reservations, bookingID)
		delete(e.byBooking, bookingID)
		e.idxMu.Unlock()

		unlock()
		return nil
	}
}

// BayOf returns the bay currently reserved for a booking.
func (e *Engine) BayOf(bookingID string) (string, bool) {
	if bookingID == "" {
		return "", false
	}
	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	bay, ok := e.byBooking[bookingID]
	return bay, ok
}

// Suggest lists up to n later windows of the same length that have a free
// active bay, stepping forward by the slot step until the horizon.
// A non-positive n uses the configured suggestion count. Suggestions are
// advisory, so a failed refresh falls back to the cached table.
func (e *Engine) Suggest(ctx context.Context, w domain.Window, excludeBookingID string, n int) []domain.Suggestion {
	if n <= 0 {
		n = e.suggestions
	}
	if e.source != nil {
		span := domain.Window{Start: w.Start.Add(e.slotStep), End: w.End.Add(e.horizon)}
		for _, bay := range e.ids {
			unlock := e.locks.Lock(bay)
			err := e.refreshLocked(ctx, bay, span)
			unlock()
			if err != nil {
				log.Printf("capacity: suggest: %v", err)
			}
		}
	}

	var out []domain.Suggestion
	for offset := e.slotStep; offset <= e.horizon && len(out) < n; offset += e.slotStep {
		cand := w.Shift(offset)
		for _, bay := range e.ids {
			if e.isFree(bay, cand, excludeBookingID) {
				out = append(out, domain.Suggestion{BayID: bay, Window: cand})
				break
			}
		}
	}
	return out
}

// Available reports whether any candidate bay could take the window right now.
func (e *Engine) Available(ctx context.Context, bays []string, w domain.Window) ([]string, error) {
	candidates, err := e.candidates(bays)
	if err != nil {
		return nil, err
	}
	var free []string
	for _, bay := range candidates {
		ok, err := e.freeNow(ctx, bay, w)
		if err != nil {
			return nil, err
		}
		if ok {
			free = append(free, bay)
		}
	}
	return free, nil
}

func (e *Engine) freeNow(ctx context.Context, bay string, w domain.Window) (bool, error) {
	unlock := e.locks.Lock(bay)
	defer unlock()
	if err := e.refreshLocked(ctx, bay, w); err != nil {
		return false, err
	}
	st := e.bays[bay]
	return st.active && !st.conflicts(w, ""), nil
}

func (e *Engine) isFree(bay string, w domain.Window, exclude string) bool {
	unlock := e.locks.Lock(bay)
	defer unlock()
	st := e.bays[bay]
	return st.active && !st.conflicts(w, exclude)
}

func (e *Engine) candidates(pool []string) ([]string, error) {
	if len(pool) == 0 {
		return e.ids, nil
	}
	out := make([]string, 0, len(pool))
	for _, id := range pool {
		if _, ok := e.bays[id]; !ok {
			return nil, fmt.Errorf("bay %q: %w", id, domain.ErrNotFound)
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *bayState) conflicts(w domain.Window, exclude string) bool {
	for id, other := range s.reservations {
		if id == exclude {
			continue
		}
		if w.Overlaps(other) {
			return true
		}
	}
	return false
}
