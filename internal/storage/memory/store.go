// Package memory is a process-local store for tests and the STORE=memory
// server mode. Transactions work on a private copy of the state that replaces
// the shared state on commit; writers are serialized.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

type state struct {
	bookings     map[string]domain.Booking
	reservations map[string]domain.Reservation
	jobcards     map[string]domain.JobCard
	reminders    map[string]domain.ReminderAttempt
	bays         map[string]bool
}

func newState() *state {
	return &state{
		bookings:     make(map[string]domain.Booking),
		reservations: make(map[string]domain.Reservation),
		jobcards:     make(map[string]domain.JobCard),
		reminders:    make(map[string]domain.ReminderAttempt),
		bays:         make(map[string]bool),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.jobcards {
		c.jobcards[k] = v
	}
	for k, v := range s.reminders {
		c.reminders[k] = v
	}
	for k, v := range s.bays {
		c.bays[k] = v
	}
	return c
}

type txKey struct{}

type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	cur     *state
}

func New() *Store {
	return &Store{cur: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	st := s.cur.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = st
	s.mu.Unlock()
	return nil
}

func txFromContext(ctx context.Context) *state {
	st, _ := ctx.Value(txKey{}).(*state)
	return st
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if st := txFromContext(ctx); st != nil {
		return fn(st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.cur)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		return fn(txFromContext(ctx))
	})
}

func (s *Store) CreateBooking(ctx context.Context, b domain.Booking) error {
	return s.write(ctx, func(st *state) error {
		if _, exists := st.bookings[b.ID]; exists {
			return fmt.Errorf("create booking %s: %w: duplicate id", b.ID, domain.ErrInvalidState)
		}
		b.Reminder = nil
		st.bookings[b.ID] = b
		return nil
	})
}

func (s *Store) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	var b domain.Booking
	err := s.read(ctx, func(st *state) error {
		var ok bool
		if b, ok = st.bookings[id]; !ok {
			return fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
		}
		b = st.withReminder(b)
		return nil
	})
	return b, err
}

// LockBooking reads the booking. Transactions are serialized, so a read
// inside one already excludes concurrent writers.
func (s *Store) LockBooking(ctx context.Context, id string) (domain.Booking, error) {
	return s.GetBooking(ctx, id)
}

func (s *Store) UpdateBooking(ctx context.Context, b domain.Booking) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.bookings[b.ID]; !ok {
			return fmt.Errorf("booking %s: %w", b.ID, domain.ErrNotFound)
		}
		b.Reminder = nil
		st.bookings[b.ID] = b
		return nil
	})
}

// ListBookings orders by window start, then id.
func (s *Store) ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	var out []domain.Booking
	err := s.read(ctx, func(st *state) error {
		for _, b := range st.bookings {
			if f.Match(b) {
				out = append(out, st.withReminder(b))
			}
		}
		return nil
	})
	sortBookings(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, err
}

func (s *Store) PutReservation(ctx context.Context, r domain.Reservation) error {
	return s.write(ctx, func(st *state) error {
		for id, other := range st.reservations {
			if id != r.BookingID && other.BayID == r.BayID && other.Window.Overlaps(r.Window) {
				return fmt.Errorf("reservation %s on bay %s overlaps %s: %w", r.BookingID, r.BayID, id, domain.ErrNoCapacity)
			}
		}
		st.reservations[r.BookingID] = r
		return nil
	})
}

func (s *Store) DeleteReservation(ctx context.Context, bookingID string) error {
	return s.write(ctx, func(st *state) error {
		delete(st.reservations, bookingID)
		return nil
	})
}

func (s *Store) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.reservations {
			out = append(out, r)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].BayID != out[j].BayID {
			return out[i].BayID < out[j].BayID
		}
		return out[i].Window.Start.Before(out[j].Window.Start)
	})
	return out, err
}

func (s *Store) ReservationsOn(ctx context.Context, bayID string, w domain.Window) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.reservations {
			if r.BayID == bayID && r.Window.Overlaps(w) {
				out = append(out, r)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Window.Start.Before(out[j].Window.Start) })
	return out, err
}

func (s *Store) PutReminder(ctx context.Context, r domain.ReminderAttempt) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.bookings[r.BookingID]; !ok {
			return fmt.Errorf("booking %s: %w", r.BookingID, domain.ErrNotFound)
		}
		if r.LastAttemptAt != nil {
			at := *r.LastAttemptAt
			r.LastAttemptAt = &at
		}
		st.reminders[r.BookingID] = r
		return nil
	})
}

func (s *Store) DueReminders(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	var out []domain.Booking
	err := s.read(ctx, func(st *state) error {
		for _, b := range st.bookings {
			if b.Status != domain.StatusConfirmed || !b.Window.Start.After(from) || b.Window.Start.After(to) {
				continue
			}
			if r, ok := st.reminders[b.ID]; ok && r.Terminal() {
				continue
			}
			out = append(out, st.withReminder(b))
		}
		return nil
	})
	sortBookings(out)
	return out, err
}

// ListReminders returns reminder records with the given status, or all when
// status is empty.
func (s *Store) ListReminders(ctx context.Context, status domain.ReminderStatus) ([]domain.ReminderAttempt, error) {
	var out []domain.ReminderAttempt
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.reminders {
			if status == "" || r.Status == status {
				out = append(out, r)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].BookingID < out[j].BookingID
	})
	return out, err
}

func (s *Store) EnsureBays(ctx context.Context, ids []string) error {
	return s.write(ctx, func(st *state) error {
		for _, id := range ids {
			if _, ok := st.bays[id]; !ok {
				st.bays[id] = true
			}
		}
		return nil
	})
}

func (s *Store) ListBays(ctx context.Context) ([]domain.Bay, error) {
	var out []domain.Bay
	err := s.read(ctx, func(st *state) error {
		for id, active := range st.bays {
			out = append(out, domain.Bay{ID: id, Active: active})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) GetBay(ctx context.Context, id string) (domain.Bay, error) {
	var b domain.Bay
	err := s.read(ctx, func(st *state) error {
		active, ok := st.bays[id]
		if !ok {
			return fmt.Errorf("bay %s: %w", id, domain.ErrNotFound)
		}
		b = domain.Bay{ID: id, Active: active}
		return nil
	})
	return b, err
}

func (s *Store) SetBayActive(ctx context.Context, id string, active bool) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.bays[id]; !ok {
			return fmt.Errorf("bay %s: %w", id, domain.ErrNotFound)
		}
		st.bays[id] = active
		return nil
	})
}

func (s *state) withReminder(b domain.Booking) domain.Booking {
	if r, ok := s.reminders[b.ID]; ok {
		b.Reminder = &r
	}
	return b
}

func sortBookings(bs []domain.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].Window.Start.Equal(bs[j].Window.Start) {
			return bs[i].Window.Start.Before(bs[j].Window.Start)
		}
		return bs[i].ID < bs[j].ID
	})
}
