// Package bookings owns booking status. Every status change, reservation and
// reminder record goes through Service, serialized per booking id.
package bookings

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/icodeuridevice/AICarServiceAgent/internal/capacity"
	"github.com/icodeuridevice/AICarServiceAgent/internal/clock"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/keylock"
	"github.com/icodeuridevice/AICarServiceAgent/internal/mq"
)

const tracerName = "github.com/icodeuridevice/AICarServiceAgent/internal/bookings"

type Service struct {
	store    Store
	capacity *capacity.Engine
	locks    *keylock.Map
	clock    clock.Clock
	events   mq.Publisher
	tracer   trace.Tracer
	newID    func() string
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPublisher sets where lifecycle events go after each commit.
func WithPublisher(p mq.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(store Store, engine *capacity.Engine, opts ...Option) *Service {
	s := &Service{
		store:    store,
		capacity: engine,
		locks:    keylock.New(),
		clock:    clock.NewSystem(),
		events:   mq.Nop{},
		tracer:   otel.Tracer(tracerName),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadEngine builds the capacity engine for the configured bays from the
// persisted bay flags and reservations. The engine keeps store as its source,
// so commits made by other processes sharing the store are seen.
func LoadEngine(ctx context.Context, store Store, bayIDs []string, opts ...capacity.Option) (*capacity.Engine, error) {
	if err := store.EnsureBays(ctx, bayIDs); err != nil {
		return nil, fmt.Errorf("ensure bays: %w", err)
	}
	persisted, err := store.ListBays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bays: %w", err)
	}
	active := make(map[string]bool, len(persisted))
	for _, b := range persisted {
		active[b.ID] = b.Active
	}
	bays := make([]domain.Bay, 0, len(bayIDs))
	for _, id := range bayIDs {
		on, ok := active[id]
		bays = append(bays, domain.Bay{ID: id, Active: on || !ok})
	}

	engine := capacity.New(bays, append([]capacity.Option{capacity.WithSource(store)}, opts...)...)
	reservations, err := store.ListReservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	if err := engine.Load(reservations); err != nil {
		return nil, err
	}
	return engine, nil
}

type BookInput struct {
	CustomerRef string
	ServiceType string
	Window      domain.Window
	// Bays restricts the candidate pool; empty means all bays.
	Bays []string
}

func (in BookInput) validate() error {
	if strings.TrimSpace(in.CustomerRef) == "" {
		return fmt.Errorf("%w: customer ref required", domain.ErrInvalidState)
	}
	return in.Window.Validate()
}

// Book creates a booking and confirms it on a free bay in one step. Nothing is
// stored when no bay is free.
func (s *Service) Book(ctx context.Context, in BookInput) (domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.Book")
	defer span.End()

	if err := in.validate(); err != nil {
		return domain.Booking{}, fail(span, fmt.Errorf("book: %w", err))
	}
	now := s.clock.Now()
	b := domain.Booking{
		ID:          s.newID(),
		CustomerRef: in.CustomerRef,
		ServiceType: in.ServiceType,
		Window:      in.Window,
		Status:      domain.StatusConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	unlock := s.locks.Lock(b.ID)
	defer unlock()

	_, err := s.capacity.TryReserve(ctx, capacity.ReserveRequest{
		Bays:      in.Bays,
		Window:    in.Window,
		BookingID: b.ID,
		Commit: func(ctx context.Context, res domain.Reservation) error {
			b.BayID = res.BayID
			return s.store.WithTx(ctx, func(ctx context.Context) error {
				if err := s.store.CreateBooking(ctx, b); err != nil {
					return err
				}
				return s.store.PutReservation(ctx, res)
			})
		},
	})
	if err != nil {
		return domain.Booking{}, fail(span, fmt.Errorf("book: %w", err))
	}
	span.SetAttributes(attribute.String("booking.id", b.ID), attribute.String("bay.id", b.BayID))
	s.publish(ctx, mq.BookingConfirmed, b, "")
	return b, nil
}

// Request records a booking awaiting operator confirmation. No bay is held
// until Confirm succeeds.
func (s *Service) Request(ctx context.Context, in BookInput) (domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.Request")
	defer span.End()

	if err := in.validate(); err != nil {
		return domain.Booking{}, fail(span, fmt.Errorf("request: %w", err))
	}
	now := s.clock.Now()
	b := domain.Booking{
		ID:          s.newID(),
		CustomerRef: in.CustomerRef,
		ServiceType: in.ServiceType,
		Window:      in.Window,
		Status:      domain.StatusRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		return domain.Booking{}, fail(span, fmt.Errorf("request: %w", err))
	}
	s.publish(ctx, mq.BookingRequested, b, "")
	return b, nil
}

// Confirm moves a requested booking to confirmed on the lowest free bay.
func (s *Service) Confirm(ctx context.Context, id string, bays ...string) (domain.Booking, error) {
	return s.Transition(ctx, id, domain.StatusConfirmed, TransitionContext{Bays: bays})
}

func (s *Service) Get(ctx context.Context, id string) (domain.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("get booking %s: %w", id, err)
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	return s.store.ListBookings(ctx, f)
}

// Bays lists the configured bays with their persisted active flags.
func (s *Service) Bays(ctx context.Context) ([]domain.Bay, error) {
	persisted, err := s.store.ListBays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bays: %w", err)
	}
	active := make(map[string]bool, len(persisted))
	for _, b := range persisted {
		active[b.ID] = b.Active
	}
	out := s.capacity.Bays()
	for i := range out {
		if on, ok := active[out[i].ID]; ok {
			out[i].Active = on
		}
	}
	return out, nil
}

// Availability lists bays that could take the window right now.
func (s *Service) Availability(ctx context.Context, bays []string, w domain.Window) ([]string, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return s.capacity.Available(ctx, bays, w)
}

// Suggest lists alternative windows for w without reserving anything.
func (s *Service) Suggest(ctx context.Context, w domain.Window, n int) []domain.Suggestion {
	return s.capacity.Suggest(ctx, w, "", n)
}

func (s *Service) SetBayActive(ctx context.Context, id string, active bool) error {
	return s.capacity.SetActive(ctx, id, active, func(ctx context.Context) error {
		return s.store.SetBayActive(ctx, id, active)
	})
}

// Reservations is this process's cached view of the reservation table.
func (s *Service) Reservations() []domain.Reservation {
	return s.capacity.Snapshot()
}

func (s *Service) publish(ctx context.Context, key string, b domain.Booking, related string) {
	ev := mq.Event{
		Type:        key,
		BookingID:   b.ID,
		CustomerRef: b.CustomerRef,
		Status:      string(b.Status),
		BayID:       b.BayID,
		Start:       b.Window.Start,
		End:         b.Window.End,
		RelatedID:   related,
		At:          s.clock.Now(),
	}
	if b.Reminder != nil {
		ev.Attempts = b.Reminder.Attempts
		ev.Error = b.Reminder.LastError
	}
	if err := s.events.PublishJSON(ctx, key, ev); err != nil {
		log.Printf("bookings: publish %s for %s failed: %v", key, b.ID, err)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
