package bookings

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/icodeuridevice/AICarServiceAgent/internal/capacity"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/mq"
)

// Rescheduled pairs the retired booking with its replacement.
type Rescheduled struct {
	Old domain.Booking
	New domain.Booking
}

// Reschedule moves a requested or confirmed booking to a new window. The new
// bay is secured before the old reservation is dropped, and both bookings
// are written in one transaction. On no capacity the original is untouched.
func (s *Service) Reschedule(ctx context.Context, id string, w domain.Window) (Rescheduled, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.Reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", id))

	if err := w.Validate(); err != nil {
		return Rescheduled{}, fail(span, fmt.Errorf("reschedule %s: %w", id, err))
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	old, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return Rescheduled{}, fail(span, fmt.Errorf("reschedule %s: %w", id, err))
	}
	if old.Status != domain.StatusRequested && old.Status != domain.StatusConfirmed {
		return Rescheduled{}, fail(span, fmt.Errorf("reschedule %s: %w: booking is %s", id, domain.ErrInvalidState, old.Status))
	}
	if !domain.CanTransition(old.Status, domain.StatusRescheduled) {
		return Rescheduled{}, fail(span, &domain.TransitionError{From: old.Status, To: domain.StatusRescheduled})
	}

	now := s.clock.Now()
	nb := domain.Booking{
		ID:              s.newID(),
		CustomerRef:     old.CustomerRef,
		ServiceType:     old.ServiceType,
		Window:          w,
		Status:          domain.StatusConfirmed,
		RescheduledFrom: old.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	retired := old
	retired.Status = domain.StatusRescheduled
	retired.RescheduledTo = nb.ID
	retired.UpdatedAt = now

	_, err = s.capacity.TryReserve(ctx, capacity.ReserveRequest{
		Window:           w,
		BookingID:        nb.ID,
		ExcludeBookingID: old.ID,
		ReleaseExcluded:  true,
		Commit: func(ctx context.Context, res domain.Reservation) error {
			nb.BayID = res.BayID
			return s.store.WithTx(ctx, func(ctx context.Context) error {
				if err := s.recheck(ctx, old); err != nil {
					return err
				}
				// The old row goes first so a same-bay overlap never trips the
				// database exclusion constraint mid-transaction.
				if err := s.store.DeleteReservation(ctx, old.ID); err != nil {
					return err
				}
				if err := s.store.UpdateBooking(ctx, retired); err != nil {
					return err
				}
				if err := s.store.CreateBooking(ctx, nb); err != nil {
					return err
				}
				return s.store.PutReservation(ctx, res)
			})
		},
	})
	if err != nil {
		return Rescheduled{}, fail(span, fmt.Errorf("reschedule %s: %w", id, err))
	}

	s.publish(ctx, mq.BookingRescheduled, retired, nb.ID)
	s.publish(ctx, mq.BookingConfirmed, nb, old.ID)
	return Rescheduled{Old: retired, New: nb}, nil
}

// Cancel releases the booking's bay and marks it cancelled. Cancelling a
// cancelled booking returns it unchanged.
func (s *Service) Cancel(ctx context.Context, id string) (domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", id))

	unlock := s.locks.Lock(id)
	defer unlock()

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, fail(span, fmt.Errorf("cancel %s: %w", id, err))
	}
	switch b.Status {
	case domain.StatusCancelled:
		return b, nil
	case domain.StatusInService:
		return domain.Booking{}, fail(span, fmt.Errorf("cancel %s: %w: service already started: %w",
			id, domain.ErrInvalidState, &domain.TransitionError{From: b.Status, To: domain.StatusCancelled}))
	case domain.StatusCompleted, domain.StatusRescheduled:
		return domain.Booking{}, fail(span, fmt.Errorf("cancel %s: %w: booking is %s", id, domain.ErrInvalidState, b.Status))
	}

	out, err := s.transitionLocked(ctx, b, domain.StatusCancelled, TransitionContext{})
	if err != nil {
		return domain.Booking{}, fail(span, fmt.Errorf("cancel %s: %w", id, err))
	}
	return out, nil
}
