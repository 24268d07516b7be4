package bookings

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/icodeuridevice/AICarServiceAgent/internal/capacity"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/mq"
)

// TransitionContext carries what a transition's precondition needs.
type TransitionContext struct {
	// Bays limits the candidate pool when confirming.
	Bays []string
	// JobCard must be present for in_service and done for completed.
	JobCard *domain.JobCard
	// Apply runs inside the transition's transaction, after the status is set
	// on b and before b is written. An error aborts the whole transition.
	Apply func(ctx context.Context, b *domain.Booking) error
}

var eventKeys = map[domain.Status]string{
	domain.StatusConfirmed:   mq.BookingConfirmed,
	domain.StatusInService:   mq.BookingInService,
	domain.StatusCompleted:   mq.BookingCompleted,
	domain.StatusCancelled:   mq.BookingCancelled,
	domain.StatusRescheduled: mq.BookingRescheduled,
}

// Transition moves booking id to target. The booking is re-read under its
// lock, checked against the transition table, and the status change commits
// in the same transaction as its reservation side effect. That transaction
// locks the booking row and aborts if another process changed it meanwhile.
func (s *Service) Transition(ctx context.Context, id string, target domain.Status, tc TransitionContext) (domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.Transition")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", id), attribute.String("booking.target", string(target)))

	unlock := s.locks.Lock(id)
	defer unlock()

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, fail(span, fmt.Errorf("transition %s: %w", id, err))
	}
	out, err := s.transitionLocked(ctx, b, target, tc)
	if err != nil {
		return domain.Booking{}, fail(span, fmt.Errorf("transition %s: %w", id, err))
	}
	return out, nil
}

// transitionLocked expects the caller to hold b's lock.
func (s *Service) transitionLocked(ctx context.Context, b domain.Booking, target domain.Status, tc TransitionContext) (domain.Booking, error) {
	if !domain.CanTransition(b.Status, target) {
		return domain.Booking{}, &domain.TransitionError{From: b.Status, To: target}
	}

	next := b
	next.Status = target
	next.UpdatedAt = s.clock.Now()
	persist := func(ctx context.Context) error {
		if err := s.recheck(ctx, b); err != nil {
			return err
		}
		if tc.Apply != nil {
			if err := tc.Apply(ctx, &next); err != nil {
				return err
			}
		}
		return s.store.UpdateBooking(ctx, next)
	}

	var err error
	switch target {
	case domain.StatusConfirmed:
		_, err = s.capacity.TryReserve(ctx, capacity.ReserveRequest{
			Bays:      tc.Bays,
			Window:    b.Window,
			BookingID: b.ID,
			Commit: func(ctx context.Context, res domain.Reservation) error {
				next.BayID = res.BayID
				return s.store.WithTx(ctx, func(ctx context.Context) error {
					if err := persist(ctx); err != nil {
						return err
					}
					return s.store.PutReservation(ctx, res)
				})
			},
		})

	case domain.StatusInService:
		if tc.JobCard == nil || tc.JobCard.BookingID != b.ID {
			return domain.Booking{}, fmt.Errorf("%w: in_service requires an open job card", domain.ErrInvalidState)
		}
		err = s.store.WithTx(ctx, persist)

	case domain.StatusCompleted, domain.StatusCancelled:
		if target == domain.StatusCompleted && (tc.JobCard == nil || tc.JobCard.BookingID != b.ID || !tc.JobCard.Done()) {
			return domain.Booking{}, fmt.Errorf("%w: completion requires a finished job card", domain.ErrInvalidState)
		}
		err = s.capacity.Release(ctx, b.ID, func(ctx context.Context, _ domain.Reservation) error {
			return s.store.WithTx(ctx, func(ctx context.Context) error {
				if err := s.store.DeleteReservation(ctx, b.ID); err != nil {
					return err
				}
				return persist(ctx)
			})
		})

	default:
		return domain.Booking{}, fmt.Errorf("%w: %s is only reachable through Reschedule", domain.ErrInvalidState, target)
	}
	if err != nil {
		return domain.Booking{}, err
	}

	s.publish(ctx, eventKeys[target], next, "")
	return next, nil
}

// recheck locks b's row inside the current transaction and fails when b is no
// longer what is stored, which happens when another process committed a
// change after b was read.
func (s *Service) recheck(ctx context.Context, b domain.Booking) error {
	cur, err := s.store.LockBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	if cur.Status != b.Status || !cur.UpdatedAt.Equal(b.UpdatedAt) {
		return fmt.Errorf("%w: booking %s changed concurrently, now %s", domain.ErrInvalidState, b.ID, cur.Status)
	}
	return nil
}
