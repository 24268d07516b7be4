package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/mq"
)

// DefaultPendingLease bounds how long a pending attempt blocks others when
// the policy leaves PendingLease unset.
const DefaultPendingLease = 2 * time.Minute

// ReminderPolicy is the delivery budget for one booking's reminder.
type ReminderPolicy struct {
	Lead          time.Duration
	RetryLimit    int
	RetryInterval time.Duration
	// PendingLease is how long a begun attempt stays exclusive. An attempt
	// still pending after that is presumed lost and may be begun again.
	PendingLease time.Duration
}

func (p ReminderPolicy) lease() time.Duration {
	if p.PendingLease > 0 {
		return p.PendingLease
	}
	return DefaultPendingLease
}

// DueReminders returns confirmed bookings starting within the lead time that
// still need a reminder. It reads a snapshot; BeginReminder re-checks.
func (s *Service) DueReminders(ctx context.Context, lead time.Duration) ([]domain.Booking, error) {
	now := s.clock.Now()
	due, err := s.store.DueReminders(ctx, now, now.Add(lead))
	if err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}
	return due, nil
}

// BeginReminder marks the booking's reminder pending and returns the booking
// if an attempt should be made now. ok is false when the booking left
// confirmed, the reminder is finished, the retry interval has not passed, or
// another attempt is pending and its lease has not expired. The pending record
// is the cross-process claim, written under the booking's row lock.
func (s *Service) BeginReminder(ctx context.Context, id string, p ReminderPolicy) (b domain.Booking, ok bool, err error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		b, err = s.store.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if b.Status != domain.StatusConfirmed || !b.Window.Start.After(now) {
			return nil
		}

		att := domain.ReminderAttempt{
			BookingID:   b.ID,
			ScheduledAt: b.Window.Start.Add(-p.Lead),
		}
		if b.Reminder != nil {
			att = *b.Reminder
		}
		switch {
		case att.Terminal(), att.Attempts >= p.RetryLimit:
			return nil
		case att.Status == domain.ReminderPending:
			if att.LastAttemptAt != nil && now.Before(att.LastAttemptAt.Add(p.lease())) {
				return nil
			}
		case now.Before(att.NextAttemptAt(p.RetryInterval)):
			return nil
		}

		att.Status = domain.ReminderPending
		att.LastAttemptAt = &now
		if err := s.store.PutReminder(ctx, att); err != nil {
			return err
		}
		b.Reminder = &att
		ok = true
		return nil
	})
	if err != nil {
		return domain.Booking{}, false, fmt.Errorf("begin reminder %s: %w", id, err)
	}
	return b, ok, nil
}

// RecordReminderOutcome closes the pending attempt. sendErr nil means the
// channel accepted the message; otherwise the attempt counts against the
// retry limit and becomes exhausted when the limit is reached.
func (s *Service) RecordReminderOutcome(ctx context.Context, id, messageID string, sendErr error, p ReminderPolicy) (domain.ReminderAttempt, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var (
		b        domain.Booking
		att      domain.ReminderAttempt
		finished bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.store.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		att = domain.ReminderAttempt{BookingID: b.ID, ScheduledAt: b.Window.Start.Add(-p.Lead)}
		if b.Reminder != nil {
			att = *b.Reminder
		}
		if att.Terminal() {
			finished = true
			return nil
		}

		now := s.clock.Now()
		att.Attempts++
		att.LastAttemptAt = &now
		switch {
		case sendErr == nil:
			att.Status = domain.ReminderSent
			att.MessageID = messageID
			att.LastError = ""
		case att.Attempts >= p.RetryLimit:
			att.Status = domain.ReminderExhausted
			att.LastError = sendErr.Error()
		default:
			att.Status = domain.ReminderFailed
			att.LastError = sendErr.Error()
		}
		return s.store.PutReminder(ctx, att)
	})
	if err != nil {
		return domain.ReminderAttempt{}, fmt.Errorf("record reminder %s: %w", id, err)
	}
	if finished {
		return att, nil
	}

	b.Reminder = &att
	switch att.Status {
	case domain.ReminderSent:
		s.publish(ctx, mq.ReminderSent, b, "")
	case domain.ReminderExhausted:
		s.publish(ctx, mq.ReminderExhausted, b, "")
	}
	return att, nil
}
