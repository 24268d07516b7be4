package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/bookings"
	"github.com/icodeuridevice/AICarServiceAgent/internal/channel"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

// Scheduler polls for bookings due a reminder and sends them through the
// channel, recording each outcome on the booking.
type Scheduler struct {
	Bookings    *bookings.Service
	Sender      channel.Sender
	Marker      Marker
	Interval    time.Duration
	SendTimeout time.Duration
	Policy      bookings.ReminderPolicy

	wg sync.WaitGroup
}

// Stats counts what one sweep did.
type Stats struct {
	Due       int
	Sent      int
	Failed    int
	Exhausted int
	Skipped   int
}

type outcome int

const (
	skipped outcome = iota
	sent
	failed
	exhausted
)

func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	// kick immediately
	s.tick(ctx, &s.wg, nil)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-t.C:
			s.tick(ctx, &s.wg, nil)
		}
	}
}

// SweepOnce runs a single sweep and waits for its dispatches to finish.
func (s *Scheduler) SweepOnce(ctx context.Context) (Stats, error) {
	due, err := s.due(ctx)
	if err != nil {
		return Stats{}, err
	}

	var (
		wg     sync.WaitGroup
		counts [4]atomic.Int64
	)
	s.dispatchAll(ctx, &wg, due, &counts)
	wg.Wait()

	return Stats{
		Due:       len(due),
		Skipped:   int(counts[skipped].Load()),
		Sent:      int(counts[sent].Load()),
		Failed:    int(counts[failed].Load()),
		Exhausted: int(counts[exhausted].Load()),
	}, nil
}

func (s *Scheduler) tick(ctx context.Context, wg *sync.WaitGroup, counts *[4]atomic.Int64) {
	due, err := s.due(ctx)
	if err != nil {
		log.Printf("scheduler: due reminders query failed: %v", err)
		return
	}
	s.dispatchAll(ctx, wg, due, counts)
}

func (s *Scheduler) due(ctx context.Context) ([]domain.Booking, error) {
	return s.Bookings.DueReminders(ctx, s.Policy.Lead)
}

func (s *Scheduler) dispatchAll(ctx context.Context, wg *sync.WaitGroup, due []domain.Booking, counts *[4]atomic.Int64) {
	for _, b := range due {
		id := b.ID
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := s.dispatch(ctx, id)
			if counts != nil {
				counts[o].Add(1)
			}
		}()
	}
}

func (s *Scheduler) dispatch(ctx context.Context, bookingID string) outcome {
	held, err := s.Marker.Acquire(ctx, bookingID, s.markerTTL())
	if err != nil {
		log.Printf("scheduler: marker for %s: %v", bookingID, err)
		return skipped
	}
	if !held {
		return skipped
	}
	defer func() {
		if err := s.Marker.Release(context.WithoutCancel(ctx), bookingID); err != nil {
			log.Printf("scheduler: release marker for %s: %v", bookingID, err)
		}
	}()

	policy := s.policy()
	b, ok, err := s.Bookings.BeginReminder(ctx, bookingID, policy)
	if err != nil {
		log.Printf("scheduler: begin reminder for %s: %v", bookingID, err)
		return skipped
	}
	if !ok {
		return skipped
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.SendTimeout)
	rc, sendErr := s.Sender.SendReminder(sendCtx, b.CustomerRef, b.Summary())
	cancel()
	if sendErr != nil {
		sendErr = fmt.Errorf("%w: %w", domain.ErrDeliveryFailure, sendErr)
	}

	// The outcome is recorded even when shutdown cancelled ctx mid-send.
	att, err := s.Bookings.RecordReminderOutcome(context.WithoutCancel(ctx), bookingID, rc.MessageID, sendErr, policy)
	if err != nil {
		log.Printf("scheduler: record reminder for %s: %v", bookingID, err)
		return skipped
	}

	switch att.Status {
	case domain.ReminderSent:
		return sent
	case domain.ReminderExhausted:
		log.Printf("scheduler: reminder for %s: %v after %d attempts: %s", bookingID, domain.ErrDeliveryExhausted, att.Attempts, att.LastError)
		return exhausted
	default:
		if errors.Is(sendErr, context.DeadlineExceeded) {
			log.Printf("scheduler: reminder for %s timed out (attempt %d)", bookingID, att.Attempts)
		} else {
			log.Printf("scheduler: reminder for %s failed (attempt %d): %v", bookingID, att.Attempts, sendErr)
		}
		return failed
	}
}

func (s *Scheduler) markerTTL() time.Duration {
	return 2*s.SendTimeout + 30*time.Second
}

// policy fills in the pending lease so a stored pending attempt outlives the
// marker of the process that began it.
func (s *Scheduler) policy() bookings.ReminderPolicy {
	p := s.Policy
	if p.PendingLease <= 0 {
		p.PendingLease = s.markerTTL()
	}
	return p
}
