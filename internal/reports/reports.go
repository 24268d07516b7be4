// Package reports answers read-only questions over booking history. Reads
// come from store snapshots and may trail in-flight transitions.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

type Store interface {
	ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error)
	ListJobCards(ctx context.Context, activeOnly bool) ([]domain.JobCard, error)
	ListReminders(ctx context.Context, status domain.ReminderStatus) ([]domain.ReminderAttempt, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// DailySummary covers bookings whose window starts on Date (UTC).
type DailySummary struct {
	Date               string         `json:"date"`
	TotalBookings      int            `json:"total_bookings"`
	ByStatus           map[string]int `json:"by_status"`
	Cancelled          int            `json:"cancelled"`
	InProgressJobs     int            `json:"in_progress_jobs"`
	CompletedJobs      int            `json:"completed_jobs"`
	Revenue            float64        `json:"revenue"`
	RemindersSent      int            `json:"reminders_sent"`
	RemindersExhausted int            `json:"reminders_exhausted"`
}

// Daily summarizes one calendar day. Completed jobs and revenue count job
// cards finished that day; in-progress jobs count every open card.
func (s *Service) Daily(ctx context.Context, day time.Time) (DailySummary, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	bs, err := s.store.ListBookings(ctx, domain.BookingFilter{From: from, To: to})
	if err != nil {
		return DailySummary{}, fmt.Errorf("daily summary: %w", err)
	}
	cards, err := s.store.ListJobCards(ctx, false)
	if err != nil {
		return DailySummary{}, fmt.Errorf("daily summary: %w", err)
	}

	sum := DailySummary{Date: from.Format("2006-01-02"), ByStatus: map[string]int{}}
	for _, b := range bs {
		sum.TotalBookings++
		sum.ByStatus[string(b.Status)]++
		if b.Status == domain.StatusCancelled {
			sum.Cancelled++
		}
		if b.Reminder != nil {
			switch b.Reminder.Status {
			case domain.ReminderSent:
				sum.RemindersSent++
			case domain.ReminderExhausted:
				sum.RemindersExhausted++
			}
		}
	}
	for _, c := range cards {
		if !c.Done() {
			sum.InProgressJobs++
			continue
		}
		if c.CompletedAt != nil && !c.CompletedAt.Before(from) && c.CompletedAt.Before(to) {
			sum.CompletedJobs++
			sum.Revenue += c.TotalCost
		}
	}
	return sum, nil
}

// ExhaustedReminders lists reminders that ran out of retries.
func (s *Service) ExhaustedReminders(ctx context.Context) ([]domain.ReminderAttempt, error) {
	return s.store.ListReminders(ctx, domain.ReminderExhausted)
}

func (s *Service) ActiveJobCards(ctx context.Context) ([]domain.JobCard, error) {
	return s.store.ListJobCards(ctx, true)
}
