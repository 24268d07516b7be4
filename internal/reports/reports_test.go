package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/storage/memory"
)

func TestDaily(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	add := func(id string, status domain.Status, at time.Time) {
		require.NoError(t, store.CreateBooking(ctx, domain.Booking{
			ID: id, CustomerRef: "c", Status: status, Window: domain.NewWindow(at, time.Hour),
		}))
	}
	add("b1", domain.StatusCompleted, day.Add(9*time.Hour))
	add("b2", domain.StatusCancelled, day.Add(10*time.Hour))
	add("b3", domain.StatusInService, day.Add(11*time.Hour))
	add("b4", domain.StatusConfirmed, day.Add(12*time.Hour))
	add("other-day", domain.StatusConfirmed, day.Add(30*time.Hour))

	done := day.Add(10 * time.Hour)
	require.NoError(t, store.CreateJobCard(ctx, domain.JobCard{ID: "j1", BookingID: "b1", Status: domain.JobCardDone, TotalCost: 80, StartedAt: day, CompletedAt: &done}))
	require.NoError(t, store.CreateJobCard(ctx, domain.JobCard{ID: "j3", BookingID: "b3", Status: domain.JobCardInProgress, StartedAt: day}))
	require.NoError(t, store.PutReminder(ctx, domain.ReminderAttempt{BookingID: "b4", Status: domain.ReminderExhausted, Attempts: 3}))
	require.NoError(t, store.PutReminder(ctx, domain.ReminderAttempt{BookingID: "b1", Status: domain.ReminderSent, Attempts: 1}))

	svc := NewService(store)
	sum, err := svc.Daily(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, DailySummary{
		Date:          "2025-06-02",
		TotalBookings: 4,
		ByStatus: map[string]int{
			"completed": 1, "cancelled": 1, "in_service": 1, "confirmed": 1,
		},
		Cancelled:          1,
		InProgressJobs:     1,
		CompletedJobs:      1,
		Revenue:            80,
		RemindersSent:      1,
		RemindersExhausted: 1,
	}, sum)

	ex, err := svc.ExhaustedReminders(ctx)
	require.NoError(t, err)
	require.Len(t, ex, 1)
	assert.Equal(t, "b4", ex[0].BookingID)

	active, err := svc.ActiveJobCards(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "j3", active[0].ID)
}
