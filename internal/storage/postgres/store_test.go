package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icodeuridevice/AICarServiceAgent/internal/bookings"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/jobcards"
	"github.com/icodeuridevice/AICarServiceAgent/internal/testutil"
)

var nine = time.Date(2031, 6, 2, 9, 0, 0, 0, time.UTC)

func TestStoreLifecycle(t *testing.T) {
	d := testutil.NewTestDB(t)
	store := New(d)
	ctx := context.Background()

	engine, err := bookings.LoadEngine(ctx, store, []string{"A", "B"})
	require.NoError(t, err)
	svc := bookings.NewService(store, engine)
	cards := jobcards.NewService(store, svc)

	b, err := svc.Book(ctx, bookings.BookInput{CustomerRef: "c1", ServiceType: "oil change", Window: domain.NewWindow(nine, time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "A", b.BayID)

	got, err := store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Window, got.Window)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Nil(t, got.Reminder)

	moved, err := svc.Reschedule(ctx, b.ID, domain.NewWindow(nine, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "A", moved.New.BayID)
	old, err := store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, moved.New.ID, old.RescheduledTo)

	card, err := cards.Open(ctx, moved.New.ID, "Ravi")
	require.NoError(t, err)
	cost := 99.5
	_, err = cards.Update(ctx, card.ID, jobcards.Patch{TotalCost: &cost})
	require.NoError(t, err)
	card, err = cards.Complete(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 99.5, card.TotalCost)

	rs, err := store.ListReservations(ctx)
	require.NoError(t, err)
	assert.Empty(t, rs)

	// a restart sees the same state
	again, err := bookings.LoadEngine(ctx, store, []string{"A", "B"})
	require.NoError(t, err)
	assert.Empty(t, again.Snapshot())

	_, err = store.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExclusionConstraint(t *testing.T) {
	d := testutil.NewTestDB(t)
	store := New(d)
	ctx := context.Background()
	require.NoError(t, store.EnsureBays(ctx, []string{"A"}))

	w := domain.NewWindow(nine, time.Hour)
	for _, id := range []string{"b1", "b2"} {
		require.NoError(t, store.CreateBooking(ctx, domain.Booking{
			ID: id, CustomerRef: "c", Window: w, Status: domain.StatusConfirmed, CreatedAt: nine, UpdatedAt: nine,
		}))
	}
	require.NoError(t, store.PutReservation(ctx, domain.Reservation{BookingID: "b1", BayID: "A", Window: w}))
	err := store.PutReservation(ctx, domain.Reservation{BookingID: "b2", BayID: "A", Window: w.Shift(30 * time.Minute)})
	assert.ErrorIs(t, err, domain.ErrNoCapacity)
	require.NoError(t, store.PutReservation(ctx, domain.Reservation{BookingID: "b2", BayID: "A", Window: w.Shift(time.Hour)}),
		"touching windows do not overlap")
}

// Two engines over one database model two server processes; the
// database constraint keeps them from double-booking.
func TestTwoProcessesCannotDoubleBook(t *testing.T) {
	d := testutil.NewTestDB(t)
	store := New(d)
	ctx := context.Background()

	var svcs []*bookings.Service
	for i := 0; i < 2; i++ {
		engine, err := bookings.LoadEngine(ctx, store, []string{"A"})
		require.NoError(t, err)
		svcs = append(svcs, bookings.NewService(store, engine))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svcs[i%2].Book(ctx, bookings.BookInput{
				CustomerRef: fmt.Sprintf("c%d", i),
				Window:      domain.NewWindow(nine, time.Hour),
			})
			if err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrNoCapacity)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, granted)
}

// A server and a CLI command share the database: each sees the other's
// grants and cancellations, and a stale read cannot overwrite a newer commit.
func TestTwoProcessesShareBays(t *testing.T) {
	d := testutil.NewTestDB(t)
	store := New(d)
	ctx := context.Background()
	w := domain.NewWindow(nine, time.Hour)

	open := func() *bookings.Service {
		engine, err := bookings.LoadEngine(ctx, store, []string{"A", "B"})
		require.NoError(t, err)
		return bookings.NewService(store, engine)
	}
	server, cli := open(), open()

	theirs, err := cli.Book(ctx, bookings.BookInput{CustomerRef: "cli", Window: w})
	require.NoError(t, err)
	assert.Equal(t, "A", theirs.BayID)
	ours, err := server.Book(ctx, bookings.BookInput{CustomerRef: "srv", Window: w})
	require.NoError(t, err)
	assert.Equal(t, "B", ours.BayID)

	_, err = cli.Cancel(ctx, theirs.ID)
	require.NoError(t, err)
	again, err := server.Book(ctx, bookings.BookInput{CustomerRef: "srv2", Window: w})
	require.NoError(t, err)
	assert.Equal(t, "A", again.BayID)

	err = store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := store.LockBooking(ctx, again.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, locked.Status)
		return nil
	})
	require.NoError(t, err)

	rs, err := store.ReservationsOn(ctx, "A", w)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, again.ID, rs[0].BookingID)
	bay, err := store.GetBay(ctx, "A")
	require.NoError(t, err)
	assert.True(t, bay.Active)
	_, err = store.GetBay(ctx, "Z")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemindersAndBays(t *testing.T) {
	d := testutil.NewTestDB(t)
	store := New(d)
	ctx := context.Background()
	require.NoError(t, store.EnsureBays(ctx, []string{"A", "B"}))
	require.NoError(t, store.SetBayActive(ctx, "B", false))
	assert.ErrorIs(t, store.SetBayActive(ctx, "Z", false), domain.ErrNotFound)

	bays, err := store.ListBays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Bay{{ID: "A", Active: true}, {ID: "B", Active: false}}, bays)

	id := uuid.NewString()
	w := domain.NewWindow(nine, time.Hour)
	require.NoError(t, store.CreateBooking(ctx, domain.Booking{
		ID: id, CustomerRef: "c", Window: w, BayID: "A", Status: domain.StatusConfirmed, CreatedAt: nine, UpdatedAt: nine,
	}))

	due, err := store.DueReminders(ctx, nine.Add(-2*time.Hour), nine)
	require.NoError(t, err)
	require.Len(t, due, 1)

	at := nine.Add(-time.Hour)
	require.NoError(t, store.PutReminder(ctx, domain.ReminderAttempt{
		BookingID: id, ScheduledAt: nine.Add(-24 * time.Hour), Attempts: 3,
		Status: domain.ReminderExhausted, LastAttemptAt: &at, LastError: "carrier down",
	}))
	due, err = store.DueReminders(ctx, nine.Add(-2*time.Hour), nine)
	require.NoError(t, err)
	assert.Empty(t, due)

	b, err := store.GetBooking(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, b.Reminder)
	assert.Equal(t, 3, b.Reminder.Attempts)
	assert.Equal(t, at, *b.Reminder.LastAttemptAt)

	ex, err := store.ListReminders(ctx, domain.ReminderExhausted)
	require.NoError(t, err)
	require.Len(t, ex, 1)
	assert.Equal(t, "carrier down", ex[0].LastError)
}
