package bookings

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icodeuridevice/AICarServiceAgent/internal/capacity"
	"github.com/icodeuridevice/AICarServiceAgent/internal/clock"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/mq"
	"github.com/icodeuridevice/AICarServiceAgent/internal/storage/memory"
)

var (
	now = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
)

func slot(h int) domain.Window {
	return domain.NewWindow(day.Add(time.Duration(h)*time.Hour), time.Hour)
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	events *mq.Memory
	clock  *clock.Manual
}

func newFixture(t *testing.T, bays ...string) fixture {
	return newFixtureWithStore(t, memory.New(), bays...)
}

func newFixtureWithStore(t *testing.T, store Store, bays ...string) fixture {
	t.Helper()
	engine, err := LoadEngine(context.Background(), store, bays,
		capacity.WithSlotStep(time.Hour), capacity.WithHorizon(4*time.Hour))
	require.NoError(t, err)

	var seq atomic.Int64
	f := fixture{events: &mq.Memory{}, clock: clock.NewManual(now)}
	f.store, _ = store.(*memory.Store)
	f.svc = NewService(store, engine,
		WithClock(f.clock),
		WithPublisher(f.events),
		WithIDGenerator(func() string { return fmt.Sprintf("bk-%d", seq.Add(1)) }),
	)
	return f
}

func (f fixture) book(t *testing.T, h int) domain.Booking {
	t.Helper()
	b, err := f.svc.Book(context.Background(), BookInput{CustomerRef: "cust", ServiceType: "oil change", Window: slot(h)})
	require.NoError(t, err)
	return b
}

func (f fixture) startService(t *testing.T, id string) domain.Booking {
	t.Helper()
	b, err := f.svc.Transition(context.Background(), id, domain.StatusInService, TransitionContext{
		JobCard: &domain.JobCard{ID: "jc-" + id, BookingID: id, Status: domain.JobCardOpen},
	})
	require.NoError(t, err)
	return b
}

func TestBook_TieBreakThenNoCapacity(t *testing.T) {
	f := newFixture(t, "B", "A")
	ctx := context.Background()

	first := f.book(t, 10)
	second := f.book(t, 10)
	assert.Equal(t, "A", first.BayID)
	assert.Equal(t, "B", second.BayID)
	assert.Equal(t, domain.StatusConfirmed, first.Status)

	_, err := f.svc.Book(ctx, BookInput{CustomerRef: "cust", Window: slot(10)})
	var nc *domain.NoCapacityError
	require.ErrorAs(t, err, &nc)
	require.NotEmpty(t, nc.Suggestions)
	assert.Equal(t, slot(11), nc.Suggestions[0].Window)

	all, err := f.store.ListBookings(ctx, domain.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "a refused booking is not stored")
	assert.Equal(t, []string{mq.BookingConfirmed, mq.BookingConfirmed}, f.events.Keys())
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t, "A")
	_, err := f.svc.Book(context.Background(), BookInput{Window: slot(9)})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.svc.Book(context.Background(), BookInput{CustomerRef: "c", Window: domain.Window{Start: day, End: day}})
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestRequestConfirmCancel(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()

	req, err := f.svc.Request(ctx, BookInput{CustomerRef: "cust", Window: slot(9)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequested, req.Status)
	assert.Empty(t, f.svc.Reservations())

	confirmed, err := f.svc.Confirm(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", confirmed.BayID)
	rs, err := f.store.ListReservations(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, req.ID, rs[0].BookingID)

	f.clock.Advance(time.Minute)
	cancelled, err := f.svc.Cancel(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, now.Add(time.Minute), cancelled.UpdatedAt)
	assert.Empty(t, f.svc.Reservations())
	rs, err = f.store.ListReservations(ctx)
	require.NoError(t, err)
	assert.Empty(t, rs)

	again, err := f.svc.Cancel(ctx, req.ID)
	require.NoError(t, err, "cancel is idempotent")
	assert.Equal(t, cancelled.UpdatedAt, again.UpdatedAt)

	// the bay is free again
	f.book(t, 9)
	assert.Equal(t, []string{mq.BookingRequested, mq.BookingConfirmed, mq.BookingCancelled, mq.BookingConfirmed}, f.events.Keys())
}

func TestCancelRequestedHoldsNoBay(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	req, err := f.svc.Request(ctx, BookInput{CustomerRef: "cust", Window: slot(9)})
	require.NoError(t, err)
	out, err := f.svc.Cancel(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, out.Status)
}

func TestTransition_IllegalNeverMutates(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	ctx := context.Background()

	requested, err := f.svc.Request(ctx, BookInput{CustomerRef: "cust", Window: slot(8)})
	require.NoError(t, err)
	confirmed := f.book(t, 9)
	inService := f.startService(t, f.book(t, 10).ID)
	cancelled, err := f.svc.Cancel(ctx, f.book(t, 11).ID)
	require.NoError(t, err)

	cases := []struct {
		booking domain.Booking
		target  domain.Status
	}{
		{requested, domain.StatusInService},
		{requested, domain.StatusCompleted},
		{confirmed, domain.StatusRequested},
		{confirmed, domain.StatusCompleted},
		{inService, domain.StatusCancelled},
		{inService, domain.StatusConfirmed},
		{cancelled, domain.StatusConfirmed},
		{cancelled, domain.StatusCancelled},
		{confirmed, domain.Status("bogus")},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s->%s", tc.booking.Status, tc.target), func(t *testing.T) {
			before, err := f.store.GetBooking(ctx, tc.booking.ID)
			require.NoError(t, err)
			reservationsBefore := f.svc.Reservations()

			_, err = f.svc.Transition(ctx, tc.booking.ID, tc.target, TransitionContext{
				JobCard: &domain.JobCard{BookingID: tc.booking.ID, Status: domain.JobCardDone},
			})
			var te *domain.TransitionError
			require.ErrorAs(t, err, &te)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)

			after, err := f.store.GetBooking(ctx, tc.booking.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, reservationsBefore, f.svc.Reservations())
		})
	}
}

func TestTransition_Preconditions(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	b := f.book(t, 9)

	_, err := f.svc.Transition(ctx, b.ID, domain.StatusInService, TransitionContext{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.svc.Transition(ctx, b.ID, domain.StatusRescheduled, TransitionContext{})
	assert.ErrorIs(t, err, domain.ErrInvalidState, "reschedule has its own entry point")

	f.startService(t, b.ID)
	_, err = f.svc.Transition(ctx, b.ID, domain.StatusCompleted, TransitionContext{
		JobCard: &domain.JobCard{BookingID: b.ID, Status: domain.JobCardInProgress},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState, "job card not done")

	got, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInService, got.Status)

	_, err = f.svc.Transition(ctx, "missing", domain.StatusConfirmed, TransitionContext{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransition_ApplyErrorRollsBack(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	b := f.book(t, 9)
	boom := errors.New("boom")

	_, err := f.svc.Transition(ctx, b.ID, domain.StatusCancelled, TransitionContext{
		Apply: func(context.Context, *domain.Booking) error { return boom },
	})
	require.ErrorIs(t, err, boom)

	got, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	require.Len(t, f.svc.Reservations(), 1, "bay still held")
}

func TestCompleteReleasesBay(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	b := f.book(t, 9)
	f.startService(t, b.ID)

	done, err := f.svc.Transition(ctx, b.ID, domain.StatusCompleted, TransitionContext{
		JobCard: &domain.JobCard{BookingID: b.ID, Status: domain.JobCardDone},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Empty(t, f.svc.Reservations())

	again := f.book(t, 9)
	assert.Equal(t, "A", again.BayID)
}

func TestCancelInService(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	b := f.startService(t, f.book(t, 9).ID)

	_, err := f.svc.Cancel(ctx, b.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInService, got.Status)
	assert.Len(t, f.svc.Reservations(), 1)
}

func TestCancelTerminal(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	b := f.book(t, 9)
	moved, err := f.svc.Reschedule(ctx, b.ID, slot(12))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, moved.Old.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.svc.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type failingStore struct {
	*memory.Store
	failPut error
}

func (s *failingStore) PutReservation(ctx context.Context, r domain.Reservation) error {
	if s.failPut != nil {
		return s.failPut
	}
	return s.Store.PutReservation(ctx, r)
}

func TestBook_CommitFailureLeavesNothing(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	f := newFixtureWithStore(t, store, "A")
	store.failPut = errors.New("disk full")
	ctx := context.Background()

	_, err := f.svc.Book(ctx, BookInput{CustomerRef: "cust", Window: slot(9)})
	require.ErrorIs(t, err, store.failPut)
	assert.Empty(t, f.svc.Reservations())
	all, err := store.ListBookings(ctx, domain.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.events.Keys())
}

func TestSetBayActive(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	require.NoError(t, f.svc.SetBayActive(ctx, "A", false))

	b := f.book(t, 9)
	assert.Equal(t, "B", b.BayID)

	bays, err := f.store.ListBays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Bay{{ID: "A", Active: false}, {ID: "B", Active: true}}, bays)

	// a restart keeps the flag
	engine, err := LoadEngine(ctx, f.store, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Bay{{ID: "A", Active: false}, {ID: "B", Active: true}}, engine.Bays())
	bay, held := engine.BayOf(b.ID)
	assert.True(t, held)
	assert.Equal(t, "B", bay)

	assert.ErrorIs(t, f.svc.SetBayActive(ctx, "Z", true), domain.ErrNotFound)
}
