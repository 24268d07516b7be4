package capacity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

// ledger is a shared reservation table standing in for the database that
// several processes' engines read from.
type ledger struct {
	mu       sync.Mutex
	inactive map[string]bool
	rs       map[string]domain.Reservation
}

func newLedger() *ledger {
	return &ledger{inactive: map[string]bool{}, rs: map[string]domain.Reservation{}}
}

func (l *ledger) GetBay(_ context.Context, id string) (domain.Bay, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Bay{ID: id, Active: !l.inactive[id]}, nil
}

func (l *ledger) ReservationsOn(_ context.Context, bay string, w domain.Window) ([]domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Reservation
	for _, r := range l.rs {
		if r.BayID == bay && r.Window.Overlaps(w) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *ledger) put(_ context.Context, res domain.Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, other := range l.rs {
		if id != res.BookingID && other.BayID == res.BayID && other.Window.Overlaps(res.Window) {
			return fmt.Errorf("reservation %s on bay %s: %w", res.BookingID, res.BayID, domain.ErrNoCapacity)
		}
	}
	l.rs[res.BookingID] = res
	return nil
}

func (l *ledger) del(_ context.Context, res domain.Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rs, res.BookingID)
	return nil
}

func sharedEngine(l *ledger, ids ...string) *Engine {
	e := newEngine(ids...)
	WithSource(l)(e)
	return e
}

func TestTryReserve_StoreConflictMovesToNextBay(t *testing.T) {
	e := newEngine("A", "B")
	w := domain.NewWindow(at(10, 0), time.Hour)
	takenA := func(_ context.Context, res domain.Reservation) error {
		if res.BayID == "A" {
			return fmt.Errorf("reservation %s on bay A: %w", res.BookingID, domain.ErrNoCapacity)
		}
		return nil
	}

	res, err := e.TryReserve(context.Background(), ReserveRequest{Window: w, BookingID: "b1", Commit: takenA})
	require.NoError(t, err)
	assert.Equal(t, "B", res.BayID)

	_, err = e.TryReserve(context.Background(), ReserveRequest{Window: w, BookingID: "b2", Commit: takenA})
	var nc *domain.NoCapacityError
	require.ErrorAs(t, err, &nc, "a store conflict on every bay is still no capacity")
	assert.Len(t, nc.Suggestions, 2)
	_, held := e.BayOf("b2")
	assert.False(t, held)
}

func TestTryReserve_SeesOtherEnginesCommits(t *testing.T) {
	l := newLedger()
	server, cli := sharedEngine(l, "A"), sharedEngine(l, "A")
	ctx := context.Background()
	w := domain.NewWindow(at(10, 0), time.Hour)

	res, err := server.TryReserve(ctx, ReserveRequest{Window: w, BookingID: "b1", Commit: l.put})
	require.NoError(t, err)
	assert.Equal(t, "A", res.BayID)

	_, err = cli.TryReserve(ctx, ReserveRequest{Window: w, BookingID: "b2", Commit: l.put})
	require.ErrorIs(t, err, domain.ErrNoCapacity)
	bay, held := cli.BayOf("b1")
	require.True(t, held, "refresh pulled in the server's grant")
	assert.Equal(t, "A", bay)

	require.NoError(t, cli.Release(ctx, "b1", l.del))

	res, err = server.TryReserve(ctx, ReserveRequest{Window: w, BookingID: "b3", Commit: l.put})
	require.NoError(t, err, "the release made elsewhere frees the bay here too")
	assert.Equal(t, "A", res.BayID)
	_, held = server.BayOf("b1")
	assert.False(t, held)
	assert.Equal(t, []domain.Reservation{{BookingID: "b3", BayID: "A", Window: w}}, server.Snapshot())
}

func TestTryReserve_RefreshesBayFlags(t *testing.T) {
	l := newLedger()
	e := sharedEngine(l, "A", "B")
	ctx := context.Background()
	w := domain.NewWindow(at(10, 0), time.Hour)

	l.mu.Lock()
	l.inactive["A"] = true
	l.mu.Unlock()

	free, err := e.Available(ctx, nil, w)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, free)

	res, err := e.TryReserve(ctx, ReserveRequest{Window: w, BookingID: "b1", Commit: l.put})
	require.NoError(t, err)
	assert.Equal(t, "B", res.BayID)
}

func TestTryReserve_LearnsConflictFromFailedCommit(t *testing.T) {
	l := newLedger()
	e := sharedEngine(l, "A", "B")
	ctx := context.Background()
	w := domain.NewWindow(at(10, 0), time.Hour)

	// Another process commits on A between this engine's refresh and its commit.
	racing := func(ctx context.Context, res domain.Reservation) error {
		if res.BayID == "A" {
			require.NoError(t, l.put(ctx, domain.Reservation{BookingID: "foreign", BayID: "A", Window: w}))
		}
		return l.put(ctx, res)
	}

	res, err := e.TryReserve(ctx, ReserveRequest{Window: w, BookingID: "b1", Commit: racing})
	require.NoError(t, err)
	assert.Equal(t, "B", res.BayID)
	bay, held := e.BayOf("foreign")
	require.True(t, held)
	assert.Equal(t, "A", bay)
}
