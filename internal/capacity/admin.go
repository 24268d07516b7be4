package capacity

import (
	"context"
	"fmt"
	"sort"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

// Load rebuilds the table from persisted reservations. It refuses input that
// would violate the no-overlap invariant.
func (e *Engine) Load(reservations []domain.Reservation) error {
	for _, r := range reservations {
		st, ok := e.bays[r.BayID]
		if !ok {
			return fmt.Errorf("load reservation %s: bay %q: %w", r.BookingID, r.BayID, domain.ErrNotFound)
		}
		unlock := e.locks.Lock(r.BayID)
		conflict := st.conflicts(r.Window, r.BookingID)
		if !conflict {
			e.idxMu.Lock()
			st.reservations[r.BookingID] = r.Window
			e.byBooking[r.BookingID] = r.BayID
			e.idxMu.Unlock()
		}
		unlock()
		if conflict {
			return fmt.Errorf("load reservation %s: overlaps existing reservation on bay %s", r.BookingID, r.BayID)
		}
	}
	return nil
}

// SetActive takes a bay online or offline. Existing reservations are kept;
// an inactive bay is skipped for new grants.
func (e *Engine) SetActive(ctx context.Context, bayID string, active bool, commit func(ctx context.Context) error) error {
	st, ok := e.bays[bayID]
	if !ok {
		return fmt.Errorf("bay %q: %w", bayID, domain.ErrNotFound)
	}
	unlock := e.locks.Lock(bayID)
	defer unlock()
	if commit != nil {
		if err := commit(ctx); err != nil {
			return err
		}
	}
	st.active = active
	return nil
}

func (e *Engine) Bays() []domain.Bay {
	out := make([]domain.Bay, 0, len(e.ids))
	for _, id := range e.ids {
		unlock := e.locks.Lock(id)
		out = append(out, domain.Bay{ID: id, Active: e.bays[id].active})
		unlock()
	}
	return out
}

// Snapshot copies every active reservation, ordered by bay then start.
func (e *Engine) Snapshot() []domain.Reservation {
	var out []domain.Reservation
	for _, id := range e.ids {
		unlock := e.locks.Lock(id)
		for booking, w := range e.bays[id].reservations {
			out = append(out, domain.Reservation{BookingID: booking, BayID: id, Window: w})
		}
		unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BayID != out[j].BayID {
			return out[i].BayID < out[j].BayID
		}
		return out[i].Window.Start.Before(out[j].Window.Start)
	})
	return out
}
