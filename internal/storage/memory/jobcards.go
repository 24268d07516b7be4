package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

func (s *Store) CreateJobCard(ctx context.Context, j domain.JobCard) error {
	return s.write(ctx, func(st *state) error {
		for _, other := range st.jobcards {
			if other.BookingID == j.BookingID {
				return fmt.Errorf("booking %s already has job card %s: %w", j.BookingID, other.ID, domain.ErrInvalidState)
			}
		}
		st.jobcards[j.ID] = j
		return nil
	})
}

func (s *Store) GetJobCard(ctx context.Context, id string) (domain.JobCard, error) {
	var j domain.JobCard
	err := s.read(ctx, func(st *state) error {
		var ok bool
		if j, ok = st.jobcards[id]; !ok {
			return fmt.Errorf("job card %s: %w", id, domain.ErrNotFound)
		}
		return nil
	})
	return j, err
}

func (s *Store) GetJobCardByBooking(ctx context.Context, bookingID string) (domain.JobCard, error) {
	var (
		j     domain.JobCard
		found bool
	)
	err := s.read(ctx, func(st *state) error {
		for _, c := range st.jobcards {
			if c.BookingID == bookingID {
				j, found = c, true
				return nil
			}
		}
		return nil
	})
	if err == nil && !found {
		err = fmt.Errorf("job card for booking %s: %w", bookingID, domain.ErrNotFound)
	}
	return j, err
}

func (s *Store) UpdateJobCard(ctx context.Context, j domain.JobCard) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.jobcards[j.ID]; !ok {
			return fmt.Errorf("job card %s: %w", j.ID, domain.ErrNotFound)
		}
		st.jobcards[j.ID] = j
		return nil
	})
}

// ListJobCards orders by start time. activeOnly drops finished cards.
func (s *Store) ListJobCards(ctx context.Context, activeOnly bool) ([]domain.JobCard, error) {
	var out []domain.JobCard
	err := s.read(ctx, func(st *state) error {
		for _, j := range st.jobcards {
			if activeOnly && j.Done() {
				continue
			}
			out = append(out, j)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}
