// Package jobcards links in-garage work to the booking lifecycle. Opening a
// card starts service on the booking; finishing it completes the booking.
package jobcards

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/icodeuridevice/AICarServiceAgent/internal/bookings"
	"github.com/icodeuridevice/AICarServiceAgent/internal/clock"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/keylock"
)

type Store interface {
	CreateJobCard(ctx context.Context, j domain.JobCard) error
	GetJobCard(ctx context.Context, id string) (domain.JobCard, error)
	GetJobCardByBooking(ctx context.Context, bookingID string) (domain.JobCard, error)
	UpdateJobCard(ctx context.Context, j domain.JobCard) error
	ListJobCards(ctx context.Context, activeOnly bool) ([]domain.JobCard, error)
}

type Service struct {
	store    Store
	bookings *bookings.Service
	locks    *keylock.Map
	clock    clock.Clock
	newID    func() string
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(store Store, b *bookings.Service, opts ...Option) *Service {
	s := &Service{
		store:    store,
		bookings: b,
		locks:    keylock.New(),
		clock:    clock.NewSystem(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates the job card for a confirmed booking and moves the booking to
// in_service in the same transaction.
func (s *Service) Open(ctx context.Context, bookingID, technician string) (domain.JobCard, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return domain.JobCard{}, fmt.Errorf("open job card: %w", err)
	}
	if b.Status != domain.StatusConfirmed {
		return domain.JobCard{}, fmt.Errorf("open job card: %w: booking %s is %s", domain.ErrInvalidState, bookingID, b.Status)
	}

	card := domain.JobCard{
		ID:             s.newID(),
		BookingID:      bookingID,
		Status:         domain.JobCardOpen,
		TechnicianName: strings.TrimSpace(technician),
		StartedAt:      s.clock.Now(),
	}
	_, err = s.bookings.Transition(ctx, bookingID, domain.StatusInService, bookings.TransitionContext{
		JobCard: &card,
		Apply: func(ctx context.Context, b *domain.Booking) error {
			if _, err := s.store.GetJobCardByBooking(ctx, b.ID); err == nil {
				return fmt.Errorf("%w: booking %s already has a job card", domain.ErrInvalidState, b.ID)
			} else if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			b.JobCardID = card.ID
			return s.store.CreateJobCard(ctx, card)
		},
	})
	if err != nil {
		return domain.JobCard{}, fmt.Errorf("open job card: %w", err)
	}
	return card, nil
}

// Patch holds the editable job card fields. Nil fields are left alone.
type Patch struct {
	TechnicianName *string
	WorkNotes      *string
	TotalCost      *float64
}

// Update edits a card that is not done. The first edit moves an open card to
// in_progress.
func (s *Service) Update(ctx context.Context, id string, p Patch) (domain.JobCard, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	card, err := s.store.GetJobCard(ctx, id)
	if err != nil {
		return domain.JobCard{}, fmt.Errorf("update job card: %w", err)
	}
	if card.Done() {
		return domain.JobCard{}, fmt.Errorf("update job card %s: %w: already done", id, domain.ErrInvalidState)
	}
	if p.TotalCost != nil && *p.TotalCost < 0 {
		return domain.JobCard{}, fmt.Errorf("update job card %s: %w: negative cost", id, domain.ErrInvalidState)
	}

	if p.TechnicianName != nil {
		card.TechnicianName = strings.TrimSpace(*p.TechnicianName)
	}
	if p.WorkNotes != nil {
		card.WorkNotes = *p.WorkNotes
	}
	if p.TotalCost != nil {
		card.TotalCost = *p.TotalCost
	}
	card.Status = domain.JobCardInProgress

	if err := s.store.UpdateJobCard(ctx, card); err != nil {
		return domain.JobCard{}, fmt.Errorf("update job card %s: %w", id, err)
	}
	return card, nil
}

// Complete marks the card done and completes its booking, releasing the bay.
func (s *Service) Complete(ctx context.Context, id string) (domain.JobCard, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	card, err := s.store.GetJobCard(ctx, id)
	if err != nil {
		return domain.JobCard{}, fmt.Errorf("complete job card: %w", err)
	}
	if card.Done() {
		return domain.JobCard{}, fmt.Errorf("complete job card %s: %w: already done", id, domain.ErrInvalidState)
	}

	now := s.clock.Now()
	card.Status = domain.JobCardDone
	card.CompletedAt = &now
	_, err = s.bookings.Transition(ctx, card.BookingID, domain.StatusCompleted, bookings.TransitionContext{
		JobCard: &card,
		Apply: func(ctx context.Context, _ *domain.Booking) error {
			return s.store.UpdateJobCard(ctx, card)
		},
	})
	if err != nil {
		return domain.JobCard{}, fmt.Errorf("complete job card %s: %w", id, err)
	}
	return card, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.JobCard, error) {
	card, err := s.store.GetJobCard(ctx, id)
	if err != nil {
		return domain.JobCard{}, fmt.Errorf("get job card: %w", err)
	}
	return card, nil
}

// List returns job cards; activeOnly drops finished ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.JobCard, error) {
	return s.store.ListJobCards(ctx, activeOnly)
}
