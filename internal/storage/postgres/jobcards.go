package postgres

import (
	"context"
	"fmt"

	"github.com/icodeuridevice/AICarServiceAgent/internal/db"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

const jobcardColumns = `id, booking_id, status, technician_name, work_notes, total_cost, started_at, completed_at`

func scanJobCard(row db.Row) (domain.JobCard, error) {
	var (
		j      domain.JobCard
		status string
	)
	if err := row.Scan(&j.ID, &j.BookingID, &status, &j.TechnicianName, &j.WorkNotes, &j.TotalCost, &j.StartedAt, &j.CompletedAt); err != nil {
		return domain.JobCard{}, err
	}
	j.Status = domain.JobCardStatus(status)
	j.StartedAt = j.StartedAt.UTC()
	if j.CompletedAt != nil {
		at := j.CompletedAt.UTC()
		j.CompletedAt = &at
	}
	return j, nil
}

func (s *Store) CreateJobCard(ctx context.Context, j domain.JobCard) error {
	err := s.db.Exec(ctx, `
INSERT INTO jobcards (`+jobcardColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		j.ID, j.BookingID, string(j.Status), j.TechnicianName, j.WorkNotes, j.TotalCost, j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("booking %s already has a job card: %w", j.BookingID, domain.ErrInvalidState)
		}
		return fmt.Errorf("create job card: %w", err)
	}
	return nil
}

func (s *Store) GetJobCard(ctx context.Context, id string) (domain.JobCard, error) {
	j, err := scanJobCard(s.db.QueryRow(ctx, `SELECT `+jobcardColumns+` FROM jobcards WHERE id = $1`, id))
	if err != nil {
		return domain.JobCard{}, fmt.Errorf("job card %s: %w", id, db.WrapNotFound(err))
	}
	return j, nil
}

func (s *Store) GetJobCardByBooking(ctx context.Context, bookingID string) (domain.JobCard, error) {
	j, err := scanJobCard(s.db.QueryRow(ctx, `SELECT `+jobcardColumns+` FROM jobcards WHERE booking_id = $1`, bookingID))
	if err != nil {
		return domain.JobCard{}, fmt.Errorf("job card for booking %s: %w", bookingID, db.WrapNotFound(err))
	}
	return j, nil
}

func (s *Store) UpdateJobCard(ctx context.Context, j domain.JobCard) error {
	n, err := s.db.ExecRows(ctx, `
UPDATE jobcards SET status=$2, technician_name=$3, work_notes=$4, total_cost=$5, completed_at=$6 WHERE id=$1`,
		j.ID, string(j.Status), j.TechnicianName, j.WorkNotes, j.TotalCost, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job card %s: %w", j.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("job card %s: %w", j.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListJobCards(ctx context.Context, activeOnly bool) ([]domain.JobCard, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+jobcardColumns+` FROM jobcards WHERE NOT $1 OR status <> 'done' ORDER BY started_at, id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list job cards: %w", err)
	}
	defer rows.Close()

	var out []domain.JobCard
	for rows.Next() {
		j, err := scanJobCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job card: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
