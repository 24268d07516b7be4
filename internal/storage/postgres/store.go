// Package postgres persists bookings, reservations, job cards, reminder
// attempts and bay flags with pgx. The reservations table carries an
// exclusion constraint so overlapping grants fail even across processes.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/db"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

type Store struct {
	db *db.DB
}

func New(d *db.DB) *Store {
	return &Store{db: d}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithTx(ctx, fn)
}

const bookingColumns = `
b.id, b.customer_ref, b.service_type, b.starts_at, b.ends_at, COALESCE(b.bay_id, ''), b.status,
COALESCE(b.rescheduled_from, ''), COALESCE(b.rescheduled_to, ''), COALESCE(b.jobcard_id, ''),
b.created_at, b.updated_at,
r.scheduled_at, COALESCE(r.attempts, 0), COALESCE(r.status, ''), r.last_attempt_at,
COALESCE(r.last_error, ''), COALESCE(r.message_id, '')`

const bookingFrom = `
FROM bookings b
LEFT JOIN reminder_attempts r ON r.booking_id = b.id`

func scanBooking(row db.Row) (domain.Booking, error) {
	var (
		b           domain.Booking
		status      string
		scheduledAt *time.Time
		attempts    int
		rStatus     string
		lastAttempt *time.Time
		lastError   string
		messageID   string
	)
	err := row.Scan(
		&b.ID, &b.CustomerRef, &b.ServiceType, &b.Window.Start, &b.Window.End, &b.BayID, &status,
		&b.RescheduledFrom, &b.RescheduledTo, &b.JobCardID,
		&b.CreatedAt, &b.UpdatedAt,
		&scheduledAt, &attempts, &rStatus, &lastAttempt, &lastError, &messageID,
	)
	if err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.Status(status)
	b.Window.Start, b.Window.End = b.Window.Start.UTC(), b.Window.End.UTC()
	b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
	if scheduledAt != nil {
		r := domain.ReminderAttempt{
			BookingID:   b.ID,
			ScheduledAt: scheduledAt.UTC(),
			Attempts:    attempts,
			Status:      domain.ReminderStatus(rStatus),
			LastError:   lastError,
			MessageID:   messageID,
		}
		if lastAttempt != nil {
			at := lastAttempt.UTC()
			r.LastAttemptAt = &at
		}
		b.Reminder = &r
	}
	return b, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) CreateBooking(ctx context.Context, b domain.Booking) error {
	err := s.db.Exec(ctx, `
INSERT INTO bookings (id, customer_ref, service_type, starts_at, ends_at, bay_id, status,
  rescheduled_from, rescheduled_to, jobcard_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		b.ID, b.CustomerRef, b.ServiceType, b.Window.Start, b.Window.End, nullable(b.BayID), string(b.Status),
		nullable(b.RescheduledFrom), nullable(b.RescheduledTo), nullable(b.JobCardID), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("create booking %s: %w: duplicate id", b.ID, domain.ErrInvalidState)
		}
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	b, err := scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingColumns+bookingFrom+` WHERE b.id = $1`, id))
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", id, db.WrapNotFound(err))
	}
	return b, nil
}

// LockBooking reads the booking and, inside a transaction, holds its row
// until the transaction ends so concurrent writers queue behind it.
func (s *Store) LockBooking(ctx context.Context, id string) (domain.Booking, error) {
	b, err := scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingColumns+bookingFrom+` WHERE b.id = $1 FOR UPDATE OF b`, id))
	if err != nil {
		return domain.Booking{}, fmt.Errorf("lock booking %s: %w", id, db.WrapNotFound(err))
	}
	return b, nil
}

func (s *Store) UpdateBooking(ctx context.Context, b domain.Booking) error {
	n, err := s.db.ExecRows(ctx, `
UPDATE bookings SET bay_id=$2, status=$3, rescheduled_from=$4, rescheduled_to=$5, jobcard_id=$6, updated_at=$7
WHERE id=$1`,
		b.ID, nullable(b.BayID), string(b.Status), nullable(b.RescheduledFrom), nullable(b.RescheduledTo),
		nullable(b.JobCardID), b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("b.status = $%d", string(f.Status))
	}
	if f.CustomerRef != "" {
		add("b.customer_ref = $%d", f.CustomerRef)
	}
	if !f.From.IsZero() {
		add("b.starts_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("b.starts_at < $%d", f.To)
	}

	q := `SELECT ` + bookingColumns + bookingFrom
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY b.starts_at, b.id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return s.queryBookings(ctx, q, args...)
}

func (s *Store) DueReminders(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	return s.queryBookings(ctx, `SELECT `+bookingColumns+bookingFrom+`
WHERE b.status = 'confirmed' AND b.starts_at > $1 AND b.starts_at <= $2
  AND (r.status IS NULL OR r.status NOT IN ('sent','exhausted'))
ORDER BY b.starts_at, b.id`, from, to)
}

func (s *Store) queryBookings(ctx context.Context, q string, args ...any) ([]domain.Booking, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) PutReservation(ctx context.Context, r domain.Reservation) error {
	err := s.db.Exec(ctx, `
INSERT INTO reservations (booking_id, bay_id, during) VALUES ($1, $2, tstzrange($3, $4, '[)'))
ON CONFLICT (booking_id) DO UPDATE SET bay_id = EXCLUDED.bay_id, during = EXCLUDED.during`,
		r.BookingID, r.BayID, r.Window.Start, r.Window.End,
	)
	if err != nil {
		if db.IsExclusionViolation(err) {
			return fmt.Errorf("reservation %s on bay %s: %w", r.BookingID, r.BayID, domain.ErrNoCapacity)
		}
		return fmt.Errorf("put reservation: %w", err)
	}
	return nil
}

func (s *Store) DeleteReservation(ctx context.Context, bookingID string) error {
	if err := s.db.Exec(ctx, `DELETE FROM reservations WHERE booking_id = $1`, bookingID); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

func (s *Store) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	return s.queryReservations(ctx, `
SELECT booking_id, bay_id, lower(during), upper(during) FROM reservations ORDER BY bay_id, lower(during)`)
}

// ReservationsOn lists the reservations on bayID that overlap w.
func (s *Store) ReservationsOn(ctx context.Context, bayID string, w domain.Window) ([]domain.Reservation, error) {
	return s.queryReservations(ctx, `
SELECT booking_id, bay_id, lower(during), upper(during) FROM reservations
WHERE bay_id = $1 AND during && tstzrange($2, $3, '[)')
ORDER BY lower(during)`, bayID, w.Start, w.End)
}

func (s *Store) queryReservations(ctx context.Context, q string, args ...any) ([]domain.Reservation, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.BookingID, &r.BayID, &r.Window.Start, &r.Window.End); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.Window.Start, r.Window.End = r.Window.Start.UTC(), r.Window.End.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
