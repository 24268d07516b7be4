package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

func (s *Store) PutReminder(ctx context.Context, r domain.ReminderAttempt) error {
	err := s.db.Exec(ctx, `
INSERT INTO reminder_attempts (booking_id, scheduled_at, attempts, status, last_attempt_at, last_error, message_id)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (booking_id) DO UPDATE SET
  scheduled_at = EXCLUDED.scheduled_at,
  attempts = EXCLUDED.attempts,
  status = EXCLUDED.status,
  last_attempt_at = EXCLUDED.last_attempt_at,
  last_error = EXCLUDED.last_error,
  message_id = EXCLUDED.message_id`,
		r.BookingID, r.ScheduledAt, r.Attempts, string(r.Status), r.LastAttemptAt, r.LastError, r.MessageID,
	)
	if err != nil {
		return fmt.Errorf("put reminder %s: %w", r.BookingID, err)
	}
	return nil
}

func (s *Store) ListReminders(ctx context.Context, status domain.ReminderStatus) ([]domain.ReminderAttempt, error) {
	rows, err := s.db.Query(ctx, `
SELECT booking_id, scheduled_at, attempts, status, last_attempt_at, last_error, message_id
FROM reminder_attempts
WHERE $1 = '' OR status = $1
ORDER BY scheduled_at, booking_id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var out []domain.ReminderAttempt
	for rows.Next() {
		var (
			r           domain.ReminderAttempt
			st          string
			lastAttempt *time.Time
		)
		if err := rows.Scan(&r.BookingID, &r.ScheduledAt, &r.Attempts, &st, &lastAttempt, &r.LastError, &r.MessageID); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.Status = domain.ReminderStatus(st)
		r.ScheduledAt = r.ScheduledAt.UTC()
		if lastAttempt != nil {
			at := lastAttempt.UTC()
			r.LastAttemptAt = &at
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
