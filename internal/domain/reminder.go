package domain

import "time"

type ReminderStatus string

// Pending marks an attempt in flight. Failed attempts are retried on a later
// sweep; sent and exhausted are final.
const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderFailed    ReminderStatus = "failed"
	ReminderExhausted ReminderStatus = "exhausted"
)

// ReminderAttempt tracks reminder delivery for one booking.
type ReminderAttempt struct {
	BookingID     string
	ScheduledAt   time.Time
	Attempts      int
	Status        ReminderStatus
	LastAttemptAt *time.Time
	LastError     string
	MessageID     string
}

func (r ReminderAttempt) Terminal() bool {
	return r.Status == ReminderSent || r.Status == ReminderExhausted
}

// NextAttemptAt returns when the next delivery attempt becomes eligible.
func (r ReminderAttempt) NextAttemptAt(retryInterval time.Duration) time.Time {
	if r.LastAttemptAt == nil {
		return r.ScheduledAt
	}
	return r.LastAttemptAt.Add(retryInterval)
}
