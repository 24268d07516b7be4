package channel

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

// Receipt identifies a message the channel accepted.
type Receipt struct {
	MessageID string
}

// Sender delivers reminders. A nil error means delivered; a context deadline
// error means the call timed out; anything else is a failed delivery.
type Sender interface {
	SendReminder(ctx context.Context, customerRef string, summary domain.Summary) (Receipt, error)
}

// LogSender writes reminders to the process log.
type LogSender struct{}

func (LogSender) SendReminder(ctx context.Context, customerRef string, s domain.Summary) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	id := uuid.NewString()
	log.Printf("reminder: to=%s booking=%s id=%s: %s", customerRef, s.BookingID, id, ReminderText(s))
	return Receipt{MessageID: id}, nil
}
