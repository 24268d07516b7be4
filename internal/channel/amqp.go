package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

// AMQPSender hands reminders to an outbound worker through a durable queue.
// A send succeeds only once the broker confirms the message.
type AMQPSender struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQPSender(url, queue string) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &AMQPSender{conn: conn, ch: ch, queue: queue}, nil
}

type reminderMessage struct {
	CustomerRef string    `json:"customer_ref"`
	Body        string    `json:"body"`
	BookingID   string    `json:"booking_id"`
	BayID       string    `json:"bay_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

func (s *AMQPSender) SendReminder(ctx context.Context, customerRef string, sum domain.Summary) (Receipt, error) {
	body, err := json.Marshal(reminderMessage{
		CustomerRef: customerRef,
		Body:        ReminderText(sum),
		BookingID:   sum.BookingID,
		BayID:       sum.BayID,
		Start:       sum.Window.Start,
		End:         sum.Window.End,
	})
	if err != nil {
		return Receipt{}, err
	}
	id := uuid.NewString()

	s.mu.Lock()
	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	s.mu.Unlock()
	if err != nil {
		return Receipt{}, fmt.Errorf("publish reminder: %w", err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if !acked {
		return Receipt{}, fmt.Errorf("publish reminder: broker nacked %s", id)
	}
	return Receipt{MessageID: id}, nil
}

func (s *AMQPSender) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
