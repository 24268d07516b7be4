package mq

import (
	"context"
	"sync"
	"time"
)

// Routing keys for lifecycle events on the events exchange.
const (
	BookingRequested   = "booking.requested"
	BookingConfirmed   = "booking.confirmed"
	BookingCancelled   = "booking.cancelled"
	BookingRescheduled = "booking.rescheduled"
	BookingInService   = "booking.in_service"
	BookingCompleted   = "booking.completed"
	ReminderSent       = "reminder.sent"
	ReminderExhausted  = "reminder.exhausted"
)

// Event is the JSON body of every lifecycle message.
type Event struct {
	Type        string    `json:"type"`
	BookingID   string    `json:"booking_id"`
	CustomerRef string    `json:"customer_ref,omitempty"`
	Status      string    `json:"status,omitempty"`
	BayID       string    `json:"bay_id,omitempty"`
	Start       time.Time `json:"start,omitempty"`
	End         time.Time `json:"end,omitempty"`
	RelatedID   string    `json:"related_id,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Nop drops every message. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishJSON(context.Context, string, any) error { return nil }

type Published struct {
	Key   string
	Value any
}

// Memory keeps published messages in order.
type Memory struct {
	mu   sync.Mutex
	msgs []Published
}

func (m *Memory) PublishJSON(_ context.Context, key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, Published{Key: key, Value: v})
	return nil
}

func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.msgs))
	for i, p := range m.msgs {
		out[i] = p.Key
	}
	return out
}

func (m *Memory) Messages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.msgs...)
}
