package domain

import "time"

type Status string

const (
	StatusRequested   Status = "requested"
	StatusConfirmed   Status = "confirmed"
	StatusInService   Status = "in_service"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// transitions is the complete set of legal status changes. Anything absent is
// rejected with ErrInvalidTransition.
var transitions = map[Status]map[Status]bool{
	StatusRequested: {
		StatusConfirmed:   true,
		StatusCancelled:   true,
		StatusRescheduled: true,
	},
	StatusConfirmed: {
		StatusInService:   true,
		StatusCancelled:   true,
		StatusRescheduled: true,
	},
	StatusInService: {
		StatusCompleted: true,
	},
	StatusCompleted:   {},
	StatusCancelled:   {},
	StatusRescheduled: {},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRescheduled
}

// HoldsBay reports whether a booking in this status must own a reservation.
func (s Status) HoldsBay() bool {
	return s == StatusConfirmed || s == StatusInService
}

type Booking struct {
	ID          string
	CustomerRef string
	ServiceType string
	Window      Window
	BayID       string
	Status      Status

	// Cross-references between a rescheduled booking and its replacement.
	RescheduledFrom string
	RescheduledTo   string
	JobCardID       string

	Reminder *ReminderAttempt

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is the customer-facing view passed to the delivery channel.
type Summary struct {
	BookingID   string
	ServiceType string
	BayID       string
	Window      Window
}

func (b Booking) Summary() Summary {
	return Summary{
		BookingID:   b.ID,
		ServiceType: b.ServiceType,
		BayID:       b.BayID,
		Window:      b.Window,
	}
}

// BookingFilter narrows booking listings. Zero fields match everything;
// From/To select bookings whose window starts in [From, To).
type BookingFilter struct {
	Status      Status
	CustomerRef string
	From        time.Time
	To          time.Time
	Limit       int
}

func (f BookingFilter) Match(b Booking) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.CustomerRef != "" && b.CustomerRef != f.CustomerRef {
		return false
	}
	if !f.From.IsZero() && b.Window.Start.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !b.Window.Start.Before(f.To) {
		return false
	}
	return true
}
