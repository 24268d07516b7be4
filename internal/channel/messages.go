// Package channel is the messaging edge of the engine: inbound customer
// requests become booking operations, and reminders go out through a Sender.
package channel

import (
	"fmt"
	"strings"
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

type BookingRequest struct {
	CustomerRef string        `json:"customer_ref"`
	ServiceType string        `json:"service_type"`
	Window      domain.Window `json:"window"`
}

type RescheduleRequest struct {
	BookingRef string        `json:"booking_ref"`
	NewWindow  domain.Window `json:"new_window"`
}

type CancelRequest struct {
	BookingRef string `json:"booking_ref"`
}

type ResultStatus string

const (
	ResultGranted     ResultStatus = "granted"
	ResultRescheduled ResultStatus = "rescheduled"
	ResultCancelled   ResultStatus = "cancelled"
	ResultRejected    ResultStatus = "rejected"
)

// Error codes carried by rejected results.
const (
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeInvalidState      = "invalid_state"
	CodeNoCapacity        = "no_capacity"
	CodeInvalidWindow     = "invalid_window"
	CodeInvalidRef        = "invalid_ref"
	CodeInternal          = "internal"
)

// Result is what the channel turns into a customer reply.
type Result struct {
	Status      ResultStatus        `json:"status"`
	BookingRef  string              `json:"booking_ref,omitempty"`
	BayID       string              `json:"bay_id,omitempty"`
	Window      *domain.Window      `json:"window,omitempty"`
	Code        string              `json:"code,omitempty"`
	Message     string              `json:"message,omitempty"`
	Suggestions []domain.Suggestion `json:"suggestions,omitempty"`
}

const replyTimeFormat = "Mon 2 Jan 15:04"

// Text renders the reply sent back to the customer.
func (r Result) Text() string {
	switch r.Status {
	case ResultGranted:
		return fmt.Sprintf("Booked: bay %s, %s. Your booking reference is %s.", r.BayID, formatWindow(r.Window), r.BookingRef)
	case ResultRescheduled:
		return fmt.Sprintf("Rescheduled: bay %s, %s. Your new booking reference is %s.", r.BayID, formatWindow(r.Window), r.BookingRef)
	case ResultCancelled:
		return "Your booking has been cancelled."
	}

	var sb strings.Builder
	switch r.Code {
	case CodeNoCapacity:
		sb.WriteString("Sorry, no bay is free at that time.")
		if len(r.Suggestions) > 0 {
			sb.WriteString(" Available instead:")
			for _, s := range r.Suggestions {
				sb.WriteString("\n- ")
				sb.WriteString(formatWindow(&s.Window))
			}
		}
	case CodeNotFound, CodeInvalidRef:
		sb.WriteString("We could not find that booking.")
	case CodeInvalidWindow:
		sb.WriteString("That time range is not valid.")
	case CodeInvalidState, CodeInvalidTransition:
		sb.WriteString("That booking can no longer be changed.")
	default:
		sb.WriteString("Something went wrong, please try again later.")
	}
	return sb.String()
}

func formatWindow(w *domain.Window) string {
	if w == nil {
		return ""
	}
	end := w.End.Format("15:04")
	if w.End.Sub(w.Start) >= 24*time.Hour {
		end = w.End.Format(replyTimeFormat)
	}
	return w.Start.Format(replyTimeFormat) + "-" + end
}

// ReminderText is the customer-facing reminder body.
func ReminderText(s domain.Summary) string {
	service := s.ServiceType
	if service == "" {
		service = "service appointment"
	}
	return fmt.Sprintf("Reminder: Your %s is scheduled at %s (bay %s).", service, s.Window.Start.Format(replyTimeFormat), s.BayID)
}
