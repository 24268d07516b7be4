package web

import (
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/channel"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

type reminderView struct {
	Status        domain.ReminderStatus `json:"status"`
	ScheduledAt   time.Time             `json:"scheduled_at"`
	Attempts      int                   `json:"attempts"`
	LastAttemptAt *time.Time            `json:"last_attempt_at,omitempty"`
	LastError     string                `json:"last_error,omitempty"`
}

type bookingView struct {
	ID              string        `json:"id"`
	Ref             string        `json:"ref,omitempty"`
	CustomerRef     string        `json:"customer_ref"`
	ServiceType     string        `json:"service_type,omitempty"`
	Window          domain.Window `json:"window"`
	BayID           string        `json:"bay_id,omitempty"`
	Status          domain.Status `json:"status"`
	RescheduledFrom string        `json:"rescheduled_from,omitempty"`
	RescheduledTo   string        `json:"rescheduled_to,omitempty"`
	JobCardID       string        `json:"jobcard_id,omitempty"`
	Reminder        *reminderView `json:"reminder,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func newBookingView(b domain.Booking, refs *channel.RefCodec) bookingView {
	v := bookingView{
		ID:              b.ID,
		CustomerRef:     b.CustomerRef,
		ServiceType:     b.ServiceType,
		Window:          b.Window,
		BayID:           b.BayID,
		Status:          b.Status,
		RescheduledFrom: b.RescheduledFrom,
		RescheduledTo:   b.RescheduledTo,
		JobCardID:       b.JobCardID,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
	if ref, err := refs.Encode(b.ID); err == nil && ref != b.ID {
		v.Ref = ref
	}
	if r := b.Reminder; r != nil {
		v.Reminder = &reminderView{
			Status:        r.Status,
			ScheduledAt:   r.ScheduledAt,
			Attempts:      r.Attempts,
			LastAttemptAt: r.LastAttemptAt,
			LastError:     r.LastError,
		}
	}
	return v
}

type jobCardView struct {
	ID             string               `json:"id"`
	BookingID      string               `json:"booking_id"`
	Status         domain.JobCardStatus `json:"status"`
	TechnicianName string               `json:"technician_name,omitempty"`
	WorkNotes      string               `json:"work_notes,omitempty"`
	TotalCost      float64              `json:"total_cost"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
}

func newJobCardView(j domain.JobCard) jobCardView {
	return jobCardView{
		ID:             j.ID,
		BookingID:      j.BookingID,
		Status:         j.Status,
		TechnicianName: j.TechnicianName,
		WorkNotes:      j.WorkNotes,
		TotalCost:      j.TotalCost,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

type bayView struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

type reminderAttemptView struct {
	BookingID string `json:"booking_id"`
	reminderView
}
