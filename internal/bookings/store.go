package bookings

import (
	"context"
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

// Store is the durable side of the booking service. WithTx carries its
// transaction in ctx; every other method joins that transaction when present.
// GetBooking and LockBooking must return the booking with its reminder
// attempt attached. LockBooking additionally holds the booking until the
// surrounding transaction ends.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateBooking(ctx context.Context, b domain.Booking) error
	GetBooking(ctx context.Context, id string) (domain.Booking, error)
	LockBooking(ctx context.Context, id string) (domain.Booking, error)
	UpdateBooking(ctx context.Context, b domain.Booking) error
	ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error)

	PutReservation(ctx context.Context, r domain.Reservation) error
	// DeleteReservation is a no-op when the booking holds nothing.
	DeleteReservation(ctx context.Context, bookingID string) error
	ListReservations(ctx context.Context) ([]domain.Reservation, error)
	ReservationsOn(ctx context.Context, bayID string, w domain.Window) ([]domain.Reservation, error)

	PutReminder(ctx context.Context, r domain.ReminderAttempt) error
	// DueReminders lists confirmed bookings starting in (from, to] whose
	// reminder is neither sent nor exhausted.
	DueReminders(ctx context.Context, from, to time.Time) ([]domain.Booking, error)

	EnsureBays(ctx context.Context, ids []string) error
	GetBay(ctx context.Context, id string) (domain.Bay, error)
	ListBays(ctx context.Context) ([]domain.Bay, error)
	SetBayActive(ctx context.Context, id string, active bool) error
}
