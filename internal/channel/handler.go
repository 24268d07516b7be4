package channel

import (
	"context"
	"errors"
	"log"

	"github.com/icodeuridevice/AICarServiceAgent/internal/bookings"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

// Handler applies inbound customer requests to the booking service and
// always answers with a Result; failures become rejected results.
type Handler struct {
	bookings *bookings.Service
	refs     *RefCodec
}

// NewHandler takes an optional codec; without one raw booking ids are used
// as references. With one, requests must quote a reference it issued.
func NewHandler(b *bookings.Service, refs *RefCodec) *Handler {
	return &Handler{bookings: b, refs: refs}
}

func (h *Handler) HandleBooking(ctx context.Context, req BookingRequest) Result {
	b, err := h.bookings.Book(ctx, bookings.BookInput{
		CustomerRef: req.CustomerRef,
		ServiceType: req.ServiceType,
		Window:      req.Window,
	})
	if err != nil {
		return rejected(err)
	}
	return h.granted(ResultGranted, b)
}

func (h *Handler) HandleReschedule(ctx context.Context, req RescheduleRequest) Result {
	id, err := h.refs.ResolveCustomer(req.BookingRef)
	if err != nil {
		return rejected(err)
	}
	moved, err := h.bookings.Reschedule(ctx, id, req.NewWindow)
	if err != nil {
		return rejected(err)
	}
	return h.granted(ResultRescheduled, moved.New)
}

func (h *Handler) HandleCancel(ctx context.Context, req CancelRequest) Result {
	id, err := h.refs.ResolveCustomer(req.BookingRef)
	if err != nil {
		return rejected(err)
	}
	if _, err := h.bookings.Cancel(ctx, id); err != nil {
		return rejected(err)
	}
	return Result{Status: ResultCancelled}
}

func (h *Handler) granted(status ResultStatus, b domain.Booking) Result {
	ref, err := h.refs.Encode(b.ID)
	if err != nil {
		log.Printf("channel: %v", err)
		ref = b.ID
	}
	w := b.Window
	return Result{Status: status, BookingRef: ref, BayID: b.BayID, Window: &w}
}

func rejected(err error) Result {
	res := Result{Status: ResultRejected, Code: ErrorCode(err), Message: err.Error()}
	var nc *domain.NoCapacityError
	if errors.As(err, &nc) {
		res.Suggestions = nc.Suggestions
	}
	if res.Code == CodeInternal {
		log.Printf("channel: request failed: %v", err)
		res.Message = ""
	}
	return res
}

// ErrorCode maps an engine error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoCapacity):
		return CodeNoCapacity
	case errors.Is(err, domain.ErrInvalidRef):
		return CodeInvalidRef
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrInvalidWindow):
		return CodeInvalidWindow
	case errors.Is(err, domain.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, domain.ErrInvalidTransition):
		return CodeInvalidTransition
	default:
		return CodeInternal
	}
}
