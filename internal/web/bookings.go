package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/icodeuridevice/AICarServiceAgent/internal/bookings"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

type createBookingBody struct {
	CustomerRef string        `json:"customer_ref"`
	ServiceType string        `json:"service_type"`
	Window      domain.Window `json:"window"`
	Bays        []string      `json:"bays"`
	// Hold leaves the booking requested for a later confirm.
	Hold bool `json:"hold"`
}

func (s *Server) handleCreateBooking(c echo.Context) error {
	var body createBookingBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	in := bookings.BookInput{
		CustomerRef: body.CustomerRef,
		ServiceType: body.ServiceType,
		Window:      body.Window,
		Bays:        body.Bays,
	}
	ctx := c.Request().Context()
	var (
		b   domain.Booking
		err error
	)
	if body.Hold {
		b, err = s.Bookings.Request(ctx, in)
	} else {
		b, err = s.Bookings.Book(ctx, in)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newBookingView(b, s.Refs))
}

func (s *Server) handleListBookings(c echo.Context) error {
	f := domain.BookingFilter{
		Status:      domain.Status(c.QueryParam("status")),
		CustomerRef: c.QueryParam("customer_ref"),
	}
	if f.Status != "" && !f.Status.Valid() {
		return badRequest(c, "invalid status")
	}
	var err error
	if f.From, err = parseTimeParam(c, "from"); err != nil {
		return badRequest(c, "invalid from")
	}
	if f.To, err = parseTimeParam(c, "to"); err != nil {
		return badRequest(c, "invalid to")
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "invalid limit")
		}
		f.Limit = n
	}
	bs, err := s.Bookings.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]bookingView, 0, len(bs))
	for _, b := range bs {
		out = append(out, newBookingView(b, s.Refs))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// handleGetBooking takes a raw booking id or the reference a customer quotes.
func (s *Server) handleGetBooking(c echo.Context) error {
	id, err := s.Refs.Resolve(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	b, err := s.Bookings.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newBookingView(b, s.Refs))
}

func (s *Server) handleConfirm(c echo.Context) error {
	var body struct {
		Bays []string `json:"bays"`
	}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	b, err := s.Bookings.Confirm(c.Request().Context(), c.Param("id"), body.Bays...)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newBookingView(b, s.Refs))
}

func (s *Server) handleReschedule(c echo.Context) error {
	var body struct {
		Window domain.Window `json:"window"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	r, err := s.Bookings.Reschedule(c.Request().Context(), c.Param("id"), body.Window)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"old": newBookingView(r.Old, s.Refs),
		"new": newBookingView(r.New, s.Refs),
	})
}

func (s *Server) handleCancel(c echo.Context) error {
	b, err := s.Bookings.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newBookingView(b, s.Refs))
}

// handleAvailability lists free bays for ?start=&end= and, when none are
// free, the nearest alternatives.
func (s *Server) handleAvailability(c echo.Context) error {
	start, err := parseTimeParam(c, "start")
	if err != nil {
		return badRequest(c, "invalid start")
	}
	end, err := parseTimeParam(c, "end")
	if err != nil {
		return badRequest(c, "invalid end")
	}
	w := domain.Window{Start: start, End: end}
	var pool []string
	if v := c.QueryParam("bays"); v != "" {
		pool = strings.Split(v, ",")
	}
	ctx := c.Request().Context()
	free, err := s.Bookings.Availability(ctx, pool, w)
	if err != nil {
		return writeError(c, err)
	}
	resp := echo.Map{"window": w, "free_bays": free}
	if len(free) == 0 {
		resp["suggestions"] = s.Bookings.Suggest(ctx, w, 0)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListBays(c echo.Context) error {
	bays, err := s.Bookings.Bays(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]bayView, 0, len(bays))
	for _, b := range bays {
		out = append(out, bayView{ID: b.ID, Active: b.Active})
	}
	return c.JSON(http.StatusOK, echo.Map{"bays": out})
}

func (s *Server) handleSetBay(active bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if err := s.Bookings.SetBayActive(c.Request().Context(), id, active); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, bayView{ID: id, Active: active})
	}
}

func parseTimeParam(c echo.Context, name string) (time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
