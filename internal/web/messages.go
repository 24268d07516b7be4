package web

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/icodeuridevice/AICarServiceAgent/internal/channel"
)

// messageReply is a channel result plus the text sent back to the customer.
// Rejections are normal replies and still answer 200.
type messageReply struct {
	channel.Result
	Text string `json:"text"`
}

func reply(c echo.Context, r channel.Result) error {
	return c.JSON(http.StatusOK, messageReply{Result: r, Text: r.Text()})
}

func (s *Server) handleMessageBook(c echo.Context) error {
	var req channel.BookingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	return reply(c, s.Channel.HandleBooking(c.Request().Context(), req))
}

func (s *Server) handleMessageReschedule(c echo.Context) error {
	var req channel.RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	return reply(c, s.Channel.HandleReschedule(c.Request().Context(), req))
}

func (s *Server) handleMessageCancel(c echo.Context) error {
	var req channel.CancelRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	return reply(c, s.Channel.HandleCancel(c.Request().Context(), req))
}
