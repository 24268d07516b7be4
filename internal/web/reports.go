package web

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleDailyReport(c echo.Context) error {
	day := s.now()
	if v := c.QueryParam("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return badRequest(c, "invalid date (want YYYY-MM-DD)")
		}
		day = d
	}
	sum, err := s.Reports.Daily(c.Request().Context(), day)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) handleExhaustedReminders(c echo.Context) error {
	rs, err := s.Reports.ExhaustedReminders(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]reminderAttemptView, 0, len(rs))
	for _, r := range rs {
		out = append(out, reminderAttemptView{
			BookingID: r.BookingID,
			reminderView: reminderView{
				Status:        r.Status,
				ScheduledAt:   r.ScheduledAt,
				Attempts:      r.Attempts,
				LastAttemptAt: r.LastAttemptAt,
				LastError:     r.LastError,
			},
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"reminders": out})
}
