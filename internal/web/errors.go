package web

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/icodeuridevice/AICarServiceAgent/internal/channel"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

// writeError maps domain errors to HTTP status codes.
func writeError(c echo.Context, err error) error {
	code := channel.ErrorCode(err)
	body := echo.Map{"error": err.Error(), "code": code}

	status := http.StatusInternalServerError
	switch code {
	case channel.CodeNotFound:
		status = http.StatusNotFound
	case channel.CodeInvalidWindow, channel.CodeInvalidRef:
		status = http.StatusBadRequest
	case channel.CodeInvalidState, channel.CodeInvalidTransition:
		status = http.StatusConflict
	case channel.CodeNoCapacity:
		status = http.StatusConflict
		var nc *domain.NoCapacityError
		if errors.As(err, &nc) {
			body["suggestions"] = nc.Suggestions
		}
	default:
		log.Printf("web: %s %s: %v", c.Request().Method, c.Path(), err)
		body["error"] = "internal error"
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
