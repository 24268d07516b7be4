package web

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/icodeuridevice/AICarServiceAgent/internal/auth"
)

// requireOperator rejects requests without a valid operator bearer token.
func requireOperator(iss *auth.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if iss == nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "operator access disabled"})
			}
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := iss.Verify(raw)
			if err != nil || claims.Role != auth.RoleOperator {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set("operator", claims.Subject)
			return next(c)
		}
	}
}

func (s *Server) handleToken(c echo.Context) error {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if s.Auth == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "operator access disabled"})
	}
	at, err := s.Auth.Login(body.Token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return c.JSON(http.StatusOK, at)
}
