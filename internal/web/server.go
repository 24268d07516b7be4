// Package web serves the inbound messaging endpoints and the operator API.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/icodeuridevice/AICarServiceAgent/internal/auth"
	"github.com/icodeuridevice/AICarServiceAgent/internal/bookings"
	"github.com/icodeuridevice/AICarServiceAgent/internal/channel"
	"github.com/icodeuridevice/AICarServiceAgent/internal/clock"
	"github.com/icodeuridevice/AICarServiceAgent/internal/jobcards"
	"github.com/icodeuridevice/AICarServiceAgent/internal/reports"
)

type Server struct {
	Bookings *bookings.Service
	JobCards *jobcards.Service
	Reports  *reports.Service
	Channel  *channel.Handler
	Refs     *channel.RefCodec
	Auth     *auth.Issuer
	Clock    clock.Clock
}

func (s *Server) Routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("web: %s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok\n")
	})

	v1 := e.Group("/v1")
	v1.POST("/auth/token", s.handleToken)

	msg := v1.Group("/messages")
	msg.POST("/book", s.handleMessageBook)
	msg.POST("/reschedule", s.handleMessageReschedule)
	msg.POST("/cancel", s.handleMessageCancel)

	op := v1.Group("", requireOperator(s.Auth))
	op.GET("/bookings", s.handleListBookings)
	op.POST("/bookings", s.handleCreateBooking)
	op.GET("/bookings/:id", s.handleGetBooking)
	op.POST("/bookings/:id/confirm", s.handleConfirm)
	op.POST("/bookings/:id/reschedule", s.handleReschedule)
	op.POST("/bookings/:id/cancel", s.handleCancel)
	op.POST("/bookings/:id/jobcard", s.handleOpenJobCard)
	op.GET("/availability", s.handleAvailability)

	op.GET("/bays", s.handleListBays)
	op.POST("/bays/:id/enable", s.handleSetBay(true))
	op.POST("/bays/:id/disable", s.handleSetBay(false))

	op.GET("/jobcards", s.handleListJobCards)
	op.GET("/jobcards/:id", s.handleGetJobCard)
	op.PATCH("/jobcards/:id", s.handleUpdateJobCard)
	op.POST("/jobcards/:id/complete", s.handleCompleteJobCard)

	op.GET("/reports/daily", s.handleDailyReport)
	op.GET("/reports/reminders/exhausted", s.handleExhaustedReminders)

	return e
}

func (s *Server) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	fmt.Printf("listening on %s\n", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
