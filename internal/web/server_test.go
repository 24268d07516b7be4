package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icodeuridevice/AICarServiceAgent/internal/auth"
	"github.com/icodeuridevice/AICarServiceAgent/internal/bookings"
	"github.com/icodeuridevice/AICarServiceAgent/internal/capacity"
	"github.com/icodeuridevice/AICarServiceAgent/internal/channel"
	"github.com/icodeuridevice/AICarServiceAgent/internal/clock"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/jobcards"
	"github.com/icodeuridevice/AICarServiceAgent/internal/reports"
	"github.com/icodeuridevice/AICarServiceAgent/internal/storage/memory"
)

const operatorToken = "let-me-in"

var (
	now = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
)

func slot(h int) domain.Window {
	return domain.NewWindow(day.Add(time.Duration(h)*time.Hour), time.Hour)
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	return newTestServerWithRefs(t, nil)
}

func newTestServerWithRefs(t *testing.T, refs *channel.RefCodec) *echo.Echo {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	clk := clock.NewManual(now)

	engine, err := bookings.LoadEngine(ctx, store, []string{"A", "B"},
		capacity.WithSlotStep(time.Hour), capacity.WithHorizon(4*time.Hour))
	require.NoError(t, err)

	var seq atomic.Int64
	svc := bookings.NewService(store, engine,
		bookings.WithClock(clk),
		bookings.WithIDGenerator(func() string { return fmt.Sprintf("bk-%d", seq.Add(1)) }),
	)
	hash, err := auth.HashToken(operatorToken)
	require.NoError(t, err)

	s := &Server{
		Bookings: svc,
		JobCards: jobcards.NewService(store, svc, jobcards.WithClock(clk)),
		Reports:  reports.NewService(store),
		Channel:  channel.NewHandler(svc, refs),
		Refs:     refs,
		Auth:     auth.NewIssuer("jwt-secret", hash, time.Hour, clk),
		Clock:    clk,
	}
	return s.Routes()
}

func do(t *testing.T, e *echo.Echo, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func login(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/v1/auth/token", "", echo.Map{"token": operatorToken})
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[auth.AccessToken](t, rec).Token
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestMessageBookingUntilFull(t *testing.T) {
	e := newTestServer(t)
	req := channel.BookingRequest{CustomerRef: "+15550100", ServiceType: "oil change", Window: slot(10)}

	first := decode[messageReply](t, do(t, e, http.MethodPost, "/v1/messages/book", "", req))
	assert.Equal(t, channel.ResultGranted, first.Status)
	assert.Equal(t, "A", first.BayID)
	assert.Contains(t, first.Text, "Booked: bay A")

	second := decode[messageReply](t, do(t, e, http.MethodPost, "/v1/messages/book", "", req))
	assert.Equal(t, "B", second.BayID)

	rec := do(t, e, http.MethodPost, "/v1/messages/book", "", req)
	require.Equal(t, http.StatusOK, rec.Code)
	third := decode[messageReply](t, rec)
	assert.Equal(t, channel.ResultRejected, third.Status)
	assert.Equal(t, channel.CodeNoCapacity, third.Code)
	require.NotEmpty(t, third.Suggestions)
	assert.Equal(t, slot(11), third.Suggestions[0].Window)

	cancel := decode[messageReply](t, do(t, e, http.MethodPost, "/v1/messages/cancel", "",
		channel.CancelRequest{BookingRef: first.BookingRef}))
	assert.Equal(t, channel.ResultCancelled, cancel.Status)

	again := decode[messageReply](t, do(t, e, http.MethodPost, "/v1/messages/book", "", req))
	assert.Equal(t, channel.ResultGranted, again.Status)
	assert.Equal(t, "A", again.BayID)
}

func TestMessagesRequireIssuedRef(t *testing.T) {
	refs := channel.NewRefCodec(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32))
	e := newTestServerWithRefs(t, refs)
	req := channel.BookingRequest{CustomerRef: "+15550100", Window: slot(10)}

	rec := do(t, e, http.MethodPost, "/v1/messages/book", "", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "booking_id")
	assert.NotContains(t, rec.Body.String(), "bk-1")
	first := decode[messageReply](t, rec)
	require.Equal(t, channel.ResultGranted, first.Status)

	forged := decode[messageReply](t, do(t, e, http.MethodPost, "/v1/messages/cancel", "",
		channel.CancelRequest{BookingRef: "bk-1"}))
	assert.Equal(t, channel.CodeInvalidRef, forged.Code)

	token := login(t, e)
	got := decode[bookingView](t, do(t, e, http.MethodGet, "/v1/bookings/"+first.BookingRef, token, nil))
	assert.Equal(t, "bk-1", got.ID)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.NotEmpty(t, got.Ref)

	cancel := decode[messageReply](t, do(t, e, http.MethodPost, "/v1/messages/cancel", "",
		channel.CancelRequest{BookingRef: first.BookingRef}))
	assert.Equal(t, channel.ResultCancelled, cancel.Status)
}

func TestMessageRescheduleUnknownRef(t *testing.T) {
	e := newTestServer(t)
	r := decode[messageReply](t, do(t, e, http.MethodPost, "/v1/messages/reschedule", "",
		channel.RescheduleRequest{BookingRef: "bk-404", NewWindow: slot(12)}))
	assert.Equal(t, channel.ResultRejected, r.Status)
	assert.Equal(t, channel.CodeNotFound, r.Code)
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	e := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, e, http.MethodGet, "/v1/bookings", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, e, http.MethodGet, "/v1/bookings", "garbage", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, e, http.MethodPost, "/v1/auth/token", "", echo.Map{"token": "wrong"}).Code)

	tok := login(t, e)
	assert.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/v1/bookings", tok, nil).Code)
}

func TestOperatorBookingLifecycle(t *testing.T) {
	e := newTestServer(t)
	tok := login(t, e)

	rec := do(t, e, http.MethodPost, "/v1/bookings", tok, createBookingBody{
		CustomerRef: "cust-1", ServiceType: "brakes", Window: slot(9), Hold: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	held := decode[bookingView](t, rec)
	assert.Equal(t, domain.StatusRequested, held.Status)
	assert.Empty(t, held.BayID)

	rec = do(t, e, http.MethodPost, "/v1/bookings/"+held.ID+"/confirm", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A", decode[bookingView](t, rec).BayID)

	rec = do(t, e, http.MethodPost, "/v1/bookings/"+held.ID+"/reschedule", tok, echo.Map{"window": slot(13)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[struct {
		Old bookingView `json:"old"`
		New bookingView `json:"new"`
	}](t, rec)
	assert.Equal(t, domain.StatusRescheduled, moved.Old.Status)
	assert.Equal(t, moved.New.ID, moved.Old.RescheduledTo)
	assert.Equal(t, slot(13), moved.New.Window)

	rec = do(t, e, http.MethodPost, "/v1/bookings/"+moved.New.ID+"/jobcard", tok, echo.Map{"technician_name": "Sam"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	card := decode[jobCardView](t, rec)

	rec = do(t, e, http.MethodPost, "/v1/bookings/"+moved.New.ID+"/cancel", tok, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, e, http.MethodPatch, "/v1/jobcards/"+card.ID, tok, echo.Map{"total_cost": 120.5, "work_notes": "pads"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.JobCardInProgress, decode[jobCardView](t, rec).Status)

	rec = do(t, e, http.MethodPost, "/v1/jobcards/"+card.ID+"/complete", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.JobCardDone, decode[jobCardView](t, rec).Status)

	rec = do(t, e, http.MethodGet, "/v1/bookings/"+moved.New.ID, tok, nil)
	assert.Equal(t, domain.StatusCompleted, decode[bookingView](t, rec).Status)

	rec = do(t, e, http.MethodGet, "/v1/reports/daily?date=2025-06-02", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[reports.DailySummary](t, rec)
	assert.Equal(t, 2, sum.TotalBookings)
	assert.Equal(t, 1, sum.ByStatus["completed"])

	// The card was finished on the clock's day, before the booked slot.
	rec = do(t, e, http.MethodGet, "/v1/reports/daily", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum = decode[reports.DailySummary](t, rec)
	assert.Equal(t, 1, sum.CompletedJobs)
	assert.InDelta(t, 120.5, sum.Revenue, 0.001)
}

func TestOperatorErrors(t *testing.T) {
	e := newTestServer(t)
	tok := login(t, e)

	assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodGet, "/v1/bookings/nope", tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodPost, "/v1/bookings/nope/cancel", tok, nil).Code)

	rec := do(t, e, http.MethodPost, "/v1/bookings", tok, createBookingBody{
		CustomerRef: "c", Window: domain.Window{Start: slot(9).End, End: slot(9).Start},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, channel.CodeInvalidWindow, decode[map[string]any](t, rec)["code"])

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, do(t, e, http.MethodPost, "/v1/bookings", tok,
			createBookingBody{CustomerRef: "c", Window: slot(9)}).Code)
	}
	rec = do(t, e, http.MethodPost, "/v1/bookings", tok, createBookingBody{CustomerRef: "c", Window: slot(9)})
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, channel.CodeNoCapacity, body["code"])
	assert.NotEmpty(t, body["suggestions"])
}

func TestBaysAndAvailability(t *testing.T) {
	e := newTestServer(t)
	tok := login(t, e)

	rec := do(t, e, http.MethodPost, "/v1/bays/A/disable", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	w := slot(10)
	q := fmt.Sprintf("/v1/availability?start=%s&end=%s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	rec = do(t, e, http.MethodGet, q, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode[struct {
		FreeBays []string `json:"free_bays"`
	}](t, rec)
	assert.Equal(t, []string{"B"}, avail.FreeBays)

	rec = do(t, e, http.MethodGet, "/v1/bays", tok, nil)
	bays := decode[struct {
		Bays []bayView `json:"bays"`
	}](t, rec)
	assert.Equal(t, []bayView{{ID: "A", Active: false}, {ID: "B", Active: true}}, bays.Bays)

	assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodPost, "/v1/bays/Z/enable", tok, nil).Code)
}
