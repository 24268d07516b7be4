package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

// HTTPSender posts reminders as JSON to a messaging gateway webhook.
type HTTPSender struct {
	hc    *http.Client
	url   string
	token string
}

func NewHTTPSender(url, token string) *HTTPSender {
	return &HTTPSender{
		hc:    &http.Client{Timeout: 30 * time.Second},
		url:   url,
		token: token,
	}
}

type gatewayMessage struct {
	To        string    `json:"to"`
	Body      string    `json:"body"`
	BookingID string    `json:"booking_id"`
	BayID     string    `json:"bay_id"`
	Start     time.Time `json:"start"`
}

func (s *HTTPSender) SendReminder(ctx context.Context, customerRef string, sum domain.Summary) (Receipt, error) {
	msg := gatewayMessage{
		To:        customerRef,
		Body:      ReminderText(sum),
		BookingID: sum.BookingID,
		BayID:     sum.BayID,
		Start:     sum.Window.Start,
	}
	status, body, err := s.do(ctx, http.MethodPost, msg)
	if err != nil {
		return Receipt{}, err
	}
	var r struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	}
	_ = json.Unmarshal(body, &r)
	if status >= 400 {
		if r.Error != "" {
			return Receipt{}, fmt.Errorf("gateway: %s (status=%d)", r.Error, status)
		}
		return Receipt{}, fmt.Errorf("gateway: status=%d", status)
	}
	return Receipt{MessageID: r.MessageID}, nil
}

func (s *HTTPSender) do(ctx context.Context, method string, payload any) (int, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	res, err := s.hc.Do(req)
	if err != nil {
		// surface ctx errors unwrapped so callers can tell a timeout apart
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return res.StatusCode, body, nil
}
