package channel

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

const refName = "booking_ref"

// RefCodec turns booking ids into tamper-proof references for customers.
type RefCodec struct {
	sc *securecookie.SecureCookie
}

// NewRefCodec needs a 32 or 64 byte hash key; blockKey enables encryption
// and must be 16, 24 or 32 bytes when set.
func NewRefCodec(hashKey, blockKey []byte) *RefCodec {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int((365 * 24 * time.Hour).Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &RefCodec{sc: sc}
}

func (c *RefCodec) Encode(bookingID string) (string, error) {
	if c == nil {
		return bookingID, nil
	}
	ref, err := c.sc.Encode(refName, bookingID)
	if err != nil {
		return "", fmt.Errorf("encode booking ref: %w", err)
	}
	return ref, nil
}

// Resolve returns the booking id behind ref. Raw booking ids are accepted
// as-is for operator use.
func (c *RefCodec) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty", domain.ErrInvalidRef)
	}
	if _, err := uuid.Parse(ref); err == nil || c == nil {
		return ref, nil
	}
	return c.decode(ref)
}

// ResolveCustomer is Resolve for unauthenticated callers: once a codec is
// configured only a reference it issued is accepted, never a raw id.
func (c *RefCodec) ResolveCustomer(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty", domain.ErrInvalidRef)
	}
	if c == nil {
		return ref, nil
	}
	return c.decode(ref)
}

func (c *RefCodec) decode(ref string) (string, error) {
	var id string
	if err := c.sc.Decode(refName, ref, &id); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidRef, err)
	}
	return id, nil
}
