package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidState      = errors.New("invalid state")
	ErrNoCapacity        = errors.New("no capacity")
	ErrDeliveryFailure   = errors.New("delivery failure")
	ErrDeliveryExhausted = errors.New("delivery exhausted")
	ErrInvalidWindow     = errors.New("invalid window")
	ErrInvalidRef        = errors.New("invalid booking reference")
)

// TransitionError is returned when a status change is not in the table.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Suggestion is an alternative window that had a free bay when computed.
type Suggestion struct {
	BayID  string `json:"bay_id"`
	Window Window `json:"window"`
}

// NoCapacityError carries the alternatives offered to the customer.
type NoCapacityError struct {
	Window      Window
	Suggestions []Suggestion
}

func (e *NoCapacityError) Error() string {
	return fmt.Sprintf("no capacity for %s (%d alternatives)", e.Window, len(e.Suggestions))
}

func (e *NoCapacityError) Is(target error) bool { return target == ErrNoCapacity }
