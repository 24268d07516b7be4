package domain

import (
	"fmt"
	"time"
)

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewWindow(start time.Time, d time.Duration) Window {
	return Window{Start: start.UTC(), End: start.UTC().Add(d)}
}

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Overlaps reports whether the two windows intersect. Touching windows do not.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end required", ErrInvalidWindow)
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	return nil
}

// Shift returns the same-length window moved by d.
func (w Window) Shift(d time.Duration) Window {
	return Window{Start: w.Start.Add(d), End: w.End.Add(d)}
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + ".." + w.End.Format(time.RFC3339)
}
