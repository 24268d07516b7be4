package domain

// Bay is a physical service position. The set of bays is fixed configuration;
// only the Active flag changes at runtime.
type Bay struct {
	ID     string
	Active bool
}

// Reservation holds a bay exclusively for one booking's window.
type Reservation struct {
	BookingID string
	BayID     string
	Window    Window
}
