package domain

import "time"

type JobCardStatus string

const (
	JobCardOpen       JobCardStatus = "open"
	JobCardInProgress JobCardStatus = "in_progress"
	JobCardDone       JobCardStatus = "done"
)

// JobCard is the in-garage work record of a booking that reached in_service.
type JobCard struct {
	ID             string
	BookingID      string
	Status         JobCardStatus
	TechnicianName string
	WorkNotes      string
	TotalCost      float64
	StartedAt      time.Time
	CompletedAt    *time.Time
}

func (j JobCard) Done() bool { return j.Status == JobCardDone }
