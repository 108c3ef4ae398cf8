// Package events carries reservation lifecycle events to downstream
// consumers.
package events

import "time"

// Type names a lifecycle event.
type Type string

const (
	ReservationCreated  Type = "reservation.created"
	ReservationCanceled Type = "reservation.canceled"
)

// Event describes one committed change to a reservation.
type Event struct {
	Type             Type      `json:"type"`
	ReservationID    int64     `json:"reservationId"`
	Kind             string    `json:"kind"`
	ResourceID       int64     `json:"resourceId"`
	Date             string    `json:"date"`
	StartTime        string    `json:"startTime"`
	EndTime          string    `json:"endTime"`
	RepresentativeID int64     `json:"representativeId"`
	Participants     []int64   `json:"participants"`
	Status           string    `json:"status"`
	Refunded         bool      `json:"refunded,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// Sink accepts events. Emit must not block the caller.
type Sink interface {
	Emit(e Event)
}

// NoopSink discards every event.
type NoopSink struct{}

func (NoopSink) Emit(Event) {}
