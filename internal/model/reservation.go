package model

import "time"

// ReservationKind names the type of resource a reservation holds.
type ReservationKind string

const (
	KindSeat ReservationKind = "SEAT"
	KindRoom ReservationKind = "ROOM"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusActive          ReservationStatus = "ACTIVE"
	StatusCanceledRefund  ReservationStatus = "CANCELED_REFUND"
	StatusCanceledPenalty ReservationStatus = "CANCELED_PENALTY"
)

// Terminal reports whether no further transition is allowed.
func (s ReservationStatus) Terminal() bool {
	return s == StatusCanceledRefund || s == StatusCanceledPenalty
}

// Reservation is a booking of one seat or room for a window on a date.
// StartTime and EndTime are HH:MM and compare lexically.
type Reservation struct {
	ID               int64             `gorm:"primaryKey"`
	Kind             ReservationKind   `gorm:"size:8;not null;index:idx_reservation_slot,priority:1"`
	ResourceID       int64             `gorm:"not null;index:idx_reservation_slot,priority:2"`
	Date             string            `gorm:"size:10;not null;index:idx_reservation_slot,priority:3"`
	StartTime        string            `gorm:"size:5;not null"`
	EndTime          string            `gorm:"size:5;not null"`
	DurationHours    int               `gorm:"not null"`
	Status           ReservationStatus `gorm:"size:20;not null;index"`
	RepresentativeID int64             `gorm:"not null;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Associations
	Participants []ReservationParticipant `gorm:"constraint:OnDelete:CASCADE"`
}

// ReservationParticipant links a student to a reservation. Seat
// reservations carry exactly one participant, the owner.
type ReservationParticipant struct {
	ID             int64 `gorm:"primaryKey"`
	ReservationID  int64 `gorm:"not null;uniqueIndex:idx_reservation_participant,priority:1"`
	StudentID      int64 `gorm:"not null;uniqueIndex:idx_reservation_participant,priority:2;index"`
	Representative bool  `gorm:"not null"`
}
