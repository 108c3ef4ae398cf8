package model

import "time"

// Seat is a single-occupant study seat.
type Seat struct {
	ID        int64 `gorm:"primaryKey"`
	Number    int   `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// Room is a meeting room booked by a group.
type Room struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:64;not null"`
	Capacity  int    `gorm:"not null"` // minimum distinct participants
	Location  string `gorm:"size:128"`
	CreatedAt time.Time
}
