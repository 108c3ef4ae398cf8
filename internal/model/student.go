package model

import "time"

// Student holds a student's quota counters. Usage dates are civil dates
// (YYYY-MM-DD); an empty date means the counter has never been used.
type Student struct {
	ID                  int64  `gorm:"primaryKey"`
	StudentID           int64  `gorm:"uniqueIndex;not null"`
	SeatDailyUsedHours  int    `gorm:"not null;default:0"`
	SeatUsageDate       string `gorm:"size:10"`
	RoomDailyUsedHours  int    `gorm:"not null;default:0"`
	RoomWeeklyUsedHours int    `gorm:"not null;default:0"`
	RoomUsageDate       string `gorm:"size:10"`
	RoomUsageWeekStart  string `gorm:"size:10"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
