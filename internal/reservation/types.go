package reservation

import "studyspace-reservation/internal/model"

// SeatRequest books one seat for one student.
type SeatRequest struct {
	SeatID        int64
	Date          string
	StartTime     string
	DurationHours int
	StudentID     int64
}

// RandomSeatRequest books any free seat for one student.
type RandomSeatRequest struct {
	Date          string
	StartTime     string
	DurationHours int
	StudentID     int64
}

// RoomRequest books a meeting room for a group. The representative counts
// as a participant whether or not it is repeated in ParticipantIDs.
type RoomRequest struct {
	RoomID           int64
	Date             string
	StartTime        string
	DurationHours    int
	RepresentativeID int64
	ParticipantIDs   []int64
}

// CancelRequest cancels a reservation of Kind on behalf of StudentID.
type CancelRequest struct {
	ReservationID int64
	StudentID     int64
	Kind          model.ReservationKind
}

// CancelResult reports how a cancellation was settled.
type CancelResult struct {
	ReservationID int64                   `json:"reservationId"`
	Refunded      bool                    `json:"refunded"`
	Status        model.ReservationStatus `json:"status"`
}

// Summary is the caller-facing view of a reservation.
type Summary struct {
	ID               int64                   `json:"reservationId"`
	Kind             model.ReservationKind   `json:"kind"`
	ResourceID       int64                   `json:"resourceId"`
	Date             string                  `json:"date"`
	StartTime        string                  `json:"startTime"`
	EndTime          string                  `json:"endTime"`
	DurationHours    int                     `json:"durationHours"`
	Status           model.ReservationStatus `json:"status"`
	RepresentativeID int64                   `json:"representativeStudentId"`
	ParticipantIDs   []int64                 `json:"participantStudentIds"`
}

// ScheduleEntry is one booked window in a room schedule.
type ScheduleEntry struct {
	ReservationID   int64  `json:"reservationId"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	LeaderStudentID int64  `json:"leaderStudentId"`
}

// RoomSchedule lists a room's active reservations on a date.
type RoomSchedule struct {
	RoomID       int64           `json:"roomId"`
	Name         string          `json:"name"`
	Reservations []ScheduleEntry `json:"reservations"`
}

// UsageView is a student's quota standing for a date. Nothing is persisted
// when it is computed.
type UsageView struct {
	StudentID       int64  `json:"studentId"`
	Date            string `json:"date"`
	SeatDailyUsed   int    `json:"seatDailyUsedHours"`
	SeatDailyLimit  int    `json:"seatDailyLimitHours"`
	RoomDailyUsed   int    `json:"roomDailyUsedHours"`
	RoomDailyLimit  int    `json:"roomDailyLimitHours"`
	RoomWeeklyUsed  int    `json:"roomWeeklyUsedHours"`
	RoomWeeklyLimit int    `json:"roomWeeklyLimitHours"`
}

func toSummary(r model.Reservation) Summary {
	ids := make([]int64, 0, len(r.Participants))
	for _, p := range r.Participants {
		ids = append(ids, p.StudentID)
	}
	return Summary{
		ID:               r.ID,
		Kind:             r.Kind,
		ResourceID:       r.ResourceID,
		Date:             r.Date,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		DurationHours:    r.DurationHours,
		Status:           r.Status,
		RepresentativeID: r.RepresentativeID,
		ParticipantIDs:   ids,
	}
}
