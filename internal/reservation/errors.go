package reservation

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that only need its category.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidIdentity
	KindInvalidRequest
	KindResourceNotFound
	KindReservationNotFound
	KindOperatingHours
	KindInvalidDuration
	KindInsufficientParticipants
	KindScheduleConflict
	KindQuotaExceeded
	KindNoAvailableResource
	KindPermissionDenied
	KindAlreadyCanceled
	KindAlreadyFinished
	KindBusy
)

var kindNames = map[Kind]string{
	KindInternal:                 "Internal",
	KindInvalidIdentity:          "InvalidIdentity",
	KindInvalidRequest:           "InvalidRequest",
	KindResourceNotFound:         "ResourceNotFound",
	KindReservationNotFound:      "ReservationNotFound",
	KindOperatingHours:           "OperatingHoursViolation",
	KindInvalidDuration:          "InvalidDuration",
	KindInsufficientParticipants: "InsufficientParticipants",
	KindScheduleConflict:         "ScheduleConflict",
	KindQuotaExceeded:            "QuotaExceeded",
	KindNoAvailableResource:      "NoAvailableResource",
	KindPermissionDenied:         "PermissionDenied",
	KindAlreadyCanceled:          "AlreadyCanceled",
	KindAlreadyFinished:          "AlreadyFinished",
	KindBusy:                     "Busy",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a domain failure with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches any Error with the same code, so a sentinel still matches after
// detail has been added to its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) withDetail(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message + ": " + fmt.Sprintf(format, args...)}
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidStudentID = newError(KindInvalidIdentity, "INVALID_STUDENT_ID", "invalid student id")
	ErrInvalidRequest   = newError(KindInvalidRequest, "INVALID_REQUEST", "invalid request")

	ErrSeatNotFound        = newError(KindResourceNotFound, "SEAT_NOT_FOUND", "seat not found")
	ErrRoomNotFound        = newError(KindResourceNotFound, "ROOM_NOT_FOUND", "meeting room not found")
	ErrReservationNotFound = newError(KindReservationNotFound, "RESERVATION_NOT_FOUND", "reservation not found")

	ErrOutOfOperatingHours     = newError(KindOperatingHours, "OUT_OF_OPERATING_HOURS", "reservation must be within operating hours")
	ErrInvalidDuration         = newError(KindInvalidDuration, "INVALID_DURATION_HOURS", "duration is not an allowed number of hours")
	ErrInvalidParticipantCount = newError(KindInsufficientParticipants, "INVALID_PARTICIPANT_COUNT", "not enough distinct participants")

	ErrSeatAlreadyReserved    = newError(KindScheduleConflict, "SEAT_ALREADY_RESERVED", "seat is already reserved for that time")
	ErrRoomAlreadyReserved    = newError(KindScheduleConflict, "ROOM_ALREADY_RESERVED", "meeting room is already reserved for that time")
	ErrOverlappingReservation = newError(KindScheduleConflict, "OVERLAPPING_RESERVATION", "student already has a reservation at that time")

	ErrSeatDailyLimitExceeded  = newError(KindQuotaExceeded, "SEAT_DAILY_LIMIT_EXCEEDED", "daily seat usage limit exceeded")
	ErrRoomDailyLimitExceeded  = newError(KindQuotaExceeded, "ROOM_DAILY_LIMIT_EXCEEDED", "daily meeting room usage limit exceeded")
	ErrRoomWeeklyLimitExceeded = newError(KindQuotaExceeded, "ROOM_WEEKLY_LIMIT_EXCEEDED", "weekly meeting room usage limit exceeded")

	ErrNoAvailableSeats = newError(KindNoAvailableResource, "NO_AVAILABLE_SEATS", "no seat is available for that time")

	ErrNoCancelPermission = newError(KindPermissionDenied, "NO_CANCEL_PERMISSION", "only the owner or representative may cancel")
	ErrAlreadyCanceled    = newError(KindAlreadyCanceled, "ALREADY_CANCELED_RESERVATION", "reservation is already canceled")
	ErrAlreadyFinished    = newError(KindAlreadyFinished, "RESERVATION_ALREADY_FINISHED", "reservation has already finished")
	ErrSeatAlreadyInUse   = newError(KindAlreadyFinished, "SEAT_ALREADY_IN_USE", "reservation has already started and cannot be canceled")
	ErrRoomAlreadyInUse   = newError(KindAlreadyFinished, "ROOM_ALREADY_IN_USE", "meeting room reservation has already started and cannot be canceled")

	ErrBusy = newError(KindBusy, "RESOURCE_BUSY", "resource is busy, retry shortly")
)

// KindOf classifies err. Errors that are not domain failures are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
