package reservation

import (
	"time"

	"studyspace-reservation/config"
	"studyspace-reservation/internal/model"
	"studyspace-reservation/internal/quota"
)

// KindPolicy is the booking policy of one resource kind.
type KindPolicy struct {
	Durations        []int
	Limits           quota.Limits
	MinParticipants  int
	CancelAfterStart bool
}

// AllowsDuration reports whether hours is one of the allowed durations.
func (p KindPolicy) AllowsDuration(hours int) bool {
	for _, d := range p.Durations {
		if d == hours {
			return true
		}
	}
	return false
}

// Policy holds every rule the lifecycle manager enforces.
type Policy struct {
	Location       *time.Location
	Open           int // minutes since midnight
	Close          int
	DeleteOnCancel bool
	RandomAttempts int
	Seat           KindPolicy
	Room           KindPolicy
}

// For returns the policy of kind.
func (p Policy) For(kind model.ReservationKind) KindPolicy {
	if kind == model.KindRoom {
		return p.Room
	}
	return p.Seat
}

// PolicyFromConfig builds a Policy from a normalized schedule config.
func PolicyFromConfig(c config.ScheduleConfig) Policy {
	kind := func(r config.ResourceConfig, weekly bool) KindPolicy {
		kp := KindPolicy{
			Durations:        append([]int(nil), r.Durations...),
			Limits:           quota.Limits{Daily: r.DailyLimit},
			MinParticipants:  r.MinParticipants,
			CancelAfterStart: r.CancelAfterStart != nil && *r.CancelAfterStart,
		}
		if weekly {
			kp.Limits.Weekly = r.WeeklyLimit
		}
		return kp
	}
	return Policy{
		Location:       c.Location,
		Open:           c.OpenMinute,
		Close:          c.CloseMinute,
		DeleteOnCancel: c.CancelMode == config.CancelModeDelete,
		RandomAttempts: c.RandomAttempts,
		Seat:           kind(c.Seat, false),
		Room:           kind(c.Room, true),
	}
}
