package reservation

import (
	"time"

	"studyspace-reservation/internal/model"
	"studyspace-reservation/internal/parse"
	"studyspace-reservation/internal/quota"
)

func civil(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	d, err := parse.Date(s)
	if err != nil {
		// An unreadable watermark is stale by definition.
		return time.Time{}
	}
	return d
}

func civilString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return parse.FormatDate(t)
}

func usageOf(st *model.Student, kind model.ReservationKind) quota.Usage {
	if kind == model.KindRoom {
		return quota.Usage{
			Daily:     st.RoomDailyUsedHours,
			Weekly:    st.RoomWeeklyUsedHours,
			Day:       civil(st.RoomUsageDate),
			WeekStart: civil(st.RoomUsageWeekStart),
		}
	}
	return quota.Usage{
		Daily: st.SeatDailyUsedHours,
		Day:   civil(st.SeatUsageDate),
	}
}

func storeUsage(st *model.Student, kind model.ReservationKind, u quota.Usage) {
	if kind == model.KindRoom {
		st.RoomDailyUsedHours = u.Daily
		st.RoomWeeklyUsedHours = u.Weekly
		st.RoomUsageDate = civilString(u.Day)
		st.RoomUsageWeekStart = civilString(u.WeekStart)
		return
	}
	st.SeatDailyUsedHours = u.Daily
	st.SeatUsageDate = civilString(u.Day)
}
