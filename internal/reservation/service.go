// Package reservation is the reservation lifecycle manager: it validates,
// books and cancels seat and meeting room reservations and keeps each
// student's usage quota in step with them.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"go.uber.org/zap"

	"studyspace-reservation/internal/events"
	"studyspace-reservation/internal/lock"
	"studyspace-reservation/internal/model"
	"studyspace-reservation/internal/parse"
	"studyspace-reservation/internal/quota"
	"studyspace-reservation/internal/schedule"
	"studyspace-reservation/internal/store"
)

// IDValidator decides whether a student id is acceptable.
type IDValidator interface {
	Validate(id int64) error
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Service orchestrates reservation creation, cancellation and queries.
type Service struct {
	store  store.Store
	locker lock.Locker
	ids    IDValidator
	policy Policy
	clock  Clock
	rand   schedule.Intn
	sink   events.Sink
	log    *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

func WithClock(c Clock) Option          { return func(s *Service) { s.clock = c } }
func WithRand(r schedule.Intn) Option   { return func(s *Service) { s.rand = r } }
func WithSink(sink events.Sink) Option  { return func(s *Service) { s.sink = sink } }
func WithLogger(log *zap.Logger) Option { return func(s *Service) { s.log = log } }

// NewService creates the lifecycle manager.
func NewService(st store.Store, locker lock.Locker, ids IDValidator, policy Policy, opts ...Option) *Service {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if policy.RandomAttempts < 1 {
		policy.RandomAttempts = 1
	}
	s := &Service{
		store:  st,
		locker: locker,
		ids:    ids,
		policy: policy,
		clock:  SystemClock{},
		rand:   globalRand{},
		sink:   events.NoopSink{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// booking is a validated creation request.
type booking struct {
	kind         model.ReservationKind
	resourceID   int64
	date         time.Time
	window       schedule.Window
	hours        int
	participants []int64 // representative first, distinct
}

func (b booking) dateString() string { return parse.FormatDate(b.date) }

// CreateSeat books a specific seat.
func (s *Service) CreateSeat(ctx context.Context, req SeatRequest) (sum Summary, err error) {
	defer func() {
		s.logRejected("create seat reservation", err, zap.Int64("student_id", req.StudentID), zap.Int64("seat_id", req.SeatID))
	}()

	b, err := s.newBooking(model.KindSeat, req.Date, req.StartTime, req.DurationHours, req.StudentID, nil)
	if err != nil {
		return Summary{}, err
	}
	b.resourceID = req.SeatID
	if err := s.resolve(ctx, b.kind, b.resourceID); err != nil {
		return Summary{}, err
	}
	if err := s.checkRules(b); err != nil {
		return Summary{}, err
	}
	r, err := s.book(ctx, b)
	if err != nil {
		return Summary{}, err
	}
	return toSummary(*r), nil
}

// CreateRoom books a meeting room for a group.
func (s *Service) CreateRoom(ctx context.Context, req RoomRequest) (sum Summary, err error) {
	defer func() {
		s.logRejected("create room reservation", err, zap.Int64("student_id", req.RepresentativeID), zap.Int64("room_id", req.RoomID))
	}()

	b, err := s.newBooking(model.KindRoom, req.Date, req.StartTime, req.DurationHours, req.RepresentativeID, req.ParticipantIDs)
	if err != nil {
		return Summary{}, err
	}
	b.resourceID = req.RoomID
	if err := s.resolve(ctx, b.kind, b.resourceID); err != nil {
		return Summary{}, err
	}
	if err := s.checkRules(b); err != nil {
		return Summary{}, err
	}
	r, err := s.book(ctx, b)
	if err != nil {
		return Summary{}, err
	}
	return toSummary(*r), nil
}

// CreateRandomSeat books a seat chosen uniformly among those free for the
// window. A seat lost to a concurrent booking is excluded and the draw is
// repeated, up to the configured number of attempts.
func (s *Service) CreateRandomSeat(ctx context.Context, req RandomSeatRequest) (sum Summary, err error) {
	defer func() {
		s.logRejected("create random seat reservation", err, zap.Int64("student_id", req.StudentID))
	}()

	b, err := s.newBooking(model.KindSeat, req.Date, req.StartTime, req.DurationHours, req.StudentID, nil)
	if err != nil {
		return Summary{}, err
	}
	if err := s.checkRules(b); err != nil {
		return Summary{}, err
	}

	var excluded []int64
	for attempt := 0; attempt < s.policy.RandomAttempts; attempt++ {
		free, err := s.freeResources(ctx, b.kind, b.dateString(), b.window, excluded)
		if err != nil {
			return Summary{}, err
		}
		id, err := schedule.Pick(s.rand, free)
		if errors.Is(err, schedule.ErrNoneAvailable) {
			return Summary{}, ErrNoAvailableSeats
		}
		b.resourceID = id

		r, err := s.book(ctx, b)
		if errors.Is(err, ErrSeatAlreadyReserved) {
			s.log.Debug("random seat taken concurrently, retrying",
				zap.Int64("seat_id", id), zap.Int("attempt", attempt+1))
			excluded = append(excluded, id)
			continue
		}
		if err != nil {
			return Summary{}, err
		}
		return toSummary(*r), nil
	}
	return Summary{}, ErrNoAvailableSeats
}

// Cancel cancels a reservation on behalf of its owner or representative.
// Before the start the duration is refunded to every participant; after
// the start it is charged again as a penalty.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (res CancelResult, err error) {
	defer func() {
		s.logRejected("cancel reservation", err, zap.Int64("student_id", req.StudentID), zap.Int64("reservation_id", req.ReservationID))
	}()

	if err := s.validateStudents(req.StudentID); err != nil {
		return CancelResult{}, err
	}

	// Read once outside the lock to learn which keys to hold.
	current, err := s.loadReservation(ctx, s.store, req.ReservationID, req.Kind)
	if err != nil {
		return CancelResult{}, err
	}
	keys := []string{lock.ResourceKey(lockKind(current.Kind), current.ResourceID, current.Date)}
	for _, p := range current.Participants {
		keys = append(keys, lock.StudentKey(p.StudentID))
	}
	release, err := s.acquire(ctx, keys...)
	if err != nil {
		return CancelResult{}, err
	}
	defer release()

	var canceled *model.Reservation
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		r, err := s.loadReservation(ctx, tx, req.ReservationID, req.Kind)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			return ErrAlreadyCanceled
		}
		if !mayCancel(r, req.StudentID) {
			return ErrNoCancelPermission
		}

		kp := s.policy.For(r.Kind)
		date, window, err := reservationWindow(r)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		start := parse.At(date, window.Start, s.policy.Location)
		end := parse.At(date, window.End, s.policy.Location)
		if !kp.CancelAfterStart && !now.Before(start) {
			if r.Kind == model.KindRoom {
				return ErrRoomAlreadyInUse
			}
			return ErrSeatAlreadyInUse
		}
		if !now.Before(end) {
			return ErrAlreadyFinished
		}
		beforeStart := now.Before(start)

		hours := window.Hours()
		delta := hours
		status := model.StatusCanceledPenalty
		if beforeStart {
			delta = -hours
			status = model.StatusCanceledRefund
		}

		for _, p := range r.Participants {
			st, err := tx.GetOrCreateStudent(ctx, p.StudentID)
			if err != nil {
				return err
			}
			u, clamped := kp.Limits.Settle(usageOf(st, r.Kind), date, delta)
			if clamped {
				s.log.Warn("quota counter clamped at zero on cancel",
					zap.Int64("student_id", p.StudentID),
					zap.Int64("reservation_id", r.ID),
					zap.Int("delta", delta))
			}
			storeUsage(st, r.Kind, u)
			if err := tx.SaveStudent(ctx, st); err != nil {
				return err
			}
		}

		if s.policy.DeleteOnCancel {
			err = tx.DeleteReservation(ctx, r.ID)
		} else {
			err = tx.MarkCanceled(ctx, r.ID, status)
		}
		if errors.Is(err, store.ErrNotFound) {
			return ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		r.Status = status
		canceled = r
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}

	refunded := canceled.Status == model.StatusCanceledRefund
	s.log.Info("reservation canceled",
		zap.Int64("reservation_id", canceled.ID),
		zap.String("kind", string(canceled.Kind)),
		zap.String("status", string(canceled.Status)),
		zap.Int64("student_id", req.StudentID))
	s.emit(events.ReservationCanceled, canceled, refunded)
	return CancelResult{ReservationID: canceled.ID, Refunded: refunded, Status: canceled.Status}, nil
}

// ListForStudent returns every reservation of kind the student takes part
// in, newest first.
func (s *Service) ListForStudent(ctx context.Context, studentID int64, kind model.ReservationKind) ([]Summary, error) {
	if err := s.validateStudents(studentID); err != nil {
		return nil, err
	}
	rs, err := s.store.ListStudentReservations(ctx, studentID, kind)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rs))
	for _, r := range rs {
		out = append(out, toSummary(r))
	}
	return out, nil
}

// Availability returns the ids of seats that are not free for the window,
// in ascending order.
func (s *Service) Availability(ctx context.Context, date, startTime string, hours int) ([]int64, error) {
	day, window, err := parseWindow(date, startTime, hours)
	if err != nil {
		return nil, err
	}
	if hours <= 0 {
		return nil, ErrInvalidDuration.withDetail("%d", hours)
	}
	return s.takenResources(ctx, model.KindSeat, parse.FormatDate(day), window)
}

// RoomSchedules lists every room with its active reservations on date.
func (s *Service) RoomSchedules(ctx context.Context, date string) ([]RoomSchedule, error) {
	day, err := parse.Date(date)
	if err != nil {
		return nil, ErrInvalidRequest.withDetail("%v", err)
	}
	rooms, err := s.store.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := s.store.ListActiveByDate(ctx, model.KindRoom, parse.FormatDate(day))
	if err != nil {
		return nil, err
	}

	byRoom := make(map[int64][]ScheduleEntry, len(rooms))
	for _, r := range rs {
		byRoom[r.ResourceID] = append(byRoom[r.ResourceID], ScheduleEntry{
			ReservationID:   r.ID,
			StartTime:       r.StartTime,
			EndTime:         r.EndTime,
			LeaderStudentID: r.RepresentativeID,
		})
	}
	out := make([]RoomSchedule, 0, len(rooms))
	for _, room := range rooms {
		entries := byRoom[room.ID]
		if entries == nil {
			entries = []ScheduleEntry{}
		}
		out = append(out, RoomSchedule{RoomID: room.ID, Name: room.Name, Reservations: entries})
	}
	return out, nil
}

// Usage reports the student's counters as they stand for date.
func (s *Service) Usage(ctx context.Context, studentID int64, date string) (UsageView, error) {
	if err := s.validateStudents(studentID); err != nil {
		return UsageView{}, err
	}
	day, err := parse.Date(date)
	if err != nil {
		return UsageView{}, ErrInvalidRequest.withDetail("%v", err)
	}

	st, err := s.store.FindStudent(ctx, studentID)
	if errors.Is(err, store.ErrNotFound) {
		st = &model.Student{StudentID: studentID}
	} else if err != nil {
		return UsageView{}, err
	}

	seat := s.policy.Seat.Limits.Reset(usageOf(st, model.KindSeat), day)
	room := s.policy.Room.Limits.Reset(usageOf(st, model.KindRoom), day)
	return UsageView{
		StudentID:       studentID,
		Date:            parse.FormatDate(day),
		SeatDailyUsed:   seat.Daily,
		SeatDailyLimit:  s.policy.Seat.Limits.Daily,
		RoomDailyUsed:   room.Daily,
		RoomDailyLimit:  s.policy.Room.Limits.Daily,
		RoomWeeklyUsed:  room.Weekly,
		RoomWeeklyLimit: s.policy.Room.Limits.Weekly,
	}, nil
}

func (s *Service) validateStudents(ids ...int64) error {
	for _, id := range ids {
		if err := s.ids.Validate(id); err != nil {
			return ErrInvalidStudentID.withDetail("%d", id)
		}
	}
	return nil
}

func parseWindow(date, startTime string, hours int) (time.Time, schedule.Window, error) {
	day, err := parse.Date(date)
	if err != nil {
		return time.Time{}, schedule.Window{}, ErrInvalidRequest.withDetail("%v", err)
	}
	start, err := parse.Clock(startTime)
	if err != nil {
		return time.Time{}, schedule.Window{}, ErrInvalidRequest.withDetail("%v", err)
	}
	return day, schedule.Window{Start: start, End: start + hours*60}, nil
}

// newBooking validates identities and parses the request.
func (s *Service) newBooking(kind model.ReservationKind, date, startTime string, hours int, representative int64, others []int64) (booking, error) {
	if err := s.validateStudents(append([]int64{representative}, others...)...); err != nil {
		return booking{}, err
	}
	day, window, err := parseWindow(date, startTime, hours)
	if err != nil {
		return booking{}, err
	}

	participants := []int64{representative}
	seen := map[int64]struct{}{representative: {}}
	for _, id := range others {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}

	return booking{
		kind:         kind,
		date:         day,
		window:       window,
		hours:        hours,
		participants: participants,
	}, nil
}

func (s *Service) resolve(ctx context.Context, kind model.ReservationKind, id int64) error {
	ok, err := s.store.ResourceExists(ctx, kind, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if kind == model.KindRoom {
		return ErrRoomNotFound.withDetail("%d", id)
	}
	return ErrSeatNotFound.withDetail("%d", id)
}

// checkRules enforces operating hours, group size and allowed durations.
func (s *Service) checkRules(b booking) error {
	kp := s.policy.For(b.kind)
	if !b.window.Within(s.policy.Open, s.policy.Close) {
		return ErrOutOfOperatingHours.withDetail("%s-%s is outside %s-%s",
			parse.FormatClock(b.window.Start), parse.FormatClock(b.window.End),
			parse.FormatClock(s.policy.Open), parse.FormatClock(s.policy.Close))
	}
	if b.kind == model.KindRoom && len(b.participants) < kp.MinParticipants {
		return ErrInvalidParticipantCount.withDetail("got %d, need at least %d", len(b.participants), kp.MinParticipants)
	}
	if !kp.AllowsDuration(b.hours) {
		return ErrInvalidDuration.withDetail("%d hours is not one of %v", b.hours, kp.Durations)
	}
	return nil
}

// book runs the conflict and quota checks and persists the reservation
// while holding the resource and student locks.
func (s *Service) book(ctx context.Context, b booking) (*model.Reservation, error) {
	kp := s.policy.For(b.kind)
	date := b.dateString()

	keys := []string{lock.ResourceKey(lockKind(b.kind), b.resourceID, date)}
	for _, id := range b.participants {
		keys = append(keys, lock.StudentKey(id))
	}
	release, err := s.acquire(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	r := &model.Reservation{
		Kind:             b.kind,
		ResourceID:       b.resourceID,
		Date:             date,
		StartTime:        parse.FormatClock(b.window.Start),
		EndTime:          parse.FormatClock(b.window.End),
		DurationHours:    b.hours,
		Status:           model.StatusActive,
		RepresentativeID: b.participants[0],
	}
	for i, id := range b.participants {
		r.Participants = append(r.Participants, model.ReservationParticipant{StudentID: id, Representative: i == 0})
	}

	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		existing, err := tx.ResourceBookings(ctx, b.kind, b.resourceID, date)
		if err != nil {
			return err
		}
		windows, err := windowsOf(existing)
		if err != nil {
			return err
		}
		if schedule.HasOverlap(windows, b.window) {
			if b.kind == model.KindRoom {
				return ErrRoomAlreadyReserved
			}
			return ErrSeatAlreadyReserved
		}

		for _, id := range b.participants {
			mine, err := tx.StudentBookings(ctx, id, date)
			if err != nil {
				return err
			}
			windows, err := windowsOf(mine)
			if err != nil {
				return err
			}
			if schedule.HasOverlap(windows, b.window) {
				return ErrOverlappingReservation.withDetail("student %d", id)
			}
		}

		students := make([]*model.Student, len(b.participants))
		usages := make([]quota.Usage, len(b.participants))
		for i, id := range b.participants {
			st, err := tx.GetOrCreateStudent(ctx, id)
			if err != nil {
				return err
			}
			u := kp.Limits.Reset(usageOf(st, b.kind), b.date)
			if err := kp.Limits.Check(u, b.hours); err != nil {
				return quotaError(b.kind, err).withDetail("student %d", id)
			}
			students[i], usages[i] = st, u
		}

		if err := tx.CreateReservation(ctx, r); err != nil {
			return err
		}

		for i, st := range students {
			u, clamped := kp.Limits.Apply(usages[i], b.hours)
			if clamped {
				s.log.Warn("quota counter clamped at zero on create",
					zap.Int64("student_id", st.StudentID), zap.Int("delta", b.hours))
			}
			storeUsage(st, b.kind, u)
			if err := tx.SaveStudent(ctx, st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("reservation created",
		zap.Int64("reservation_id", r.ID),
		zap.String("kind", string(r.Kind)),
		zap.Int64("resource_id", r.ResourceID),
		zap.String("date", r.Date),
		zap.String("start", r.StartTime),
		zap.String("end", r.EndTime),
		zap.Int64s("participants", b.participants))
	s.emit(events.ReservationCreated, r, false)
	return r, nil
}

// takenResources returns the ids of resources with an active reservation
// overlapping window on date.
func (s *Service) takenResources(ctx context.Context, kind model.ReservationKind, date string, window schedule.Window) ([]int64, error) {
	rs, err := s.store.ListActiveByDate(ctx, kind, date)
	if err != nil {
		return nil, err
	}
	seen := map[int64]struct{}{}
	taken := []int64{}
	for _, r := range rs {
		w, err := windowOf(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[r.ResourceID]; dup || !w.Overlaps(window) {
			continue
		}
		seen[r.ResourceID] = struct{}{}
		taken = append(taken, r.ResourceID)
	}
	sort.Slice(taken, func(i, j int) bool { return taken[i] < taken[j] })
	return taken, nil
}

func (s *Service) freeResources(ctx context.Context, kind model.ReservationKind, date string, window schedule.Window, excluded []int64) ([]int64, error) {
	all, err := s.store.ResourceIDs(ctx, kind)
	if err != nil {
		return nil, err
	}
	taken, err := s.takenResources(ctx, kind, date, window)
	if err != nil {
		return nil, err
	}
	return schedule.Available(all, append(taken, excluded...)), nil
}

func (s *Service) loadReservation(ctx context.Context, st store.Store, id int64, kind model.ReservationKind) (*model.Reservation, error) {
	r, err := st.GetReservation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrReservationNotFound.withDetail("%d", id)
	}
	if err != nil {
		return nil, err
	}
	if kind != "" && r.Kind != kind {
		return nil, ErrReservationNotFound.withDetail("%d", id)
	}
	return r, nil
}

func (s *Service) acquire(ctx context.Context, keys ...string) (lock.Release, error) {
	release, err := s.locker.Acquire(ctx, keys...)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("acquire locks: %w", err)
	}
	return release, nil
}

func (s *Service) emit(typ events.Type, r *model.Reservation, refunded bool) {
	participants := make([]int64, 0, len(r.Participants))
	for _, p := range r.Participants {
		participants = append(participants, p.StudentID)
	}
	s.sink.Emit(events.Event{
		Type:             typ,
		ReservationID:    r.ID,
		Kind:             string(r.Kind),
		ResourceID:       r.ResourceID,
		Date:             r.Date,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		RepresentativeID: r.RepresentativeID,
		Participants:     participants,
		Status:           string(r.Status),
		Refunded:         refunded,
		OccurredAt:       s.clock.Now(),
	})
}

func (s *Service) logRejected(op string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	var e *Error
	if errors.As(err, &e) {
		s.log.Debug(op+" rejected", append(fields, zap.String("code", e.Code), zap.String("message", e.Message))...)
		return
	}
	s.log.Error(op+" failed", append(fields, zap.Error(err))...)
}

// mayCancel reports whether student holds the owner or representative
// role on r.
func mayCancel(r *model.Reservation, student int64) bool {
	for _, p := range r.Participants {
		if p.StudentID == student {
			return p.Representative
		}
	}
	return false
}

func quotaError(kind model.ReservationKind, err error) *Error {
	switch {
	case kind == model.KindRoom && errors.Is(err, quota.ErrWeeklyExceeded):
		return ErrRoomWeeklyLimitExceeded
	case kind == model.KindRoom:
		return ErrRoomDailyLimitExceeded
	default:
		return ErrSeatDailyLimitExceeded
	}
}

func lockKind(kind model.ReservationKind) string {
	if kind == model.KindRoom {
		return "room"
	}
	return "seat"
}

func windowOf(r model.Reservation) (schedule.Window, error) {
	start, err := parse.Clock(r.StartTime)
	if err != nil {
		return schedule.Window{}, fmt.Errorf("reservation %d start: %w", r.ID, err)
	}
	end, err := parse.Clock(r.EndTime)
	if err != nil {
		return schedule.Window{}, fmt.Errorf("reservation %d end: %w", r.ID, err)
	}
	return schedule.Window{Start: start, End: end}, nil
}

func windowsOf(rs []model.Reservation) ([]schedule.Window, error) {
	ws := make([]schedule.Window, 0, len(rs))
	for _, r := range rs {
		w, err := windowOf(r)
		if err != nil {
			return nil, err
		}
		ws = append(ws, w)
	}
	return ws, nil
}

func reservationWindow(r *model.Reservation) (time.Time, schedule.Window, error) {
	day, err := parse.Date(r.Date)
	if err != nil {
		return time.Time{}, schedule.Window{}, fmt.Errorf("reservation %d date: %w", r.ID, err)
	}
	w, err := windowOf(*r)
	if err != nil {
		return time.Time{}, schedule.Window{}, err
	}
	return day, w, nil
}
