package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"studyspace-reservation/config"
	"studyspace-reservation/internal/api"
	"studyspace-reservation/internal/db"
	"studyspace-reservation/internal/events"
	"studyspace-reservation/internal/identity"
	"studyspace-reservation/internal/lock"
	"studyspace-reservation/internal/model"
	"studyspace-reservation/internal/reservation"
	"studyspace-reservation/internal/store"
)

const (
	studentA int64 = 202300001
	studentB int64 = 202300002
	studentC int64 = 202300003
)

type settableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *settableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *settableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingPublisher collects every event the worker pool publishes.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Snapshot() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type testApp struct {
	router    *gin.Engine
	db        *gorm.DB
	clock     *settableClock
	publisher *recordingPublisher
	loc       *time.Location
}

func newTestApp(t *testing.T, mutate func(*config.Config)) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// 1. Configuration with a private in-memory database and a generous rate limit.
	cfg := config.Default()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.Database.LogLevel = "silent"
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	if mutate != nil {
		mutate(cfg)
	}

	// 2. Database with seats and rooms.
	gormDB, err := db.Init(&cfg.Database, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.EnsureResources(context.Background(), gormDB, cfg.Schedule.Seat.Count, cfg.Schedule.Room.Count, 6))

	// 3. Redis-backed locks against an in-process server.
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	locker := lock.NewRedisLocker(rdb, cfg.Lock.Wait(), cfg.Lock.TTL())

	// 4. Event pipeline with a recording publisher.
	ctx, cancel := context.WithCancel(context.Background())
	publisher := &recordingPublisher{}
	pool := events.NewWorkerPool(2, 16, publisher, zap.NewNop())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Wait()
	})

	ids, err := identity.NewValidator(cfg.Identity.Pattern, cfg.Identity.Denylist)
	require.NoError(t, err)

	policy := reservation.PolicyFromConfig(cfg.Schedule)
	clock := &settableClock{now: time.Date(2025, 3, 19, 8, 0, 0, 0, policy.Location)}
	svc := reservation.NewService(store.NewGormStore(gormDB), locker, ids, policy,
		reservation.WithClock(clock),
		reservation.WithSink(pool))

	return &testApp{
		router:    api.NewRouter(svc, cfg.Server, zap.NewNop()),
		db:        gormDB,
		clock:     clock,
		publisher: publisher,
		loc:       policy.Location,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *testApp) call(t *testing.T, method, path string, body any, wantStatus int) envelope {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	require.Equal(t, wantStatus, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func (a *testApp) usage(t *testing.T, student int64, date string) reservation.UsageView {
	t.Helper()
	env := a.call(t, "GET", fmt.Sprintf("/api/students/%d/usage?date=%s", student, date), nil, http.StatusOK)
	var u reservation.UsageView
	require.NoError(t, json.Unmarshal(env.Data, &u))
	return u
}

// TestReservationLifecycle books a seat and a group room over HTTP, cancels
// them across the start boundary and checks quotas and events at each step.
func TestReservationLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	const date = "2025-03-19" // Wednesday

	var seat, room reservation.Summary

	t.Run("Cycle 1: Bookings", func(t *testing.T) {
		env := app.call(t, "POST", "/api/seats/reservations", gin.H{
			"seatId": 5, "date": date, "startTime": "10:00", "durationHours": 2, "studentId": studentA,
		}, http.StatusCreated)
		require.NoError(t, json.Unmarshal(env.Data, &seat))

		env = app.call(t, "POST", "/api/meeting/reservations", gin.H{
			"roomId": 1, "date": date, "startTime": "13:00", "duration": 2,
			"representativeStudentId": studentB, "participantStudentIds": []int64{studentA, studentC},
		}, http.StatusCreated)
		require.NoError(t, json.Unmarshal(env.Data, &room))
		assert.Equal(t, studentB, room.RepresentativeID)

		u := app.usage(t, studentA, date)
		assert.Equal(t, 2, u.SeatDailyUsed)
		assert.Equal(t, 2, u.RoomDailyUsed)
		assert.Equal(t, 2, u.RoomWeeklyUsed)
	})

	t.Run("Cycle 2: Conflicts are rejected", func(t *testing.T) {
		env := app.call(t, "POST", "/api/seats/reservations", gin.H{
			"seatId": 6, "date": date, "startTime": "14:00", "durationHours": 1, "studentId": studentA,
		}, http.StatusConflict)
		assert.Equal(t, "OVERLAPPING_RESERVATION", env.Error.Code)

		env = app.call(t, "POST", "/api/meeting/reservations", gin.H{
			"roomId": 2, "date": date, "startTime": "16:00", "duration": 1,
			"representativeStudentId": studentC, "participantStudentIds": []int64{studentA, studentB},
		}, http.StatusBadRequest)
		assert.Equal(t, "ROOM_DAILY_LIMIT_EXCEEDED", env.Error.Code)

		// Nothing was written by the rejected requests.
		var count int64
		require.NoError(t, app.db.Model(&model.Reservation{}).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})

	t.Run("Cycle 3: Cancellation after start", func(t *testing.T) {
		app.clock.Set(time.Date(2025, 3, 19, 13, 30, 0, 0, app.loc))

		env := app.call(t, "DELETE", fmt.Sprintf("/api/seats/reservations/%d?studentId=%d", seat.ID, studentA), nil, http.StatusConflict)
		assert.Equal(t, "SEAT_ALREADY_IN_USE", env.Error.Code)

		env = app.call(t, "DELETE", fmt.Sprintf("/api/meeting/reservations/%d?studentId=%d", room.ID, studentB), nil, http.StatusOK)
		var res reservation.CancelResult
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.False(t, res.Refunded)
		assert.Equal(t, model.StatusCanceledPenalty, res.Status)

		// A penalty charges the hours again to every participant.
		for _, id := range []int64{studentA, studentB, studentC} {
			u := app.usage(t, id, date)
			assert.Equal(t, 4, u.RoomDailyUsed, "student %d", id)
			assert.Equal(t, 4, u.RoomWeeklyUsed, "student %d", id)
		}

		env = app.call(t, "GET", "/api/meeting/reservations?date="+date, nil, http.StatusOK)
		var schedules []reservation.RoomSchedule
		require.NoError(t, json.Unmarshal(env.Data, &schedules))
		require.Len(t, schedules, 3)
		assert.Empty(t, schedules[0].Reservations)
	})

	t.Run("Cycle 4: Next day", func(t *testing.T) {
		app.clock.Set(time.Date(2025, 3, 20, 8, 0, 0, 0, app.loc))

		u := app.usage(t, studentA, "2025-03-20")
		assert.Zero(t, u.SeatDailyUsed)
		assert.Zero(t, u.RoomDailyUsed)
		assert.Equal(t, 4, u.RoomWeeklyUsed, "weekly usage carries within the week")

		u = app.usage(t, studentA, "2025-03-24")
		assert.Zero(t, u.RoomWeeklyUsed, "a new week starts on Monday")
	})

	t.Run("Cycle 5: Events were published", func(t *testing.T) {
		require.Eventually(t, func() bool { return len(app.publisher.Snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)

		var created, canceled int
		for _, e := range app.publisher.Snapshot() {
			switch e.Type {
			case events.ReservationCreated:
				created++
			case events.ReservationCanceled:
				canceled++
				assert.Equal(t, room.ID, e.ReservationID)
				assert.False(t, e.Refunded)
				assert.ElementsMatch(t, []int64{studentB, studentA, studentC}, e.Participants)
			}
		}
		assert.Equal(t, 2, created)
		assert.Equal(t, 1, canceled)
	})
}

// TestReservationLifecycle_DeleteMode checks that canceled reservations are
// removed outright when configured to, after their quota is refunded.
func TestReservationLifecycle_DeleteMode(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) {
		cfg.Schedule.CancelMode = config.CancelModeDelete
	})
	const date = "2025-03-19"

	env := app.call(t, "POST", "/api/seats/reservations/random", gin.H{
		"date": date, "startTime": "09:00", "durationHours": 2, "studentId": studentA,
	}, http.StatusCreated)
	var seat reservation.Summary
	require.NoError(t, json.Unmarshal(env.Data, &seat))

	env = app.call(t, "DELETE", fmt.Sprintf("/api/seats/reservations/%d?studentId=%d", seat.ID, studentA), nil, http.StatusOK)
	var res reservation.CancelResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Refunded)
	assert.Equal(t, model.StatusCanceledRefund, res.Status)

	assert.Zero(t, app.usage(t, studentA, date).SeatDailyUsed)

	var count int64
	require.NoError(t, app.db.Model(&model.Reservation{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, app.db.Model(&model.ReservationParticipant{}).Count(&count).Error)
	assert.Zero(t, count)

	env = app.call(t, "GET", fmt.Sprintf("/api/seats/reservations?studentId=%d", studentA), nil, http.StatusOK)
	assert.JSONEq(t, `[]`, string(env.Data))

	// The id is gone, so a second cancel cannot find it.
	env = app.call(t, "DELETE", fmt.Sprintf("/api/seats/reservations/%d?studentId=%d", seat.ID, studentA), nil, http.StatusNotFound)
	assert.Equal(t, "RESERVATION_NOT_FOUND", env.Error.Code)
}
