package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studyspace-reservation/config"
	"studyspace-reservation/internal/db"
	"studyspace-reservation/internal/identity"
	"studyspace-reservation/internal/lock"
	"studyspace-reservation/internal/reservation"
	"studyspace-reservation/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return setupRouterWith(t, nil)
}

func setupRouterWith(t *testing.T, mutate func(*config.ServerConfig)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.Database.LogLevel = "silent"
	gdb, err := db.Init(&cfg.Database, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.EnsureResources(t.Context(), gdb, cfg.Schedule.Seat.Count, cfg.Schedule.Room.Count, 6))

	ids, err := identity.NewValidator(cfg.Identity.Pattern, cfg.Identity.Denylist)
	require.NoError(t, err)

	policy := reservation.PolicyFromConfig(cfg.Schedule)
	now := time.Date(2025, 3, 18, 12, 0, 0, 0, policy.Location)
	svc := reservation.NewService(store.NewGormStore(gdb), lock.NewLocalLocker(time.Second), ids, policy,
		reservation.WithClock(fixedClock{now: now}))

	server := cfg.Server
	server.RateLimitPerSec = 1000
	server.RateLimitBurst = 1000
	if mutate != nil {
		mutate(&server)
	}
	return NewRouter(svc, server, zap.NewNop())
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func TestStatusOf(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{reservation.ErrInvalidStudentID, http.StatusBadRequest},
		{reservation.ErrInvalidRequest, http.StatusBadRequest},
		{reservation.ErrOutOfOperatingHours, http.StatusBadRequest},
		{reservation.ErrInvalidDuration, http.StatusBadRequest},
		{reservation.ErrInvalidParticipantCount, http.StatusBadRequest},
		{reservation.ErrRoomWeeklyLimitExceeded, http.StatusBadRequest},
		{reservation.ErrNoCancelPermission, http.StatusForbidden},
		{reservation.ErrSeatNotFound, http.StatusNotFound},
		{reservation.ErrReservationNotFound, http.StatusNotFound},
		{reservation.ErrOverlappingReservation, http.StatusConflict},
		{reservation.ErrNoAvailableSeats, http.StatusConflict},
		{reservation.ErrAlreadyCanceled, http.StatusConflict},
		{reservation.ErrSeatAlreadyInUse, http.StatusConflict},
		{reservation.ErrRoomAlreadyInUse, http.StatusConflict},
		{reservation.ErrBusy, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", reservation.ErrRoomNotFound), http.StatusNotFound},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.expected, statusOf(tc.err))
		})
	}
}

func TestHealth(t *testing.T) {
	r := setupRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestResponseCaching(t *testing.T) {
	const availability = "/api/seats/availability?date=2025-03-19&startTime=10:00&durationHours=1"

	t.Run("Enabled", func(t *testing.T) {
		r := setupRouter(t)
		do(t, r, "GET", availability, nil)
		w, _ := do(t, r, "GET", availability, nil)
		assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	})

	t.Run("Zero ttl disables it", func(t *testing.T) {
		r := setupRouterWith(t, func(s *config.ServerConfig) { s.CacheTTLSeconds = 0 })
		do(t, r, "GET", availability, nil)
		w, _ := do(t, r, "GET", availability, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-Cache"))
	})
}

func TestBadRequests(t *testing.T) {
	r := setupRouter(t)

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"Availability without window", "GET", "/api/seats/availability?date=2025-03-19", nil},
		{"Seat list without student", "GET", "/api/seats/reservations", nil},
		{"Seat booking without date", "POST", "/api/seats/reservations", gin.H{"seatId": 1, "studentId": 202300001}},
		{"Random seat without start", "POST", "/api/seats/reservations/random", gin.H{"date": "2025-03-19"}},
		{"Cancel with non-numeric id", "DELETE", "/api/seats/reservations/abc?studentId=202300001", nil},
		{"Cancel without student", "DELETE", "/api/meeting/reservations/1", nil},
		{"Meeting list without filter", "GET", "/api/meeting/reservations", nil},
		{"Usage without date", "GET", "/api/students/202300001/usage", nil},
		{"Malformed date", "GET", "/api/meeting/reservations?date=19-03-2025", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, env := do(t, r, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
		})
	}
}

func TestSeatEndpoints(t *testing.T) {
	r := setupRouter(t)
	const availability = "/api/seats/availability?date=2025-03-19&startTime=10:00&durationHours=2"

	w, env := do(t, r, "GET", availability, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"date":"2025-03-19","startTime":"10:00","durationHours":2,"unavailableSeatIds":[]}`, string(env.Data))

	w, env = do(t, r, "POST", "/api/seats/reservations", gin.H{
		"seatId": 7, "date": "2025-03-19", "startTime": "10:00", "durationHours": 2, "studentId": 202300001,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created reservation.Summary
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, int64(7), created.ResourceID)
	assert.Equal(t, "12:00", created.EndTime)
	assert.Equal(t, []int64{202300001}, created.ParticipantIDs)

	// The write flushed the cached availability.
	w, env = do(t, r, "GET", availability, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"unavailableSeatIds":[7]`)

	w, env = do(t, r, "POST", "/api/seats/reservations", gin.H{
		"seatId": 7, "date": "2025-03-19", "startTime": "11:00", "durationHours": 1, "studentId": 202300002,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SEAT_ALREADY_RESERVED", env.Error.Code)

	w, env = do(t, r, "POST", "/api/seats/reservations", gin.H{
		"seatId": 71, "date": "2025-03-19", "startTime": "11:00", "durationHours": 1, "studentId": 202300002,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SEAT_NOT_FOUND", env.Error.Code)

	w, env = do(t, r, "POST", "/api/seats/reservations", gin.H{
		"seatId": 8, "date": "2025-03-19", "startTime": "11:00", "durationHours": 1, "studentId": 202099999,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STUDENT_ID", env.Error.Code)

	w, env = do(t, r, "GET", "/api/seats/reservations?studentId=202300001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []reservation.Summary
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)

	cancelPath := fmt.Sprintf("/api/seats/reservations/%d", created.ID)

	w, env = do(t, r, "DELETE", cancelPath+"?studentId=202300002", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NO_CANCEL_PERMISSION", env.Error.Code)

	w, env = do(t, r, "DELETE", fmt.Sprintf("/api/meeting/reservations/%d?studentId=202300001", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RESERVATION_NOT_FOUND", env.Error.Code)

	w, env = do(t, r, "DELETE", cancelPath+"?studentId=202300001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"reservationId":%d,"refunded":true,"status":"CANCELED_REFUND"}`, created.ID), string(env.Data))

	w, env = do(t, r, "DELETE", cancelPath+"?studentId=202300001", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_CANCELED_RESERVATION", env.Error.Code)

	w, env = do(t, r, "GET", availability, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"unavailableSeatIds":[]`)
}

func TestRandomSeatEndpoint(t *testing.T) {
	r := setupRouter(t)

	w, env := do(t, r, "POST", "/api/seats/reservations/random", gin.H{
		"date": "2025-03-19", "startTime": "09:00", "durationHours": 1, "studentId": 202300001,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created reservation.Summary
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.GreaterOrEqual(t, created.ResourceID, int64(1))
	assert.LessOrEqual(t, created.ResourceID, int64(70))

	w, env = do(t, r, "POST", "/api/seats/reservations/random", gin.H{
		"date": "2025-03-19", "startTime": "17:30", "durationHours": 1, "studentId": 202300002,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "OUT_OF_OPERATING_HOURS", env.Error.Code)
}

func TestMeetingEndpoints(t *testing.T) {
	r := setupRouter(t)

	w, env := do(t, r, "POST", "/api/meeting/reservations", gin.H{
		"roomId": 1, "date": "2025-03-19", "startTime": "13:00", "duration": 2,
		"representativeStudentId": 202300001, "participantStudentIds": []int64{202300002},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PARTICIPANT_COUNT", env.Error.Code)

	w, env = do(t, r, "POST", "/api/meeting/reservations", gin.H{
		"roomId": 1, "date": "2025-03-19", "startTime": "13:00", "duration": 2,
		"representativeStudentId": 202300001, "participantStudentIds": []int64{202300002, 202300003},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created reservation.Summary
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.ElementsMatch(t, []int64{202300001, 202300002, 202300003}, created.ParticipantIDs)

	w, env = do(t, r, "GET", "/api/meeting/reservations?date=2025-03-19", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var schedules []reservation.RoomSchedule
	require.NoError(t, json.Unmarshal(env.Data, &schedules))
	require.Len(t, schedules, 3)
	require.Len(t, schedules[0].Reservations, 1)
	assert.Equal(t, reservation.ScheduleEntry{
		ReservationID: created.ID, StartTime: "13:00", EndTime: "15:00", LeaderStudentID: 202300001,
	}, schedules[0].Reservations[0])
	assert.Empty(t, schedules[1].Reservations)

	w, env = do(t, r, "GET", "/api/meeting/reservations?studentId=202300003", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []reservation.Summary
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)

	w, env = do(t, r, "GET", "/api/students/202300002/usage?date=2025-03-19", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var usage reservation.UsageView
	require.NoError(t, json.Unmarshal(env.Data, &usage))
	assert.Equal(t, 2, usage.RoomDailyUsed)
	assert.Equal(t, 2, usage.RoomWeeklyUsed)
	assert.Equal(t, 2, usage.RoomDailyLimit)

	// Participants other than the representative may not cancel.
	cancelPath := fmt.Sprintf("/api/meeting/reservations/%d", created.ID)
	w, env = do(t, r, "DELETE", cancelPath+"?studentId=202300002", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NO_CANCEL_PERMISSION", env.Error.Code)

	w, _ = do(t, r, "DELETE", cancelPath+"?studentId=202300001", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, r, "GET", "/api/students/202300002/usage?date=2025-03-19", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &usage))
	assert.Zero(t, usage.RoomDailyUsed)
	assert.Zero(t, usage.RoomWeeklyUsed)
}
