package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"studyspace-reservation/config"
	"studyspace-reservation/internal/mw"
	"studyspace-reservation/internal/reservation"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(svc *reservation.Service, cfg config.ServerConfig, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(mw.RequestLogger(log))

	handler := NewHandler(svc, log)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	r.GET("/healthz", handler.Health)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)

	// A zero TTL turns response caching off.
	var caching gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second; ttl > 0 {
		responses := mw.NewResponseCache(ttl)
		caching = responses.Cache()
		api.Use(responses.Invalidate())
	}
	{
		seats := api.Group("/seats")
		seats.GET("/availability", caching, handler.GetSeatAvailability)
		seats.GET("/reservations", caching, handler.GetSeatReservations)
		seats.POST("/reservations", handler.PostSeatReservation)
		seats.POST("/reservations/random", handler.PostRandomSeatReservation)
		seats.DELETE("/reservations/:id", handler.DeleteSeatReservation)

		meeting := api.Group("/meeting")
		meeting.GET("/reservations", caching, handler.GetMeetingReservations)
		meeting.POST("/reservations", handler.PostMeetingReservation)
		meeting.DELETE("/reservations/:id", handler.DeleteMeetingReservation)

		api.GET("/students/:studentId/usage", handler.GetStudentUsage)
	}

	return r
}
