package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studyspace-reservation/internal/mw"
	"studyspace-reservation/internal/reservation"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc *reservation.Service
	log *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *reservation.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func failure(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": errorBody{Code: code, Message: message}})
}

var kindStatus = map[reservation.Kind]int{
	reservation.KindInvalidIdentity:          http.StatusBadRequest,
	reservation.KindInvalidRequest:           http.StatusBadRequest,
	reservation.KindOperatingHours:           http.StatusBadRequest,
	reservation.KindInvalidDuration:          http.StatusBadRequest,
	reservation.KindInsufficientParticipants: http.StatusBadRequest,
	reservation.KindQuotaExceeded:            http.StatusBadRequest,
	reservation.KindPermissionDenied:         http.StatusForbidden,
	reservation.KindResourceNotFound:         http.StatusNotFound,
	reservation.KindReservationNotFound:      http.StatusNotFound,
	reservation.KindScheduleConflict:         http.StatusConflict,
	reservation.KindNoAvailableResource:      http.StatusConflict,
	reservation.KindAlreadyCanceled:          http.StatusConflict,
	reservation.KindAlreadyFinished:          http.StatusConflict,
	reservation.KindBusy:                     http.StatusConflict,
}

// statusOf maps a service error to its HTTP status.
func statusOf(err error) int {
	if status, ok := kindStatus[reservation.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// fail writes err in the error envelope. Internal failures are logged and
// their detail is not exposed.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		h.log.Error("request failed",
			zap.String("request_id", mw.RequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		failure(c, status, "INTERNAL_SERVER_ERROR", "internal server error")
		return
	}

	var e *reservation.Error
	if errors.As(err, &e) {
		failure(c, status, e.Code, e.Message)
	}
}

func badRequest(c *gin.Context, message string) {
	failure(c, http.StatusBadRequest, reservation.ErrInvalidRequest.Code, message)
}

// int64Param parses a numeric path or query value.
func int64Param(raw string) (int64, bool) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
