package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studyspace-reservation/internal/model"
	"studyspace-reservation/internal/reservation"
)

type createMeetingRequest struct {
	RoomID           int64   `json:"roomId"`
	Date             string  `json:"date" binding:"required"`
	StartTime        string  `json:"startTime" binding:"required"`
	Duration         int     `json:"duration"`
	RepresentativeID int64   `json:"representativeStudentId"`
	ParticipantIDs   []int64 `json:"participantStudentIds"`
}

// GetMeetingReservations handles GET /api/meeting/reservations. With a date
// it returns every room's schedule; with a studentId it returns that
// student's room reservations.
func (h *Handler) GetMeetingReservations(c *gin.Context) {
	if date := c.Query("date"); date != "" {
		schedules, err := h.svc.RoomSchedules(c.Request.Context(), date)
		if err != nil {
			h.fail(c, err)
			return
		}
		success(c, http.StatusOK, schedules)
		return
	}

	studentID, ok := int64Param(c.Query("studentId"))
	if !ok {
		badRequest(c, "date or studentId is required")
		return
	}
	rs, err := h.svc.ListForStudent(c.Request.Context(), studentID, model.KindRoom)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, rs)
}

// PostMeetingReservation handles POST /api/meeting/reservations.
func (h *Handler) PostMeetingReservation(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	sum, err := h.svc.CreateRoom(c.Request.Context(), reservation.RoomRequest{
		RoomID:           req.RoomID,
		Date:             req.Date,
		StartTime:        req.StartTime,
		DurationHours:    req.Duration,
		RepresentativeID: req.RepresentativeID,
		ParticipantIDs:   req.ParticipantIDs,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusCreated, sum)
}

// DeleteMeetingReservation handles DELETE /api/meeting/reservations/:id.
func (h *Handler) DeleteMeetingReservation(c *gin.Context) {
	h.cancel(c, model.KindRoom)
}
