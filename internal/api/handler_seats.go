package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"studyspace-reservation/internal/model"
	"studyspace-reservation/internal/reservation"
)

type createSeatRequest struct {
	SeatID        int64  `json:"seatId"`
	Date          string `json:"date" binding:"required"`
	StartTime     string `json:"startTime" binding:"required"`
	DurationHours int    `json:"durationHours"`
	StudentID     int64  `json:"studentId"`
}

type randomSeatRequest struct {
	Date          string `json:"date" binding:"required"`
	StartTime     string `json:"startTime" binding:"required"`
	DurationHours int    `json:"durationHours"`
	StudentID     int64  `json:"studentId"`
}

// SeatAvailabilityResponse lists the seats that cannot be booked for a window.
type SeatAvailabilityResponse struct {
	Date               string  `json:"date"`
	StartTime          string  `json:"startTime"`
	DurationHours      int     `json:"durationHours"`
	UnavailableSeatIDs []int64 `json:"unavailableSeatIds"`
}

// GetSeatAvailability handles GET /api/seats/availability.
func (h *Handler) GetSeatAvailability(c *gin.Context) {
	date, start := c.Query("date"), c.Query("startTime")
	hours, err := strconv.Atoi(c.Query("durationHours"))
	if date == "" || start == "" || err != nil {
		badRequest(c, "date, startTime and durationHours are required")
		return
	}

	taken, err := h.svc.Availability(c.Request.Context(), date, start, hours)
	if err != nil {
		h.fail(c, err)
		return
	}
	if taken == nil {
		taken = []int64{}
	}
	success(c, http.StatusOK, SeatAvailabilityResponse{
		Date:               date,
		StartTime:          start,
		DurationHours:      hours,
		UnavailableSeatIDs: taken,
	})
}

// GetSeatReservations handles GET /api/seats/reservations?studentId=N.
func (h *Handler) GetSeatReservations(c *gin.Context) {
	studentID, ok := int64Param(c.Query("studentId"))
	if !ok {
		badRequest(c, "studentId is required")
		return
	}
	rs, err := h.svc.ListForStudent(c.Request.Context(), studentID, model.KindSeat)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, rs)
}

// PostSeatReservation handles POST /api/seats/reservations.
func (h *Handler) PostSeatReservation(c *gin.Context) {
	var req createSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	sum, err := h.svc.CreateSeat(c.Request.Context(), reservation.SeatRequest{
		SeatID:        req.SeatID,
		Date:          req.Date,
		StartTime:     req.StartTime,
		DurationHours: req.DurationHours,
		StudentID:     req.StudentID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusCreated, sum)
}

// PostRandomSeatReservation handles POST /api/seats/reservations/random.
func (h *Handler) PostRandomSeatReservation(c *gin.Context) {
	var req randomSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	sum, err := h.svc.CreateRandomSeat(c.Request.Context(), reservation.RandomSeatRequest{
		Date:          req.Date,
		StartTime:     req.StartTime,
		DurationHours: req.DurationHours,
		StudentID:     req.StudentID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusCreated, sum)
}

// DeleteSeatReservation handles DELETE /api/seats/reservations/:id.
func (h *Handler) DeleteSeatReservation(c *gin.Context) {
	h.cancel(c, model.KindSeat)
}

func (h *Handler) cancel(c *gin.Context, kind model.ReservationKind) {
	id, ok := int64Param(c.Param("id"))
	if !ok {
		badRequest(c, "reservation id must be numeric")
		return
	}
	studentID, ok := int64Param(c.Query("studentId"))
	if !ok {
		badRequest(c, "studentId is required")
		return
	}

	res, err := h.svc.Cancel(c.Request.Context(), reservation.CancelRequest{
		ReservationID: id,
		StudentID:     studentID,
		Kind:          kind,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, res)
}
