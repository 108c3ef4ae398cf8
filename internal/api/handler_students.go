package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStudentUsage handles GET /api/students/:studentId/usage?date=YYYY-MM-DD.
func (h *Handler) GetStudentUsage(c *gin.Context) {
	studentID, ok := int64Param(c.Param("studentId"))
	if !ok {
		badRequest(c, "studentId must be numeric")
		return
	}
	date := c.Query("date")
	if date == "" {
		badRequest(c, "date is required")
		return
	}

	usage, err := h.svc.Usage(c.Request.Context(), studentID, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, usage)
}
