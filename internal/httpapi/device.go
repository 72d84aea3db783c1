package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rfidattend/internal/attendance"
)

// deviceResponse is the payload the scanner firmware understands.
type deviceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Student string `json:"student,omitempty"`
}

type deviceRequest struct {
	RFID   string `json:"rfid"`
	APIKey string `json:"apiKey"`
}

// deviceCheckIn handles badge scans. The key comes from the body or the
// X-API-Key header; authorization runs before anything else.
func (h *handler) deviceCheckIn(c *gin.Context) {
	var req deviceRequest
	// a malformed body is treated as empty and fails authorization
	_ = c.ShouldBindJSON(&req)
	key := req.APIKey
	if key == "" {
		key = c.GetHeader("X-API-Key")
	}

	if err := h.Guard.Authorize(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusUnauthorized, deviceResponse{Message: "Unauthorized"})
		return
	}
	if strings.TrimSpace(req.RFID) == "" {
		c.JSON(http.StatusBadRequest, deviceResponse{Message: "RFID is required"})
		return
	}

	res, err := h.Service.CheckIn(c.Request.Context(), req.RFID, attendance.SourceDevice)
	switch {
	case errors.Is(err, attendance.ErrValidation):
		c.JSON(http.StatusBadRequest, deviceResponse{Message: "RFID is required"})
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, deviceResponse{Message: "Service temporarily unavailable"})
	case res.Outcome == attendance.OutcomeStudentNotFound:
		c.JSON(http.StatusNotFound, deviceResponse{Message: "Student not found"})
	case res.Outcome == attendance.OutcomeAlreadyCheckedIn:
		c.JSON(http.StatusOK, deviceResponse{Success: true, Message: "Already checked in", Student: res.StudentName})
	default:
		c.JSON(http.StatusOK, deviceResponse{Success: true, Message: "Checked in " + res.StudentName, Student: res.StudentName})
	}
}

func (h *handler) seed(c *gin.Context) {
	seeded, err := h.Service.Seed(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, deviceResponse{Message: "Internal server error during seeding."})
		return
	}
	msg := "Students collection already contains data."
	if seeded {
		msg = "Initial student data seeded successfully."
	}
	c.JSON(http.StatusOK, deviceResponse{Success: true, Message: msg})
}
