package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rfidattend/internal/attendance"
	"rfidattend/internal/validator"
)

type manualCheckInRequest struct {
	BadgeID string `json:"badge_id" binding:"required,notblank"`
}

// manualCheckIn runs the same reconciliation as a scan, for operators
// entering a badge by hand.
func (h *handler) manualCheckIn(c *gin.Context) {
	var req manualCheckInRequest
	if fields := validator.Bind(c, &req); fields != nil {
		validationFailed(c, fields)
		return
	}
	res, err := h.Service.CheckIn(c.Request.Context(), req.BadgeID, attendance.SourceManual)
	if err != nil {
		h.writeError(c, err)
		return
	}
	switch res.Outcome {
	case attendance.OutcomeSuccess:
		c.JSON(http.StatusCreated, res)
	case attendance.OutcomeStudentNotFound:
		c.JSON(http.StatusNotFound, res)
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (h *handler) dayLog(c *gin.Context) {
	w := h.Service.Today()
	if day := c.Query("day"); day != "" {
		var err error
		if w, err = attendance.DayWindowFor(day, h.Service.Location()); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD"})
			return
		}
	}
	entries, err := h.Service.DayLog(c.Request.Context(), w)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": w.Day(), "entries": entries})
}

func (h *handler) summary(c *gin.Context) {
	sum, err := h.Service.Summary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *handler) trend(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}
	points, err := h.Service.Trend(c.Request.Context(), days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}
