package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rfidattend/internal/attendance"
)

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported as 500.
func (h *handler) writeError(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, attendance.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, attendance.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, attendance.ErrStudentNotFound):
		status, msg = http.StatusNotFound, "student not found"
	case errors.Is(err, attendance.ErrBadgeTaken):
		status, msg = http.StatusConflict, "badge id already assigned"
	case errors.Is(err, attendance.ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, "store unavailable, retry later"
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func validationFailed(c *gin.Context, fields map[string]string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
}
