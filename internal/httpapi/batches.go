package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rfidattend/internal/auth"
	"rfidattend/internal/queue"
)

type archiveRequest struct {
	Name string `json:"name" binding:"max=120"`
}

func (h *handler) listBatches(c *gin.Context) {
	batches, err := h.Service.ListBatches(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// requestArchive queues an archive run. The body is optional.
func (h *handler) requestArchive(c *gin.Context) {
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	claims, _ := auth.ClaimsFrom(c)
	payload, err := json.Marshal(queue.ArchivePayload{
		Name:        strings.TrimSpace(req.Name),
		RequestedBy: claims.Subject,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	job := queue.Job{
		Kind:       queue.KindArchive,
		ID:         uuid.NewString(),
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := h.Queue.Publish(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to enqueue archive job")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable, retry later"})
		return
	}
	h.log.Info().Str("job_id", job.ID).Str("requested_by", claims.Subject).Msg("archive job queued")
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": "queued"})
}

func (h *handler) deviceKeyStatus(c *gin.Context) {
	configured, updatedAt, err := h.Guard.KeyStatus(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := gin.H{"configured": configured}
	if configured {
		resp["updated_at"] = updatedAt
	}
	c.JSON(http.StatusOK, resp)
}

// rotateDeviceKey returns the new key once; it is never readable again.
func (h *handler) rotateDeviceKey(c *gin.Context) {
	setting, err := h.Guard.GenerateKey(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"api_key": setting.Value, "updated_at": setting.UpdatedAt})
}
