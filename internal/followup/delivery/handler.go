package delivery

import (
	"net/http"
	"time"

	"outreach-backend/internal/followup/usecase"

	"github.com/gin-gonic/gin"
)

// FollowupHandler handles follow-up HTTP requests
type FollowupHandler struct {
	engine *usecase.Engine
}

// NewFollowupHandler creates a new FollowupHandler
func NewFollowupHandler(engine *usecase.Engine) *FollowupHandler {
	return &FollowupHandler{engine: engine}
}

// GetCandidates returns the stale-recipient sets for a campaign
// GET /api/campaigns/:id/followups/candidates
func (h *FollowupHandler) GetCandidates(c *gin.Context) {
	candidates, err := h.engine.DiscoverCandidates(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, candidates)
}

// SendFollowupsRequest represents the request body for queueing follow-ups
type SendFollowupsRequest struct {
	RecipientIDs []string `json:"recipient_ids" binding:"required"`
	Subject      string   `json:"subject" binding:"required"`
	Body         string   `json:"body"`
	SendAt       *string  `json:"send_at"`
}

// SendFollowups queues a follow-up email for each selected recipient
// POST /api/campaigns/:id/followups
func (h *FollowupHandler) SendFollowups(c *gin.Context) {
	var req SendFollowupsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sendAt *time.Time
	if req.SendAt != nil {
		parsed, err := time.Parse(time.RFC3339, *req.SendAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "send_at must be RFC3339"})
			return
		}
		sendAt = &parsed
	}

	created, err := h.engine.QueueFollowups(c.Param("id"), req.RecipientIDs, req.Subject, req.Body, sendAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "queued": len(created)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"queued": len(created), "followups": created})
}
