package delivery

import (
	"net/http"
	"time"

	"outreach-backend/internal/campaign/domain"
	"outreach-backend/internal/campaign/usecase"

	"github.com/gin-gonic/gin"
)

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignUsecase usecase.CampaignUsecase
	aggregator      *usecase.StatsAggregator
}

// NewCampaignHandler creates a new CampaignHandler
func NewCampaignHandler(campaignUsecase usecase.CampaignUsecase, aggregator *usecase.StatsAggregator) *CampaignHandler {
	return &CampaignHandler{
		campaignUsecase: campaignUsecase,
		aggregator:      aggregator,
	}
}

// CreateCampaignRequest represents the request body for creating a campaign
type CreateCampaignRequest struct {
	ClientID       string                 `json:"client_id" binding:"required"`
	Name           string                 `json:"name" binding:"required"`
	EmailSubject   string                 `json:"email_subject" binding:"required"`
	EmailBody      string                 `json:"email_body" binding:"required"`
	RecipientTypes []string               `json:"recipient_types"`
	Schedule       domain.SchedulePolicy  `json:"schedule" binding:"required"`
	Contacts       []usecase.ContactInput `json:"contacts" binding:"required"`
}

// CreateCampaign creates a campaign and schedules its recipients
// POST /api/campaigns
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign, err := h.campaignUsecase.CreateCampaign(req.ClientID, req.Name, req.EmailSubject, req.EmailBody, req.RecipientTypes, req.Schedule, req.Contacts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

// GetCampaign returns a campaign by ID
// GET /api/campaigns/:id
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	campaign, err := h.campaignUsecase.GetCampaign(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if campaign == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return
	}

	c.JSON(http.StatusOK, campaign)
}

// GetSharedCampaign returns a read-only campaign view for a share token
// GET /api/campaigns/shared/:token
func (h *CampaignHandler) GetSharedCampaign(c *gin.Context) {
	campaign, err := h.campaignUsecase.GetCampaignByShareToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid share link"})
		return
	}
	if campaign == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return
	}

	// Shared view exposes progress, not credentials or tokens.
	c.JSON(http.StatusOK, gin.H{
		"id":     campaign.ID,
		"name":   campaign.Name,
		"status": campaign.Status,
		"stats":  campaign.Stats,
	})
}

// GetCampaignStats recomputes and returns the campaign's stats snapshot
// GET /api/campaigns/:id/stats
func (h *CampaignHandler) GetCampaignStats(c *gin.Context) {
	campaign, err := h.campaignUsecase.GetCampaign(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if campaign == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return
	}

	snapshot, err := h.aggregator.RecomputeCampaign(campaign)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// PauseCampaign suspends dispatching for a campaign
// POST /api/campaigns/:id/pause
func (h *CampaignHandler) PauseCampaign(c *gin.Context) {
	if err := h.campaignUsecase.Pause(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.CampaignStatusPaused)})
}

// ResumeCampaign resumes a paused campaign
// POST /api/campaigns/:id/resume
func (h *CampaignHandler) ResumeCampaign(c *gin.Context) {
	if err := h.campaignUsecase.Resume(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.CampaignStatusActive)})
}

// CompleteCampaign marks a campaign completed
// POST /api/campaigns/:id/complete
func (h *CampaignHandler) CompleteCampaign(c *gin.Context) {
	if err := h.campaignUsecase.Complete(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.CampaignStatusCompleted)})
}

// RescheduleCampaign recomputes future send slots for pending recipients
// POST /api/campaigns/:id/reschedule
func (h *CampaignHandler) RescheduleCampaign(c *gin.Context) {
	var req struct {
		Actor string `json:"actor"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Actor == "" {
		req.Actor = "api"
	}

	count, err := h.campaignUsecase.Reschedule(c.Param("id"), req.Actor)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rescheduled":    count,
		"rescheduled_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// RetryRecipient resets a failed recipient for a fresh send attempt
// POST /api/recipients/:id/retry
func (h *CampaignHandler) RetryRecipient(c *gin.Context) {
	if err := h.campaignUsecase.RetryRecipient(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "pending"})
}
