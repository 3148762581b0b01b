package api

import (
	campaignDelivery "outreach-backend/internal/campaign/delivery"
	followupDelivery "outreach-backend/internal/followup/delivery"
	"outreach-backend/internal/jobs"
	trackingDelivery "outreach-backend/internal/tracking/delivery"
	"outreach-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	router *gin.Engine
}

// NewHandler builds the gin engine with all routes wired.
func NewHandler(
	cfg *config.Config,
	campaignHandler *campaignDelivery.CampaignHandler,
	followupHandler *followupDelivery.FollowupHandler,
	pixelHandler *trackingDelivery.PixelHandler,
	triggerHandler *jobs.TriggerHandler,
) *Handler {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	SetupRoutes(r, cfg, campaignHandler, followupHandler, pixelHandler, triggerHandler)

	return &Handler{router: r}
}

// Start runs the HTTP server
func (h *Handler) Start(addr string) error {
	return h.router.Run(addr)
}
