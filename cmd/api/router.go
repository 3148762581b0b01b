package api

import (
	"net/http"

	campaignDelivery "outreach-backend/internal/campaign/delivery"
	followupDelivery "outreach-backend/internal/followup/delivery"
	"outreach-backend/internal/jobs"
	trackingDelivery "outreach-backend/internal/tracking/delivery"
	"outreach-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	cfg *config.Config,
	campaignHandler *campaignDelivery.CampaignHandler,
	followupHandler *followupDelivery.FollowupHandler,
	pixelHandler *trackingDelivery.PixelHandler,
	triggerHandler *jobs.TriggerHandler,
) {
	// Public tracking pixel, hit by recipients' mail clients
	r.GET("/t/:token", pixelHandler.TrackOpen)

	api := r.Group("/api")
	{
		// Health check
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Campaign lifecycle
		campaigns := api.Group("/campaigns")
		{
			campaigns.POST("", campaignHandler.CreateCampaign)
			campaigns.GET("/shared/:token", campaignHandler.GetSharedCampaign)
			campaigns.GET("/:id", campaignHandler.GetCampaign)
			campaigns.GET("/:id/stats", campaignHandler.GetCampaignStats)
			campaigns.POST("/:id/pause", campaignHandler.PauseCampaign)
			campaigns.POST("/:id/resume", campaignHandler.ResumeCampaign)
			campaigns.POST("/:id/complete", campaignHandler.CompleteCampaign)
			campaigns.POST("/:id/reschedule", campaignHandler.RescheduleCampaign)

			// Follow-ups are scoped to a campaign
			campaigns.GET("/:id/followups/candidates", followupHandler.GetCandidates)
			campaigns.POST("/:id/followups", followupHandler.SendFollowups)
		}

		// Recipient-level operations
		recipients := api.Group("/recipients")
		{
			recipients.POST("/:id/retry", campaignHandler.RetryRecipient)
		}

		// Job triggers for external schedulers (shared-secret protected)
		triggers := api.Group("/jobs")
		triggers.Use(jobs.TriggerAuthMiddleware(cfg.JobTriggerSecret))
		{
			triggers.POST("/:name/run", triggerHandler.Run)
		}
	}
}
