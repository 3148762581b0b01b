package jobs

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TriggerAuthMiddleware guards the job trigger surface with a shared-secret
// bearer token, for deployments where a managed scheduler invokes the jobs
// over HTTP instead of the local tickers.
func TriggerAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job triggers are not configured"})
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] != secret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid trigger token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// TriggerHandler exposes registered jobs as HTTP endpoints.
type TriggerHandler struct {
	runner *Runner
}

// NewTriggerHandler creates a new TriggerHandler
func NewTriggerHandler(runner *Runner) *TriggerHandler {
	return &TriggerHandler{runner: runner}
}

// Run executes one job by name.
// POST /api/jobs/:name/run
func (h *TriggerHandler) Run(c *gin.Context) {
	name := c.Param("name")

	if err := h.runner.RunJob(c.Request.Context(), name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": name, "status": "completed"})
}
