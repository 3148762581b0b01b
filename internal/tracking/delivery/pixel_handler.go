package delivery

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// transparentGIF is a 1x1 transparent image served on every pixel request.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// OpenRecorder resolves a tracking token and records the open.
type OpenRecorder interface {
	RecordOpen(token string) error
}

// PixelHandler serves the public open-tracking endpoint. It is invoked by
// arbitrary third-party mail clients, so it carries no authentication and
// must answer with the image no matter what goes wrong internally.
type PixelHandler struct {
	tracker OpenRecorder
}

// NewPixelHandler creates a new PixelHandler
func NewPixelHandler(tracker OpenRecorder) *PixelHandler {
	return &PixelHandler{tracker: tracker}
}

// TrackOpen records an open for the opaque token in the path.
// GET /t/:token  (token carries a .gif suffix so clients render it inline)
func (h *PixelHandler) TrackOpen(c *gin.Context) {
	token := strings.TrimSuffix(c.Param("token"), ".gif")

	if err := h.tracker.RecordOpen(token); err != nil {
		// Tracking failures must never surface to the mail client.
		log.Printf("[Tracker] Open not recorded: %v", err)
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(http.StatusOK, "image/gif", transparentGIF)
}
