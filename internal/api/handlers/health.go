package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/campaign-automation/pkg/utils"
	"github.com/frostdev-ops/campaign-automation/pkg/version"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Build     version.BuildInfo `json:"build"`
	Clients   *int              `json:"websocket_clients,omitempty"`
}

// GetHealth reports liveness and build information
func (h *Handlers) GetHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().Format(time.RFC3339),
		Build:     version.GetBuildInfo(),
	}
	if h.connections != nil {
		n := h.connections.GetClientCount()
		resp.Clients = &n
	}
	utils.SendSuccess(c, resp)
}
