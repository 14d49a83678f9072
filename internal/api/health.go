package api

import (
	"context"
	"net/http"

	apperrors "companion-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// GatewayPinger checks the remote completion API
type GatewayPinger interface {
	Ping(ctx context.Context) error
	Model() string
}

type GatewayController struct {
	gateway GatewayPinger
}

func NewGatewayController(gateway GatewayPinger) *GatewayController {
	return &GatewayController{gateway: gateway}
}

func (h *GatewayController) RegisterRoutes(v2 *gin.RouterGroup) {
	v2.GET("/gateway/ping", h.Ping)
}

// Ping sends a minimal chat request to the remote API
func (h *GatewayController) Ping(c *gin.Context) {
	if err := h.gateway.Ping(c.Request.Context()); err != nil {
		c.Error(apperrors.Gateway(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"model":   h.gateway.Model(),
		"message": "remote API reachable",
	})
}
