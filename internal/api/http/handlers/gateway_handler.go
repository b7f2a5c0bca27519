package handlers

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/mythicmate/internal/gateway"
)

// GatewayHandler attaches chat adapters over a websocket.
type GatewayHandler struct {
	bridge *gateway.Bridge
	logger *zap.Logger
}

// NewGatewayHandler constructs handler.
func NewGatewayHandler(bridge *gateway.Bridge, logger *zap.Logger) *GatewayHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayHandler{bridge: bridge, logger: logger}
}

// RequireUpgrade rejects plain HTTP requests on the gateway path.
func (h *GatewayHandler) RequireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Handle GET /gateway.
func (h *GatewayHandler) Handle() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		if err := h.bridge.Serve(context.Background(), conn); err != nil {
			h.logger.Info("gateway connection ended", zap.Error(err))
		}
	})
}
