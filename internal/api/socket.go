package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stwalsh4118/airwave/internal/broadcast"
	"github.com/stwalsh4118/airwave/internal/logger"
)

// socketHub defines what SocketHandler needs from the broadcaster
type socketHub interface {
	Serve(ctx context.Context, conn broadcast.Conn) error
}

// SocketHandler upgrades listeners to the real-time sync channel
type SocketHandler struct {
	hub      socketHub
	upgrader websocket.Upgrader
}

// NewSocketHandler creates a new socket handler instance
func NewSocketHandler(hub socketHub) *SocketHandler {
	return &SocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // same policy as CORS
		},
	}
}

// Connect handles GET /socket
func (h *SocketHandler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied with an error status
		logger.Log.Warn().
			Err(err).
			Str("client_ip", c.ClientIP()).
			Msg("WebSocket upgrade failed")
		return
	}

	if err := h.hub.Serve(c.Request.Context(), conn); err != nil {
		logger.Log.Error().
			Err(err).
			Str("client_ip", c.ClientIP()).
			Msg("WebSocket session failed")
	}
}

// SetupSocketRoutes registers the real-time sync route
func SetupSocketRoutes(router gin.IRoutes, hub socketHub) {
	handler := NewSocketHandler(hub)
	router.GET("/socket", handler.Connect)
}
