package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles websocket upgrade requests.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	handler           FrameHandler
}

// NewWebSocketHandler creates a handler whose connections feed handler.
func NewWebSocketHandler(cm *ConnectionManager, handler FrameHandler) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		handler:           handler,
	}
}

// ServeHTTP upgrades the request. The room is chosen later by a join-room
// event, not by the URL.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := h.connectionManager.UpgradeConnection(w, r, h.handler); err != nil {
		// The upgrader has already written an HTTP error response.
		log.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade websocket connection")
	}
}
