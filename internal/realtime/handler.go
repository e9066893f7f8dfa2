package realtime

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mmynk/splitledger/internal/middleware"
)

// AuthorizeFunc decides whether a user may attach to a channel. The facade
// owns the policy; the handler only enforces its answer.
type AuthorizeFunc func(ctx context.Context, channelID, userID string) error

// Handler upgrades HTTP requests to WebSocket sessions and attaches them to
// their channel's hub. Requests must already carry an authenticated user ID
// in the context (see middleware.RequireAuth).
type Handler struct {
	registry  *Registry
	authorize AuthorizeFunc
	upgrader  websocket.Upgrader
}

// NewHandler creates a Handler. authorize may be nil to allow any
// authenticated user onto any channel (single-tenant deployments).
func NewHandler(registry *Registry, authorize AuthorizeFunc) *Handler {
	return &Handler{
		registry:  registry,
		authorize: authorize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients authenticate with a signed token; origin
			// checks belong to the deployment's proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the session pumps. The channel
// comes from the "channel" query parameter (a group ID); absent that, the
// session attaches to the user's personal stream.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	channelID := r.URL.Query().Get("channel")
	if channelID == "" {
		channelID = UserChannel(userID)
	}

	if h.authorize != nil {
		if err := h.authorize(r.Context(), channelID, userID); err != nil {
			slog.Warn("Channel attach denied", "channel", channelID, "user_id", userID, "error", err)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Upgrade failed", "user_id", userID, "error", err)
		return
	}

	session := newSession(userID, channelID, conn)
	hub := h.registry.hub(channelID)
	go session.writePump()
	hub.register <- session

	// Block on the read pump; its return means the transport closed.
	session.readPump(hub)
	hub.unregister <- session
}
