package websocket

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades subscribe_events(execution_id) HTTP requests to
// WebSocket connections and hands them to the Hub.
type Handler struct {
	hub  *Hub
	auth Authenticator
	log  zerolog.Logger
}

// NewHandler wires a hub and authenticator into an http.Handler.
func NewHandler(hub *Hub, auth Authenticator, log zerolog.Logger) *Handler {
	return &Handler{hub: hub, auth: auth, log: log.With().Str("component", "websocket").Logger()}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.Authenticate(r)
	if err != nil {
		h.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket authentication failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	clientID := uuid.New().String()
	client := NewClient(clientID, userID, h.hub, conn)

	executionID := r.URL.Query().Get("execution_id")
	workflowID := r.URL.Query().Get("workflow_id")

	h.log.Info().Str("client_id", clientID).Str("user_id", userID).Str("execution_id", executionID).Msg("websocket client connected")

	h.hub.register <- client
	if executionID != "" || workflowID != "" {
		h.hub.Subscribe(client, workflowID, executionID)
	}

	go client.writePump()
	go client.readPump()
}
