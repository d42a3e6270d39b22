package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"outbreak/internal/store/memstore"
)

// Handler accepts relay sockets
type Handler struct {
	store    *memstore.Store
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new relay handler over st
func NewHandler(st *memstore.Store, logger *slog.Logger) *Handler {
	return &Handler{
		store: st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Clients are native apps and the simulator, not browsers
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The client id only labels the connection in logs
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, h.store.Connect(clientID), h.logger)
	h.logger.Info("relay client connected", "clientID", clientID)

	client.Run()
}
