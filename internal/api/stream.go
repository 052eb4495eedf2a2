package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/galerija/internal/ledger"
)

const (
	streamBuffer = 64
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler pushes committed ledger events to WebSocket clients.
type StreamHandler struct {
	Hub *ledger.Hub
}

// Events handles GET /api/events/stream. Each committed event is sent as
// one JSON text message. Clients that fall behind miss events and should
// catch up through GET /api/events.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.Hub.Subscribe(streamBuffer)
	defer unsubscribe()

	user := ""
	if claims := GetClaims(r.Context()); claims != nil {
		user = claims.Username
	}
	slog.Info("event stream opened", "user", user, "request", RequestID(r.Context()))

	// The client never sends anything we use; reading only detects close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			slog.Info("event stream closed", "user", user)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				slog.Warn("event stream write failed", "user", user, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
