package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsewatch/pulsewatch/internal/events"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The admin UI is served from another origin; auth happens via the
	// JWT middleware before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler pushes alert lifecycle events to websocket clients
type StreamHandler struct {
	bus *events.Bus
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(bus *events.Bus) *StreamHandler {
	return &StreamHandler{bus: bus}
}

// SetupRoutes sets up the stream route
func (h *StreamHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/alerts/stream", h.handleStream)
}

// handleStream upgrades the connection and forwards bus events until the
// client disconnects
func (h *StreamHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("StreamHandler: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice closes and process control frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("StreamHandler: write failed: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
