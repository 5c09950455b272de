package handlers

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/domain"
	"github.com/paheweb/backend/internal/infrastructure/logger"
)

// ProgressHandler serves the live event stream. Each connection is one
// broadcaster subscription: the observer gets a full status snapshot on
// connect, then progress/status/heartbeat events as they happen. A "ping"
// text frame is answered with a "pong" event on the same stream.
type ProgressHandler struct {
	queue       ports.QueueService
	broadcaster ports.Broadcaster
	logger      *logger.Logger
}

func NewProgressHandler(queue ports.QueueService, broadcaster ports.Broadcaster, logger *logger.Logger) *ProgressHandler {
	return &ProgressHandler{queue: queue, broadcaster: broadcaster, logger: logger}
}

func (h *ProgressHandler) Handle(c *websocket.Conn) {
	sub := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(sub)

	// Bootstrap the observer's view before any deltas arrive.
	snapshot := h.queue.Status()
	if err := c.WriteJSON(domain.Event{Type: domain.EventStatus, Queue: &snapshot}); err != nil {
		h.logger.Warnw("progress_ws_initial_write_failed", "error", err)
		c.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer c.Close()
		for {
			select {
			case event := <-sub.Events:
				if err := c.WriteJSON(event); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			break
		}
		var incoming struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(message, &incoming) != nil {
			continue
		}
		if incoming.Type == "ping" {
			// Route the pong through the subscription buffer so all writes
			// stay on the writer goroutine.
			select {
			case sub.Events <- domain.Event{Type: domain.EventPong}:
			default:
			}
		}
	}
	close(done)
	h.logger.Infow("progress_ws_closed")
}
