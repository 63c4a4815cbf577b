package web

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsEvent is the firehose frame sent to WebSocket clients. Non-JSON
// payloads are forwarded as raw strings.
type wsEvent struct {
	ID      uuid.UUID       `json:"id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// handleEvents upgrades to a WebSocket and streams bus messages
// matching the pattern query parameter (default "*") until the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, err := s.hub.SubscribeEvents(r.Context(), pattern)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		return
	}

	// Drain client frames so pings and close frames are processed; a
	// read error tears the subscription down through the context.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			payload := json.RawMessage(msg.Payload)
			if !json.Valid(msg.Payload) {
				quoted, err := json.Marshal(string(msg.Payload))
				if err != nil {
					continue
				}
				payload = quoted
			}
			frame := wsEvent{ID: uuid.New(), Topic: msg.Topic, Payload: payload}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}
