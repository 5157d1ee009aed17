package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendQueueSize = 256
)

// client is one websocket connection. It learns its player and match
// identity from the first room:join message.
type client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte

	playerID string
	matchID  string
}

// readPump reads messages off the connection and dispatches them to the
// server's action handlers. Runs in its own goroutine per connection.
func (that *client) readPump(ctx context.Context) {
	log := that.server.logger.With("method", "readPump")

	defer func() {
		that.server.handleDisconnect(ctx, that)
		_ = that.conn.Close()
		close(that.send)
	}()

	that.conn.SetReadLimit(maxMessageSize)
	_ = that.conn.SetReadDeadline(time.Now().Add(pongWait))
	that.conn.SetPongHandler(func(string) error {
		return that.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := that.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("error reading message", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(raw, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			that.sendError(message.Action, "invalid message format")
			continue
		}

		handler, ok := that.server.handlers[message.Action]
		if !ok {
			log.Error("unknown action", "action", message.Action)
			that.sendError(message.Action, "unknown action")
			continue
		}

		if err = handler(ctx, that, message.Payload); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// writePump drains the send queue onto the connection and keeps the peer
// alive with pings. Runs in its own goroutine per connection.
func (that *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = that.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = that.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := that.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendMessage queues one message for this client only.
func (that *client) sendMessage(action string, payload any) {
	log := that.server.logger.With("method", "sendMessage")

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to marshal payload", "error", err)
		return
	}

	raw, err := json.Marshal(Message{Action: action, Payload: body})
	if err != nil {
		log.Error("failed to marshal message", "error", err)
		return
	}

	select {
	case that.send <- raw:
	default:
	}
}

func (that *client) sendError(action, message string) {
	if action == "" {
		action = EventError
	}

	that.sendMessage(action, StatePayload{Error: message})
}
