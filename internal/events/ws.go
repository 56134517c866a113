package events

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The endpoint binds to localhost; browser origin checks add nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades HTTP connections and streams hub events to them as
// JSON.
type WSHandler struct {
	hub    *Hub
	logger zerolog.Logger
}

// NewWSHandler creates a handler over the hub.
func NewWSHandler(hub *Hub, logger zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	id, ch := h.hub.Subscribe()
	h.logger.Debug().Str("subscriber", id).Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	go h.writeLoop(conn, id, ch)
	go h.readLoop(conn, id)
}

// writeLoop pushes events and keepalive pings until the subscription or the
// connection dies.
func (h *WSHandler) writeLoop(conn *websocket.Conn, id string, ch <-chan Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.Unsubscribe(id)
		conn.Close()
	}()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug().Err(err).Str("subscriber", id).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so pongs and closes are processed.
func (h *WSHandler) readLoop(conn *websocket.Conn, id string) {
	defer h.hub.Unsubscribe(id)
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
