package server

import (
	"net/http"
	"time"

	"JamFM/core/event"
	"JamFM/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// SessionEventsHandler upgrades the connection and streams session events.
// The first frame is always a full snapshot; deltas follow in publish order.
func (h *APIHandler) SessionEventsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	session, err := h.manager.Get(sessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	sub := session.SubscribeEvents(h.hub, h.cfg.QueuePreviewLimit)

	logger.Debug("event subscriber connected", logger.String("session", sessionID))

	go h.writeEvents(conn, sub)
	h.readUntilClosed(conn, sub)
}

// writeEvents drains the subscription into the socket and keeps the
// connection alive with pings.
func (h *APIHandler) writeEvents(conn *websocket.Conn, sub *event.Subscription) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case envelope, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(envelope); err != nil {
				logger.Debug("event write failed", logger.ErrorField(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readUntilClosed consumes control frames until the peer goes away, then
// tears the subscription down.
func (h *APIHandler) readUntilClosed(conn *websocket.Conn, sub *event.Subscription) {
	defer func() {
		h.hub.Unsubscribe(sub)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("event subscriber dropped", logger.ErrorField(err))
			}
			return
		}
	}
}
