package handlers

import (
	"net/http"
	"time"

	"inidars/internal/model"
	"inidars/internal/storage"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer    = 100
	streamPingEvery = 30 * time.Second
	streamWriteWait = 10 * time.Second
	streamPongWait  = 2 * streamPingEvery
)

// StreamAlerts pushes newly recorded alerts to a WebSocket client. The
// severity and ip query parameters filter the stream. Alerts are dropped for
// clients that fall behind.
func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := alertFilterFromQuery(r)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := &storage.AlertSubscriber{
		ID:      uuid.NewString(),
		Channel: make(chan model.Alert, streamBuffer),
		Filter:  filter,
	}
	h.engine.Alerts.SubscribeAlerts(sub)
	defer h.engine.Alerts.UnsubscribeAlerts(sub)

	h.logger.Infof("Alert stream %s opened from %s", sub.ID, r.RemoteAddr)
	defer h.logger.Debugf("Alert stream %s closed", sub.ID)

	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(map[string]string{"type": "connected", "subscription": sub.ID}); err != nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// Reads only detect the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case alert, ok := <-sub.Channel:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(alert); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
