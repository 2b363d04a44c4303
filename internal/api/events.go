package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keshucs12345/callsim/internal/events"
)

const (
	eventBuffer = 64
	writeWait   = 5 * time.Second
)

// handleEvents streams call events to a WebSocket client as JSON text
// frames. A client that falls more than eventBuffer events behind misses
// events rather than stalling the hub.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := make(chan events.Event, eventBuffer)
	unsubscribe := s.deps.Events.Subscribe(func(e events.Event) {
		select {
		case ch <- e:
		default:
			s.logger.Warn("event stream client too slow, dropping event", "type", string(e.Type))
		}
	})
	defer unsubscribe()

	// Clients only send close frames; reading also answers pings.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("event stream opened", "remote_addr", r.RemoteAddr)
	for {
		select {
		case <-closed:
			s.logger.Debug("event stream closed", "remote_addr", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case e := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("event stream write failed", "error", err)
				}
				return
			}
		}
	}
}
