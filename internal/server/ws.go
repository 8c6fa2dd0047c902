package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradedesk/internal/stream"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// pingInterval must be shorter than pongWait.
	pingInterval = 50 * time.Second
)

// streamEvents upgrades to a WebSocket and relays hub envelopes as JSON text
// frames. ?topic= narrows the feed to one service; the default is every
// topic.
func (s *Server) streamEvents(c *gin.Context) {
	if s.deps.Hub == nil {
		respondError(c, http.StatusServiceUnavailable, errServiceDisabled)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	topic := c.DefaultQuery("topic", stream.AllTopics)
	envelopes := s.deps.Hub.Subscribe(topic)
	defer s.deps.Hub.Unsubscribe(topic, envelopes)

	log := s.logger.With().Str("topic", topic).Str("remote", c.ClientIP()).Logger()
	log.Info().Msg("Stream client connected")
	defer log.Info().Msg("Stream client disconnected")

	// The read side only services control frames and notices the peer leaving.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("Stream read error")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case env, ok := <-envelopes:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Msg("Stream write failed")
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
