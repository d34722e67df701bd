package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/workflow"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser dashboards connect cross-origin; authorization lives at
	// the transport layer, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStreamEvents upgrades the connection to a WebSocket and relays
// the session's progress events: buffered history first, then a ready
// sentinel, then live events. After the terminal event the engine
// closes the channel and the connection shuts down with a normal close
// frame.
func (s *Server) handleStreamEvents(c *gin.Context) {
	if s.deps.Workflow == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "workflow engine not configured",
		})
		return
	}

	sessionID := c.Param("sessionId")

	from := 0
	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := strconv.Atoi(fromStr)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "from must be a non-negative integer",
			})
			return
		}
		from = parsed
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe before upgrading so an unknown session still gets a
	// proper HTTP status.
	events, err := s.deps.Workflow.Stream(ctx, sessionID, from)
	if err != nil {
		if workflow.IsSessionNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": err.Error(),
			})
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to open event stream")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to open event stream",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake error to the client.
		log.Warn().Err(err).Str("session_id", sessionID).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("session_id", sessionID).Int("from", from).Msg("WebSocket stream opened")

	go streamReadPump(conn, cancel)
	streamWritePump(conn, events)

	log.Info().Str("session_id", sessionID).Msg("WebSocket stream closed")
}

// streamReadPump drains frames from the peer so pongs are processed and
// a closed peer cancels the engine subscription.
func streamReadPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

// streamWritePump relays events to the peer with keepalive pings until
// the event channel closes or a write fails.
func streamWritePump(conn *websocket.Conn, events <-chan workflow.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The engine closed the stream after the terminal event.
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
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
