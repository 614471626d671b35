package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/myk-org/hooktrail/internal/stream"
	"github.com/myk-org/hooktrail/pkg/logger"
)

// Websocket timing parameters
const (
	// writeWait is the deadline for one outbound message write
	writeWait = 10 * time.Second
	// pongWait is how long to wait for a pong before treating the peer as gone
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait
	pingPeriod = (pongWait * 9) / 10
)

// TailHandler streams newly appended records over a websocket. The
// connection accepts the same filter fields as the query endpoint via
// query parameters and delivers matches as individual JSON messages.
type TailHandler struct {
	broker   *stream.Broker
	upgrader websocket.Upgrader
}

// NewTailHandler creates a new live tail handler
func NewTailHandler(broker *stream.Broker, allowedOrigins []string) *TailHandler {
	originSet := make(map[string]bool)
	for _, origin := range allowedOrigins {
		originSet[origin] = true
	}

	return &TailHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin header
				return origin == "" || originSet[origin]
			},
		},
	}
}

// Tail handles GET /api/v1/logs/tail
func (h *TailHandler) Tail(c *gin.Context) {
	f := parseFilter(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.broker.Subscribe(f)
	defer sub.Close()
	defer func() { _ = conn.Close() }()

	logger.Debug("Live tail connected",
		zap.String("subscription_id", sub.ID()),
		zap.String("remote", conn.RemoteAddr().String()),
	)

	// Read pump: discard inbound frames, detect peer close.
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case rec := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(rec); err != nil {
				logger.Debug("Live tail write failed",
					zap.String("subscription_id", sub.ID()),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-peerGone:
			return
		case <-sub.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
