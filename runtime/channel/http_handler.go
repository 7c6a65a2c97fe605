package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/botui/chatflow/runtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Same-origin requests have no Origin header
		}
		for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
			if strings.HasPrefix(origin, prefix) {
				return true
			}
		}
		slog.Warn("Rejected WebSocket from disallowed origin", "origin", origin)
		return false
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 64 * 1024
)

// HTTPHandler exposes channels to a remote renderer:
//
//	GET  /channels/:key               current snapshot
//	PUT  /channels/:key               replace the snapshot
//	POST /channels/:key/messages/:id  store an answered or edited message
//	GET  /channels/:key/events        snapshots as server-sent events
//	GET  /channels/:key/ws            snapshots over a websocket; text frames
//	                                  from the client are messages to store
type HTTPHandler struct {
	l        *slog.Logger
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewHTTPHandler(l *slog.Logger, channels ...Channel) *HTTPHandler {
	if l == nil {
		l = slog.Default()
	}
	h := &HTTPHandler{l: l, channels: make(map[string]Channel)}
	for _, ch := range channels {
		h.Add(ch)
	}
	return h
}

// Add serves ch under its key.
func (h *HTTPHandler) Add(ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels[ch.Key()] = ch
}

// Register mounts the routes on g.
func (h *HTTPHandler) Register(g gin.IRouter) {
	grp := g.Group("/channels/:key")
	grp.GET("", h.channelHandler(h.handleGet))
	grp.PUT("", h.channelHandler(h.handlePut))
	grp.POST("/messages/:id", h.channelHandler(h.handleMessage))
	grp.GET("/events", h.channelHandler(h.handleEvents))
	grp.GET("/ws", h.channelHandler(h.handleWebSocket))
}

func (h *HTTPHandler) channelHandler(next func(*gin.Context, Channel)) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		h.mu.RLock()
		ch, ok := h.channels[key]
		h.mu.RUnlock()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": fmt.Sprintf("unknown channel %q", key)})
			return
		}
		next(c, ch)
	}
}

func (h *HTTPHandler) handleGet(c *gin.Context, ch Channel) {
	conf, ok, err := ch.Get(c.Request.Context())
	if err != nil {
		h.fail(c, ch, "Reading channel failed", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "no snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, conf)
}

var wrongBodyFormatRes = gin.H{"message": "Wrong request body format"}

func (h *HTTPHandler) handlePut(c *gin.Context, ch Channel) {
	var conf runtime.ChatConfig
	if err := c.ShouldBindJSON(&conf); err != nil {
		c.JSON(http.StatusBadRequest, wrongBodyFormatRes)
		return
	}
	if err := ch.Set(c.Request.Context(), conf); err != nil {
		h.fail(c, ch, "Writing channel failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) handleMessage(c *gin.Context, ch Channel) {
	var msg runtime.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, wrongBodyFormatRes)
		return
	}
	msg.ID = c.Param("id")

	conf, err := Revise(c.Request.Context(), ch, msg)
	if err != nil {
		h.fail(c, ch, "Storing message failed", err)
		return
	}
	c.JSON(http.StatusOK, conf)
}

// Revise stores msg in the channel's message history and returns the new
// snapshot. An updated message drops every message after it.
func Revise(ctx context.Context, ch Channel, msg runtime.Message) (runtime.ChatConfig, error) {
	return ch.Update(ctx, func(conf runtime.ChatConfig) runtime.ChatConfig {
		conf.Messages = runtime.ReviseHistory(conf.Messages, msg)
		return conf
	})
}

func (h *HTTPHandler) handleEvents(c *gin.Context, ch Channel) {
	updates, cancel := ch.Subscribe()
	defer cancel()

	if conf, ok, err := ch.Get(c.Request.Context()); err == nil && ok {
		c.SSEvent("snapshot", conf)
		c.Writer.Flush()
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case conf, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", conf)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *HTTPHandler) handleWebSocket(c *gin.Context, ch Channel) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.l.Error("WebSocket upgrade failed", "channel", ch.Key(), "error", err)
		return
	}

	updates, cancel := ch.Subscribe()
	ctx, stop := context.WithCancel(context.WithoutCancel(c.Request.Context()))

	go h.readPump(ctx, stop, conn, ch)
	h.writePump(ctx, conn, ch, updates)

	cancel()
	stop()
	conn.Close()
}

// readPump stores every message the client sends until the connection drops.
func (h *HTTPHandler) readPump(ctx context.Context, stop context.CancelFunc, conn *websocket.Conn, ch Channel) {
	defer stop()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		var msg runtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Warn("WebSocket read failed", "channel", ch.Key(), "error", err)
			}
			return
		}
		if msg.ID == "" {
			h.l.Warn("Ignoring WebSocket message without id", "channel", ch.Key())
			continue
		}
		if _, err := Revise(ctx, ch, msg); err != nil {
			h.l.Error("Storing WebSocket message failed", "channel", ch.Key(), "message", msg.ID, "error", err)
		}
	}
}

func (h *HTTPHandler) writePump(ctx context.Context, conn *websocket.Conn, ch Channel, updates <-chan runtime.ChatConfig) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	if conf, ok, err := ch.Get(ctx); err == nil && ok {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(conf); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case conf, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(conf); err != nil {
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

func (h *HTTPHandler) fail(c *gin.Context, ch Channel, msg string, err error) {
	h.l.Error(msg,
		"channel", ch.Key(),
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"error", err.Error())
	status := http.StatusInternalServerError
	if errors.Is(err, ErrClosed) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"message": err.Error()})
}
