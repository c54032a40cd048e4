package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/conductor/internal/agent"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPingInterval    = 15 * time.Second
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
)

// wsErrorFrame reports a rejected run request. The connection stays open.
type wsErrorFrame struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

type wsHandler struct {
	server   *Server
	upgrader websocket.Upgrader
}

func (s *Server) newWSHandler() http.Handler {
	return &wsHandler{
		server: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// wsConn serves run requests over one connection. Each text frame is a
// RunRequest; its progress events come back as JSON frames ending with done.
// A second request while a run is active gets a 409 error frame.
type wsConn struct {
	handler *wsHandler
	conn    *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	client  string
	busy    atomic.Bool
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConn{
		handler: h,
		conn:    conn,
		send:    make(chan []byte, 64),
		ctx:     ctx,
		cancel:  cancel,
		client:  clientID(r),
	}
	go c.writeLoop()
	c.readLoop()
	c.cancel()
	_ = c.conn.Close()
}

func (c *wsConn) readLoop() {
	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req RunRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendError(&apiError{Status: http.StatusUnprocessableEntity, Detail: "Invalid request body: " + err.Error()})
			continue
		}
		if apiErr := validateRunRequest(req); apiErr != nil {
			c.sendError(apiErr)
			continue
		}
		if !c.busy.CompareAndSwap(false, true) {
			c.sendError(&apiError{Status: http.StatusConflict, Detail: "A run is already in progress on this connection"})
			continue
		}
		go c.run(req)
	}
}

func (c *wsConn) run(req RunRequest) {
	defer c.busy.Store(false)
	s := c.handler.server

	prep, apiErr := s.prepare(c.ctx, req, c.client)
	if apiErr != nil {
		c.sendError(apiErr)
		return
	}
	if prep.refusal != nil {
		c.sendEvent(agent.Event{Type: agent.EventDone, Response: prep.refusal})
		return
	}
	for ev := range s.stream(c.ctx, prep) {
		c.sendEvent(ev)
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *wsConn) sendEvent(ev agent.Event) {
	c.enqueue(ev)
}

func (c *wsConn) sendError(err *apiError) {
	c.enqueue(wsErrorFrame{Type: "error", Status: err.Status, Detail: err.Detail})
}

func (c *wsConn) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.handler.server.logger.Warn("failed to encode websocket frame", "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}
