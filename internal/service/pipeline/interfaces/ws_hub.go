// internal/service/pipeline/interfaces/ws_hub.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"dealflow/internal/pkg/logger"
	"dealflow/internal/service/pipeline/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientSendBuf  = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 看板前端与 API 可能不同源
		return true
	},
}

// BoardHub 维护所有看板连接，并把已提交的事件广播给它们。
// 它同时实现 port.EventSink，由事件分发器调用。
type BoardHub struct {
	clients    map[string]*boardClient
	register   chan *boardClient
	unregister chan *boardClient
	done       chan struct{}
	lock       sync.RWMutex
}

func NewBoardHub() *BoardHub {
	return &BoardHub{
		clients:    make(map[string]*boardClient),
		register:   make(chan *boardClient),
		unregister: make(chan *boardClient),
		done:       make(chan struct{}),
	}
}

// Run 处理连接的注册与注销，ctx 结束时断开所有客户端
func (h *BoardHub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.lock.Lock()
			h.clients[c.id] = c
			h.lock.Unlock()
			zlog.Debug().Str("client", c.id).Msg("board client registered")
		case c := <-h.unregister:
			h.remove(c)
		case <-ctx.Done():
			h.lock.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.lock.Unlock()
			return nil
		}
	}
}

func (h *BoardHub) remove(c *boardClient) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
		zlog.Debug().Str("client", c.id).Msg("board client unregistered")
	}
}

// ClientCount 当前连接数
func (h *BoardHub) ClientCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

func (h *BoardHub) Name() string { return "websocket" }

// Deliver 实现 port.EventSink。发送缓冲已满的慢客户端会被断开。
func (h *BoardHub) Deliver(ctx context.Context, event *domain.PipelineEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal board event")
	}

	var slow []*boardClient
	h.lock.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.lock.RUnlock()

	for _, c := range slow {
		logger.Ctx(ctx).Warn().Str("client", c.id).Msg("board client too slow, disconnecting")
		h.remove(c)
	}
	return nil
}

// ServeWS 把 HTTP 连接升级为 WebSocket 并注册到 Hub
func (h *BoardHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &boardClient{hub: h, conn: conn, send: make(chan []byte, clientSendBuf), id: uuid.NewString()}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// boardClient 是一个 WebSocket 连接的代表
type boardClient struct {
	hub  *BoardHub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// readPump 只处理心跳和关闭，看板不会向服务端发业务消息
func (c *boardClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump 负责将 send channel 中的消息写入 websocket
func (c *boardClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
