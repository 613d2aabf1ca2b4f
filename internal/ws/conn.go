package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// 媒体消息以内联引用传输，单帧上限放宽到 16MB。
const maxFrameSize = 16 << 20

// Handler 处理客户端事件。实现方通过 Hub 查询会话并扇出结果。
type Handler interface {
	HandleEvent(ctx context.Context, connID, event string, data json.RawMessage)
	Disconnected(connID string)
}

// EventLimiter 按连接 id 限制入站事件速率，*mw.Limiter 实现了它。
type EventLimiter interface {
	Allow(key string) bool
	Forget(key string)
}

// Client 是一个 WebSocket 连接。identity 与 room 由 Hub 在锁内维护，
// holding 与 held 由 mu 保护。
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	identity string
	room     string

	mu      sync.Mutex
	holding bool
	held    [][]byte
}

// NewClient 创建尚未连接底层 socket 的客户端，Serve 与测试共用。
func NewClient(id string) *Client {
	return &Client{id: id, send: make(chan []byte, sendBuffer)}
}

func (c *Client) ID() string { return c.id }

// Outbox 暴露发送队列，供测试读取投递的帧。
func (c *Client) Outbox() <-chan []byte { return c.send }

// Serve 升级连接并运行读写循环。身份校验通过 join 事件完成，不在握手阶段。
// checkOrigin 为 nil 时使用 gorilla 默认的同源校验。
func Serve(h *Hub, handler Handler, lim EventLimiter, checkOrigin func(r *http.Request) bool) gin.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("ws upgrade")
			return
		}
		client := NewClient(uuid.NewString())
		client.conn = conn
		h.Register(client)
		log.Debug().Str("conn_id", client.id).Str("remote", c.Request.RemoteAddr).Msg("ws connected")

		go client.writePump()
		client.readPump(h, handler, lim)
	}
}

func (c *Client) readPump(h *Hub, handler Handler, lim EventLimiter) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		if lim != nil {
			lim.Forget(c.id)
		}
		handler.Disconnected(c.id)
		h.Unregister(c.id)
		_ = c.conn.Close()
		log.Debug().Str("conn_id", c.id).Msg("ws disconnected")
	}()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("ws read")
			}
			return
		}
		var in Envelope
		if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
			log.Debug().Str("conn_id", c.id).Msg("ws invalid frame")
			continue
		}
		if lim != nil && !lim.Allow(c.id) {
			log.Warn().Str("conn_id", c.id).Str("event", in.Event).Msg("ws event rate limited")
			continue
		}
		handler.HandleEvent(ctx, c.id, in.Event, in.Data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
