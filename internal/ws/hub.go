package ws

import (
	"encoding/json"
	"sync"

	"chatrelay/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Envelope 是 WebSocket 上传输的一帧：事件名加负载。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Session 是会话表中一条记录的快照。Identity 为空表示尚未通过口令校验。
type Session struct {
	ID       string
	Identity string
	Room     string
}

// Hub 持有会话表与房间成员表，二者在同一把锁下修改，保证换房原子。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Register 把新连接加入会话表，此时不属于任何房间。
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.WsConnections.Inc()
}

// Unregister 从会话表和所有房间中移除连接，并关闭其发送队列。
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	h.leaveLocked(c)
	delete(h.clients, id)
	close(c.send)
	metrics.WsConnections.Dec()
}

func (h *Hub) Session(id string) (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return Session{}, false
	}
	return Session{ID: c.id, Identity: c.identity, Room: c.room}, true
}

// Bind 为连接绑定身份。
func (h *Hub) Bind(id, identity string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	c.identity = identity
	return true
}

// Join 先离开当前房间再加入 room，整个过程持有写锁。
func (h *Hub) Join(id, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	h.joinLocked(c, room)
	return true
}

// Enter 与 Join 相同，但此后发往该连接的帧先暂存，直到 Release。
// 调用方在两者之间读取房间快照，快照帧因此总在实时帧之前到达。
// 快照期间写入的消息可能既在快照里又随后实时到达，客户端按消息 id 去重。
func (h *Hub) Enter(id, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	c.mu.Lock()
	c.holding = true
	c.mu.Unlock()
	h.joinLocked(c, room)
	return true
}

// Release 先投递 event 帧，再按到达顺序投递暂存帧，之后恢复直接投递。
// event 为空时只放行暂存帧。
func (h *Hub) Release(id, event string, payload interface{}) bool {
	var first []byte
	if event != "" {
		first, _ = encode(event, payload)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if first != nil {
		h.push(c, first)
	}
	for _, frame := range c.held {
		h.push(c, frame)
	}
	c.held, c.holding = nil, false
	return true
}

func (h *Hub) joinLocked(c *Client, room string) {
	if c.room == room {
		return
	}
	h.leaveLocked(c)
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.id] = c
	c.room = room
}

func (h *Hub) leaveLocked(c *Client) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// Broadcast 只投递给 room 的当前成员。
func (h *Hub) Broadcast(room, event string, payload interface{}) {
	frame, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		h.deliver(c, frame)
	}
}

// BroadcastAll 投递给所有连接，不区分房间。
func (h *Hub) BroadcastAll(event string, payload interface{}) {
	h.BroadcastOthers("", event, payload)
}

// BroadcastOthers 投递给除 except 以外的所有连接。
func (h *Hub) BroadcastOthers(except, event string, payload interface{}) {
	frame, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if id == except {
			continue
		}
		h.deliver(c, frame)
	}
}

// SendTo 投递给单个连接；目标不存在时返回 false。
func (h *Hub) SendTo(id, event string, payload interface{}) bool {
	frame, ok := encode(event, payload)
	if !ok {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, found := h.clients[id]
	if !found {
		return false
	}
	h.deliver(c, frame)
	return true
}

// deliver 投递一帧；连接处于暂存状态时先放入暂存区。调用方需持有读锁。
func (h *Hub) deliver(c *Client, frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.holding {
		h.push(c, frame)
		return
	}
	if len(c.held) >= sendBuffer {
		h.dropped(c)
		return
	}
	c.held = append(c.held, frame)
}

// push 非阻塞写入发送队列，队列已满时丢弃该帧。
func (h *Hub) push(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.dropped(c)
	}
}

func (h *Hub) dropped(c *Client) {
	metrics.DroppedFramesTotal.Inc()
	log.Warn().Str("conn_id", c.id).Msg("send buffer full, frame dropped")
}

func (h *Hub) Online(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Connected 返回当前连接总数。
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(event string, payload interface{}) ([]byte, bool) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("event", event).Msg("encode payload")
			return nil, false
		}
		env.Data = data
	}
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode frame")
		return nil, false
	}
	return b, true
}
