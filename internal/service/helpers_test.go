package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chatrelay/internal/auth"
	"chatrelay/internal/store"
	"chatrelay/internal/ws"
)

const testCode = "open-sesame"

type frame struct {
	Event string
	Data  json.RawMessage
}

// harness 用真实的 Hub 与内存存储装配全部服务，连接只有发送队列没有 socket。
type harness struct {
	t       *testing.T
	hub     *ws.Hub
	st      *store.MemoryStore
	msgs    *MessageService
	d       *Dispatcher
	now     time.Time
	clients map[string]*ws.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		hub:     ws.NewHub(),
		st:      store.NewMemoryStore(),
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		clients: make(map[string]*ws.Client),
	}
	h.msgs = NewMessageService(h.st, h.hub, MessageOptions{
		Rooms:        DefaultRooms(),
		TempTTL:      time.Hour,
		HistoryLimit: 50,
		Now:          func() time.Time { return h.now },
	})
	sessions := NewSessionService(h.hub, auth.NewPassphrase(testCode, ""), h.msgs)
	h.d = NewDispatcher(h.hub, sessions, h.msgs, NewPresenceService(h.hub), NewSignalService(h.hub))
	return h
}

func (h *harness) connect(id string) *ws.Client {
	c := ws.NewClient(id)
	h.hub.Register(c)
	h.clients[id] = c
	return c
}

// login 连接并以 name 加入，清空加入过程中产生的帧。
func (h *harness) login(id, name string) *ws.Client {
	h.t.Helper()
	c := h.connect(id)
	h.send(id, EventJoin, map[string]string{"code": testCode, "username": name})
	if s, _ := h.hub.Session(id); s.Identity != name {
		h.t.Fatalf("login %s: identity = %q", name, s.Identity)
	}
	h.drainAll()
	return c
}

func (h *harness) send(id, event string, payload interface{}) {
	h.t.Helper()
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			h.t.Fatalf("marshal %s: %v", event, err)
		}
		data = b
	}
	h.d.HandleEvent(context.Background(), id, event, data)
}

// frames 取出连接 id 当前排队的所有帧。
func (h *harness) frames(id string) []frame {
	h.t.Helper()
	c := h.clients[id]
	var out []frame
	for {
		select {
		case b, ok := <-c.Outbox():
			if !ok {
				return out
			}
			var env ws.Envelope
			if err := json.Unmarshal(b, &env); err != nil {
				h.t.Fatalf("bad frame %s: %v", b, err)
			}
			out = append(out, frame{Event: env.Event, Data: env.Data})
		default:
			return out
		}
	}
}

func (h *harness) drainAll() {
	for id := range h.clients {
		h.frames(id)
	}
}

func events(fs []frame) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Event)
	}
	return out
}

// only 断言恰好收到一个 event 帧并解析其负载。
func only(t *testing.T, fs []frame, event string, v interface{}) {
	t.Helper()
	if len(fs) != 1 || fs[0].Event != event {
		t.Fatalf("frames = %v, want exactly one %s", events(fs), event)
	}
	if v != nil {
		if err := json.Unmarshal(fs[0].Data, v); err != nil {
			t.Fatalf("decode %s: %v", event, err)
		}
	}
}

// post 以 id 的身份发送一条消息并返回其存储 id。
func (h *harness) post(id, text string, temp bool) uint {
	h.t.Helper()
	h.send(id, EventChatMessage, map[string]interface{}{"text": text, "isTemp": temp})
	msgs, err := h.st.QueryHistory(context.Background(), store.Filter{Now: h.now}, 0)
	if err != nil || len(msgs) == 0 {
		h.t.Fatalf("post %q: no message stored (%v)", text, err)
	}
	return msgs[len(msgs)-1].ID
}
