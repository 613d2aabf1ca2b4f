package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatrelay/internal/models"
)

// MemoryStore 是进程内实现，供 STORE_DRIVER=memory 与测试使用。
type MemoryStore struct {
	mu     sync.Mutex
	nextID uint
	msgs   map[uint]*models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{msgs: make(map[uint]*models.Message)}
}

func (s *MemoryStore) Append(_ context.Context, msg *models.Message) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec := msg.Clone()
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.msgs[rec.ID] = rec
	msg.ID = rec.ID
	msg.CreatedAt = rec.CreatedAt
	if msg.Reactions == nil {
		msg.Reactions = map[string]string{}
	}
	return rec.ID, nil
}

func (s *MemoryStore) Get(_ context.Context, id uint) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id uint, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return ErrNotFound
	}
	if !matches(m, p) {
		return ErrConflict
	}
	if p.Text != nil {
		m.Text = *p.Text
	}
	if p.Edited {
		m.Edited = true
	}
	if p.ReadAt != nil {
		t := *p.ReadAt
		m.ReadAt = &t
	}
	return nil
}

func matches(m *models.Message, p Patch) bool {
	if p.Author != "" && m.Username != p.Author {
		return false
	}
	if p.NotAuthor != "" && m.Username == p.NotAuthor {
		return false
	}
	if p.OnlyUnread && m.ReadAt != nil {
		return false
	}
	return true
}

func (s *MemoryStore) Delete(_ context.Context, id uint, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return ErrNotFound
	}
	if owner != "" && m.Username != owner {
		return ErrConflict
	}
	delete(s.msgs, id)
	return nil
}

func (s *MemoryStore) ToggleReaction(_ context.Context, id uint, username, symbol string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string]string)
	}
	if m.Reactions[username] == symbol {
		delete(m.Reactions, username)
	} else {
		m.Reactions[username] = symbol
	}
	out := make(map[string]string, len(m.Reactions))
	for k, v := range m.Reactions {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, room, reader string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.msgs {
		if m.Room != room || m.Username == reader || m.ReadAt != nil {
			continue
		}
		t := at
		m.ReadAt = &t
		n++
	}
	return n, nil
}

func (s *MemoryStore) QueryHistory(_ context.Context, f Filter, limit int) ([]models.Message, error) {
	now := f.now()
	s.mu.Lock()
	out := make([]models.Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		if f.Room != "" && m.Room != f.Room {
			continue
		}
		switch f.View {
		case ViewDurable:
			if !m.Durable() {
				continue
			}
		case ViewEphemeral:
			if m.Durable() {
				continue
			}
		}
		if m.Expired(now) {
			continue
		}
		out = append(out, *m.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.msgs {
		if m.Expired(now) {
			delete(s.msgs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
