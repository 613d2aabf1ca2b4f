package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/models"
)

func appendMsg(t *testing.T, s Store, user, room string, expires *time.Time) uint {
	t.Helper()
	id, err := s.Append(context.Background(), &models.Message{
		Username:  user,
		Text:      "hello from " + user,
		Type:      models.TypeText,
		Room:      room,
		ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	return id
}

func TestMemoryStore_AppendAssignsIncreasingIDs(t *testing.T) {
	s := NewMemoryStore()
	msg := &models.Message{Username: "alice", Text: "hi", Type: models.TypeText, Room: "main"}
	id1, _ := s.Append(context.Background(), msg)
	if msg.ID != id1 || msg.CreatedAt.IsZero() {
		t.Errorf("Append() did not fill id/created_at: %+v", msg)
	}
	if msg.Reactions == nil {
		t.Error("Append() should leave an empty reactions map")
	}
	id2 := appendMsg(t, s, "bob", "main", nil)
	if id2 <= id1 {
		t.Errorf("ids not increasing: %d then %d", id1, id2)
	}

	got, err := s.Get(context.Background(), id1)
	if err != nil || got.Text != "hi" {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	// 返回值是拷贝
	got.Text = "changed"
	again, _ := s.Get(context.Background(), id1)
	if again.Text != "hi" {
		t.Error("Get() returned shared state")
	}

	if _, err := s.Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ToggleReaction(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := appendMsg(t, s, "alice", "main", nil)

	tests := []struct {
		user, symbol string
		want         map[string]string
	}{
		{"bob", "👍", map[string]string{"bob": "👍"}},
		{"carol", "❤️", map[string]string{"bob": "👍", "carol": "❤️"}},
		{"bob", "😂", map[string]string{"bob": "😂", "carol": "❤️"}},
		{"bob", "😂", map[string]string{"carol": "❤️"}},
		{"carol", "❤️", map[string]string{}},
	}
	for i, tt := range tests {
		got, err := s.ToggleReaction(ctx, id, tt.user, tt.symbol)
		if err != nil {
			t.Fatalf("step %d: ToggleReaction() error = %v", i, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("step %d: reactions = %v, want %v", i, got, tt.want)
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("step %d: reactions[%s] = %q, want %q", i, k, got[k], v)
			}
		}
	}

	if _, err := s.ToggleReaction(ctx, 999, "bob", "👍"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleReaction() missing error = %v", err)
	}
}

func TestMemoryStore_ConcurrentToggleKeepsOneEntryPerUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := appendMsg(t, s, "alice", "main", nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sym := "👍"
			if i%2 == 1 {
				sym = "🎉"
			}
			_, _ = s.ToggleReaction(ctx, id, "bob", sym)
		}(i)
	}
	wg.Wait()

	m, _ := s.Get(ctx, id)
	if len(m.Reactions) > 1 {
		t.Errorf("reactions = %v, want at most one entry", m.Reactions)
	}
}

func TestMemoryStore_UpdateConditions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := appendMsg(t, s, "alice", "main", nil)
	text := "edited"

	if err := s.Update(ctx, id, Patch{Text: &text, Edited: true, Author: "bob"}); !errors.Is(err, ErrConflict) {
		t.Errorf("Update() by non-author error = %v, want ErrConflict", err)
	}
	if err := s.Update(ctx, id, Patch{Text: &text, Edited: true, Author: "alice"}); err != nil {
		t.Fatalf("Update() by author error = %v", err)
	}
	m, _ := s.Get(ctx, id)
	if m.Text != "edited" || !m.Edited {
		t.Errorf("after edit = %+v", m)
	}

	now := time.Now()
	if err := s.Update(ctx, id, Patch{ReadAt: &now, NotAuthor: "alice", OnlyUnread: true}); !errors.Is(err, ErrConflict) {
		t.Errorf("author marking own message error = %v, want ErrConflict", err)
	}
	if err := s.Update(ctx, id, Patch{ReadAt: &now, NotAuthor: "bob", OnlyUnread: true}); err != nil {
		t.Fatalf("Update() mark read error = %v", err)
	}
	later := now.Add(time.Minute)
	if err := s.Update(ctx, id, Patch{ReadAt: &later, NotAuthor: "bob", OnlyUnread: true}); !errors.Is(err, ErrConflict) {
		t.Errorf("second mark read error = %v, want ErrConflict", err)
	}
	m, _ = s.Get(ctx, id)
	if m.ReadAt == nil || !m.ReadAt.Equal(now) {
		t.Errorf("ReadAt = %v, want first read time", m.ReadAt)
	}

	if err := s.Update(ctx, 999, Patch{Text: &text}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() missing error = %v", err)
	}
}

func TestMemoryStore_DeleteOwnership(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := appendMsg(t, s, "alice", "main", nil)

	if err := s.Delete(ctx, id, "bob"); !errors.Is(err, ErrConflict) {
		t.Errorf("Delete() by non-owner error = %v, want ErrConflict", err)
	}
	if _, err := s.Get(ctx, id); err != nil {
		t.Fatal("message removed by non-owner")
	}
	if err := s.Delete(ctx, id, "alice"); err != nil {
		t.Fatalf("Delete() by owner error = %v", err)
	}
	if err := s.Delete(ctx, id, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_MarkAllRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	appendMsg(t, s, "alice", "main", nil)
	appendMsg(t, s, "bob", "main", nil)
	appendMsg(t, s, "alice", "main", nil)
	appendMsg(t, s, "alice", "temp", nil)

	at := time.Now()
	n, err := s.MarkAllRead(ctx, "main", "bob", at)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("MarkAllRead() = %d, want 2", n)
	}
	// 幂等
	if n, _ := s.MarkAllRead(ctx, "main", "bob", at.Add(time.Hour)); n != 0 {
		t.Errorf("second MarkAllRead() = %d, want 0", n)
	}

	msgs, _ := s.QueryHistory(ctx, Filter{Room: "main"}, 0)
	for _, m := range msgs {
		if m.Username == "bob" && m.ReadAt != nil {
			t.Errorf("reader's own message %d marked read", m.ID)
		}
		if m.Username == "alice" && (m.ReadAt == nil || !m.ReadAt.Equal(at)) {
			t.Errorf("message %d ReadAt = %v", m.ID, m.ReadAt)
		}
	}
	temp, _ := s.QueryHistory(ctx, Filter{Room: "temp"}, 0)
	if temp[0].ReadAt != nil {
		t.Error("message in another room marked read")
	}
}

func TestMemoryStore_QueryHistoryViewsAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	var durable []uint
	for i := 0; i < 5; i++ {
		durable = append(durable, appendMsg(t, s, "alice", "main", nil))
	}
	live := appendMsg(t, s, "bob", "temp", &future)
	appendMsg(t, s, "bob", "temp", &past)

	msgs, _ := s.QueryHistory(ctx, Filter{View: ViewDurable, Room: "main", Now: now}, 3)
	if len(msgs) != 3 {
		t.Fatalf("durable history len = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != durable[i+2] {
			t.Errorf("msgs[%d].ID = %d, want %d (latest, ascending)", i, m.ID, durable[i+2])
		}
	}

	eph, _ := s.QueryHistory(ctx, Filter{View: ViewEphemeral, Room: "temp", Now: now}, 50)
	if len(eph) != 1 || eph[0].ID != live {
		t.Errorf("ephemeral history = %+v, want only unexpired message", eph)
	}

	all, _ := s.QueryHistory(ctx, Filter{Now: now}, 0)
	if len(all) != 6 {
		t.Errorf("all history len = %d, want 6", len(all))
	}
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	appendMsg(t, s, "alice", "main", nil)
	expired := appendMsg(t, s, "bob", "temp", &past)
	appendMsg(t, s, "bob", "temp", &future)

	n, err := s.DeleteExpired(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpired() = %d, %v; want 1", n, err)
	}
	if _, err := s.Get(ctx, expired); !errors.Is(err, ErrNotFound) {
		t.Error("expired message still present")
	}
	if n, _ := s.DeleteExpired(ctx, now); n != 0 {
		t.Errorf("second DeleteExpired() = %d, want 0", n)
	}
}
