package store

import (
	"context"
	"errors"
	"time"

	"chatrelay/internal/models"
)

var (
	ErrNotFound = errors.New("message not found")
	// ErrConflict 表示记录存在，但条件更新的前置条件不满足。
	ErrConflict = errors.New("precondition failed")
)

// View 选择历史查询的生命周期视图。
type View int

const (
	ViewAll View = iota
	// ViewDurable 只包含 expires_at 为空的消息。
	ViewDurable
	// ViewEphemeral 只包含设置了 expires_at 的消息。
	ViewEphemeral
)

// Filter 描述历史查询条件。Now 用于排除查询时已过期的消息，零值表示 time.Now()。
type Filter struct {
	View View
	Room string
	Now  time.Time
}

func (f Filter) now() time.Time {
	if f.Now.IsZero() {
		return time.Now()
	}
	return f.Now
}

// Patch 是一次条件更新。nil 字段不修改。
//
// Author 非空时要求 message.username == Author；NotAuthor 非空时要求
// message.username != NotAuthor；OnlyUnread 要求 read_at 仍为空。
type Patch struct {
	Text   *string
	Edited bool
	ReadAt *time.Time

	Author     string
	NotAuthor  string
	OnlyUnread bool
}

// Store 是消息存储的抽象，所有修改都是针对单条记录的原子条件操作。
type Store interface {
	Append(ctx context.Context, msg *models.Message) (uint, error)
	Get(ctx context.Context, id uint) (*models.Message, error)
	Update(ctx context.Context, id uint, p Patch) error
	// Delete 删除消息；owner 非空时只删除该作者的消息。
	Delete(ctx context.Context, id uint, owner string) error
	// ToggleReaction 若 username 已有相同 symbol 则移除，否则设置，返回更新后的完整映射。
	ToggleReaction(ctx context.Context, id uint, username, symbol string) (map[string]string, error)
	// MarkAllRead 将 room 内他人发送且未读的消息标记为已读，返回受影响条数。
	MarkAllRead(ctx context.Context, room, reader string, at time.Time) (int64, error)
	// QueryHistory 返回最近的 limit 条消息，按创建顺序升序。
	QueryHistory(ctx context.Context, f Filter, limit int) ([]models.Message, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Close() error
}
