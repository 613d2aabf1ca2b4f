package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatrelay/internal/metrics"
	"chatrelay/internal/models"
	"chatrelay/internal/store"
	"chatrelay/internal/ws"
)

// Router 是房间路由与会话表，*ws.Hub 实现了它。
type Router interface {
	Session(id string) (ws.Session, bool)
	Bind(id, identity string) bool
	Enter(id, room string) bool
	Release(id, event string, payload interface{}) bool
	Broadcast(room, event string, payload interface{})
	BroadcastAll(event string, payload interface{})
	BroadcastOthers(except, event string, payload interface{})
	SendTo(id, event string, payload interface{}) bool
}

// maxHistory 是单次下发历史的条数上限。
const maxHistory = 50

// MessageOptions 配置消息生命周期。零值字段使用默认值。
type MessageOptions struct {
	Rooms        Rooms
	TempTTL      time.Duration
	HistoryLimit int
	Now          func() time.Time
}

// MessageService 校验并执行消息的创建、反应、编辑、撤回与已读，
// 持久化后通过 Router 扇出：创建事件只发给消息所在房间，变更事件发给所有连接。
type MessageService struct {
	store        store.Store
	router       Router
	rooms        Rooms
	tempTTL      time.Duration
	historyLimit int
	now          func() time.Time
}

func NewMessageService(st store.Store, router Router, opts MessageOptions) *MessageService {
	s := &MessageService{
		store:        st,
		router:       router,
		rooms:        opts.Rooms,
		tempTTL:      opts.TempTTL,
		historyLimit: opts.HistoryLimit,
		now:          opts.Now,
	}
	if s.rooms.names == nil {
		s.rooms = DefaultRooms()
	}
	if s.tempTTL <= 0 {
		s.tempTTL = 24 * time.Hour
	}
	if s.historyLimit <= 0 || s.historyLimit > maxHistory {
		s.historyLimit = maxHistory
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateInput 是 chat-message 的消息体。
type CreateInput struct {
	Text     string
	Type     string
	FileName string
	IsTemp   bool
}

// Create 持久化一条新消息并广播给其所在房间。IsTemp 决定房间与过期时间。
func (s *MessageService) Create(ctx context.Context, identity string, in CreateInput) (*models.Message, error) {
	if identity == "" {
		return nil, ErrUnauthenticated
	}
	if in.Type == "" {
		in.Type = models.TypeText
	}
	if !models.ValidType(in.Type) || strings.TrimSpace(in.Text) == "" {
		return nil, ErrInvalidPayload
	}

	now := s.now()
	msg := &models.Message{
		Username:  identity,
		Text:      in.Text,
		FileName:  in.FileName,
		Type:      in.Type,
		Room:      s.rooms.Name(RoomNormal),
		CreatedAt: now,
		Reactions: map[string]string{},
	}
	if in.IsTemp {
		exp := now.Add(s.tempTTL)
		msg.ExpiresAt = &exp
		msg.Room = s.rooms.Name(RoomEphemeral)
	}
	if _, err := s.store.Append(ctx, msg); err != nil {
		return nil, err
	}
	metrics.WsMessagesTotal.WithLabelValues(msg.Room).Inc()
	s.router.Broadcast(msg.Room, EventChatMessage, toWire(msg))
	return msg, nil
}

// React 切换 identity 在消息上的反应，返回更新后的映射。
func (s *MessageService) React(ctx context.Context, identity string, id uint, symbol string) (map[string]string, error) {
	if identity == "" {
		return nil, ErrUnauthenticated
	}
	if id == 0 || symbol == "" {
		return nil, ErrInvalidPayload
	}
	reactions, err := s.store.ToggleReaction(ctx, id, identity, symbol)
	if err != nil {
		return nil, err
	}
	s.router.BroadcastAll(EventUpdateReaction, reactionUpdate{MessageID: id, Reactions: reactions})
	return reactions, nil
}

// Unsend 删除 identity 自己的消息。
func (s *MessageService) Unsend(ctx context.Context, identity string, id uint) error {
	if identity == "" {
		return ErrUnauthenticated
	}
	if err := s.store.Delete(ctx, id, identity); err != nil {
		return ownership(err)
	}
	s.router.BroadcastAll(EventMessageUnsent, messageRef{MessageID: id})
	return nil
}

// Edit 修改 identity 自己消息的文本并标记为已编辑。
func (s *MessageService) Edit(ctx context.Context, identity string, id uint, newText string) error {
	if identity == "" {
		return ErrUnauthenticated
	}
	if id == 0 || strings.TrimSpace(newText) == "" {
		return ErrInvalidPayload
	}
	err := s.store.Update(ctx, id, store.Patch{Text: &newText, Edited: true, Author: identity})
	if err != nil {
		return ownership(err)
	}
	s.router.BroadcastAll(EventMessageEdited, messageEdited{MessageID: id, NewText: newText, IsEdited: true})
	return nil
}

// MarkRead 把他人发送的未读消息标记为已读。自己的消息或已读消息不变，返回 false。
func (s *MessageService) MarkRead(ctx context.Context, identity string, id uint) (bool, error) {
	if identity == "" {
		return false, ErrUnauthenticated
	}
	now := s.now()
	err := s.store.Update(ctx, id, store.Patch{ReadAt: &now, NotAuthor: identity, OnlyUnread: true})
	switch {
	case errors.Is(err, store.ErrConflict):
		return false, nil
	case err != nil:
		return false, err
	}
	s.router.BroadcastAll(EventSingleMsgRead, messageRef{MessageID: id})
	return true, nil
}

// MarkAllRead 把 room 内他人发送的未读消息全部标记为已读。
func (s *MessageService) MarkAllRead(ctx context.Context, identity, room string) (int64, error) {
	if identity == "" {
		return 0, ErrUnauthenticated
	}
	n, err := s.store.MarkAllRead(ctx, room, identity, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.router.BroadcastAll(EventMessagesRead, empty{})
	}
	return n, nil
}

// History 返回房间的最近历史，按创建顺序升序，不超过配置的上限。
func (s *MessageService) History(ctx context.Context, kind RoomKind) ([]WireMessage, error) {
	return s.HistoryLimit(ctx, kind, s.historyLimit)
}

// HistoryLimit 同 History，但允许调用方指定更小的上限。
func (s *MessageService) HistoryLimit(ctx context.Context, kind RoomKind, limit int) ([]WireMessage, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	f := store.Filter{View: kind.View(), Room: s.rooms.Name(kind), Now: s.now()}
	msgs, err := s.store.QueryHistory(ctx, f, limit)
	if err != nil {
		return nil, err
	}
	return toWireList(msgs), nil
}

// ownership 把条件不满足翻译为非作者操作。
func ownership(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return ErrNotOwner
	}
	return err
}
