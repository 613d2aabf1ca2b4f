package service

import (
	"context"
	"strings"

	"chatrelay/internal/auth"
	"chatrelay/internal/metrics"

	"github.com/rs/zerolog/log"
)

const maxUsernameLen = 64

// SessionService 是会话入口：校验共享口令、绑定身份、进入房间并下发历史。
type SessionService struct {
	router Router
	gate   *auth.Passphrase
	msgs   *MessageService
	rooms  Rooms
}

func NewSessionService(router Router, gate *auth.Passphrase, msgs *MessageService) *SessionService {
	return &SessionService{router: router, gate: gate, msgs: msgs, rooms: msgs.rooms}
}

// Join 处理 join 事件。口令错误时只回 auth-fail，身份保持未绑定。
func (s *SessionService) Join(ctx context.Context, connID, code, username string) error {
	username = strings.TrimSpace(username)
	if !s.gate.Check(code) || username == "" || len(username) > maxUsernameLen {
		metrics.AuthFailuresTotal.Inc()
		log.Info().Str("conn_id", connID).Msg("join rejected")
		s.router.SendTo(connID, EventAuthFail, empty{})
		return ErrAuthFailed
	}
	if !s.router.Bind(connID, username) {
		return ErrNotFound
	}
	log.Info().Str("conn_id", connID).Str("username", username).Msg("join")
	s.router.SendTo(connID, EventAuthSuccess, empty{})
	return s.enter(ctx, connID, username, RoomNormal)
}

// SwitchMode 在持久房间与临时房间之间切换，并下发目标房间的历史。
func (s *SessionService) SwitchMode(ctx context.Context, connID, mode string) error {
	sess, ok := s.router.Session(connID)
	if !ok || sess.Identity == "" {
		return ErrUnauthenticated
	}
	kind, err := s.rooms.ParseMode(mode)
	if err != nil {
		return err
	}
	return s.enter(ctx, connID, sess.Identity, kind)
}

// enter 换入目标房间并下发历史。换房到历史帧送出之间的实时帧由 Router 暂存，
// 因此历史帧总是先于该房间的实时消息到达。
func (s *SessionService) enter(ctx context.Context, connID, identity string, kind RoomKind) error {
	room := s.rooms.Name(kind)
	s.router.Enter(connID, room)
	history, err := s.msgs.History(ctx, kind)
	if err != nil {
		s.router.Release(connID, "", nil)
		return err
	}
	s.router.Release(connID, EventLoadHistory, history)
	if _, err := s.msgs.MarkAllRead(ctx, identity, room); err != nil {
		return err
	}
	return nil
}
