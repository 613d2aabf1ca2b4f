package service

import (
	"context"
	"encoding/json"
	"errors"

	"chatrelay/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Dispatcher 把客户端事件路由到各服务，实现 ws.Handler。
// 每个事件都按连接 id 重新查询会话；未认证连接的事件（join 除外）一律忽略。
type Dispatcher struct {
	router   Router
	sessions *SessionService
	msgs     *MessageService
	presence *PresenceService
	signal   *SignalService
}

func NewDispatcher(router Router, sessions *SessionService, msgs *MessageService, presence *PresenceService, signal *SignalService) *Dispatcher {
	return &Dispatcher{router: router, sessions: sessions, msgs: msgs, presence: presence, signal: signal}
}

func (d *Dispatcher) HandleEvent(ctx context.Context, connID, event string, data json.RawMessage) {
	if event == EventJoin {
		var p joinPayload
		if err := decode(data, &p); err != nil {
			d.router.SendTo(connID, EventAuthFail, empty{})
			return
		}
		if err := d.sessions.Join(ctx, connID, p.Code, p.Username); err != nil && !errors.Is(err, ErrAuthFailed) {
			log.Error().Err(err).Str("conn_id", connID).Msg("join")
		}
		return
	}

	sess, ok := d.router.Session(connID)
	if !ok || sess.Identity == "" {
		log.Debug().Str("conn_id", connID).Str("event", event).Msg("event before join ignored")
		return
	}

	id, err := d.route(ctx, connID, sess.Identity, event, data)
	d.finish(connID, event, id, err)
}

// route 执行单个事件，返回涉及的消息 id（如果有）。
func (d *Dispatcher) route(ctx context.Context, connID, identity, event string, data json.RawMessage) (uint, error) {
	switch event {
	case EventChatMessage:
		var p chatPayload
		if err := decode(data, &p); err != nil {
			return 0, err
		}
		_, err := d.msgs.Create(ctx, identity, CreateInput{Text: p.Text, Type: p.Type, FileName: p.FileName, IsTemp: p.IsTemp})
		return 0, err
	case EventReact:
		var p reactPayload
		if err := decode(data, &p); err != nil {
			return 0, err
		}
		_, err := d.msgs.React(ctx, identity, p.MessageID, p.Reaction)
		return p.MessageID, err
	case EventUnsend:
		id, err := decodeMessageRef(data)
		if err != nil {
			return 0, err
		}
		return id, d.msgs.Unsend(ctx, identity, id)
	case EventEdit:
		var p editPayload
		if err := decode(data, &p); err != nil {
			return 0, err
		}
		return p.MessageID, d.msgs.Edit(ctx, identity, p.MessageID, p.NewText)
	case EventMarkAsRead:
		id, err := decodeMessageRef(data)
		if err != nil {
			return 0, err
		}
		_, err = d.msgs.MarkRead(ctx, identity, id)
		return id, err
	case EventSwitchMode:
		var p modePayload
		if err := decode(data, &p); err != nil {
			return 0, err
		}
		return 0, d.sessions.SwitchMode(ctx, connID, p.Mode)
	case EventTyping:
		return 0, d.presence.Typing(connID)
	case EventStopTyping:
		return 0, d.presence.StopTyping(connID)
	case EventCallUser:
		var p callPayload
		if err := decode(data, &p); err != nil {
			return 0, err
		}
		return 0, d.signal.CallUser(connID, p.Offer)
	case EventMakeAnswer:
		var p answerPayload
		if err := decode(data, &p); err != nil {
			return 0, err
		}
		return 0, d.signal.MakeAnswer(connID, p.To, p.Answer)
	case EventICECandidate:
		var p icePayload
		if err := decode(data, &p); err != nil {
			return 0, err
		}
		return 0, d.signal.ICECandidate(connID, p.To, p.Candidate)
	case EventHangUp:
		return 0, d.signal.HangUp(connID)
	}
	return 0, errUnknownEvent
}

// finish 记录结果；失败时只向请求方回一个 action-error，不产生公开事件。
func (d *Dispatcher) finish(connID, event string, id uint, err error) {
	switch {
	case err == nil:
		metrics.Action(event, "ok")
		return
	case errors.Is(err, ErrUnauthenticated):
		return
	}
	r := reason(err)
	label := event
	if errors.Is(err, errUnknownEvent) {
		label = "unknown"
	}
	if r == "internal" {
		metrics.Action(label, "error")
		log.Error().Err(err).Str("conn_id", connID).Str("event", event).Uint("message_id", id).Msg("action failed")
	} else {
		metrics.Action(label, "rejected")
		log.Debug().Err(err).Str("conn_id", connID).Str("event", event).Uint("message_id", id).Msg("action rejected")
	}
	d.router.SendTo(connID, EventActionError, actionError{Action: event, MessageID: id, Reason: r})
}

// Disconnected 清除对方界面上可能残留的输入提示。
func (d *Dispatcher) Disconnected(connID string) {
	sess, ok := d.router.Session(connID)
	if !ok || sess.Identity == "" {
		return
	}
	d.router.BroadcastOthers(connID, EventHideTyping, empty{})
}
