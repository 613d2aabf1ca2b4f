package service

import (
	"bytes"
	"encoding/json"
	"time"

	"chatrelay/internal/models"
)

// 客户端 -> 服务端事件。
const (
	EventJoin         = "join"
	EventChatMessage  = "chat-message"
	EventReact        = "react"
	EventUnsend       = "unsend-message"
	EventEdit         = "edit-message"
	EventMarkAsRead   = "mark-as-read"
	EventSwitchMode   = "switch-mode"
	EventTyping       = "typing"
	EventStopTyping   = "stop-typing"
	EventCallUser     = "call-user"
	EventMakeAnswer   = "make-answer"
	EventICECandidate = "ice-candidate"
	EventHangUp       = "hang-up"
)

// 服务端 -> 客户端事件。chat-message 与 ice-candidate 两个方向同名。
const (
	EventAuthSuccess    = "auth-success"
	EventAuthFail       = "auth-fail"
	EventLoadHistory    = "load-history"
	EventUpdateReaction = "update-reaction"
	EventMessageUnsent  = "message-unsent"
	EventMessageEdited  = "message-edited"
	EventMessagesRead   = "messages-read"
	EventSingleMsgRead  = "single-msg-read"
	EventDisplayTyping  = "display-typing"
	EventHideTyping     = "hide-typing"
	EventCallMade       = "call-made"
	EventAnswerMade     = "answer-made"
	EventCallEnded      = "call-ended"
	EventActionError    = "action-error"
)

// WireMessage 是消息在线路上的表示。
type WireMessage struct {
	ID        uint              `json:"id"`
	Username  string            `json:"username"`
	Text      string            `json:"text"`
	FileName  string            `json:"fileName"`
	Type      string            `json:"type"`
	Room      string            `json:"room"`
	Reactions map[string]string `json:"reactions"`
	ReadAt    *time.Time        `json:"readAt"`
	ExpiresAt *time.Time        `json:"expiresAt"`
	Timestamp time.Time         `json:"timestamp"`
	IsEdited  bool              `json:"isEdited"`
}

func toWire(m *models.Message) WireMessage {
	reactions := m.Reactions
	if reactions == nil {
		reactions = map[string]string{}
	}
	return WireMessage{
		ID:        m.ID,
		Username:  m.Username,
		Text:      m.Text,
		FileName:  m.FileName,
		Type:      m.Type,
		Room:      m.Room,
		Reactions: reactions,
		ReadAt:    m.ReadAt,
		ExpiresAt: m.ExpiresAt,
		Timestamp: m.CreatedAt,
		IsEdited:  m.Edited,
	}
}

func toWireList(msgs []models.Message) []WireMessage {
	out := make([]WireMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, toWire(&msgs[i]))
	}
	return out
}

type joinPayload struct {
	Code     string `json:"code"`
	Username string `json:"username"`
}

type chatPayload struct {
	Text     string `json:"text"`
	Type     string `json:"type"`
	FileName string `json:"fileName"`
	IsTemp   bool   `json:"isTemp"`
}

type reactPayload struct {
	MessageID uint   `json:"messageId"`
	Reaction  string `json:"reaction"`
}

type editPayload struct {
	MessageID uint   `json:"messageId"`
	NewText   string `json:"newText"`
}

type modePayload struct {
	Mode string `json:"mode"`
}

type callPayload struct {
	Offer json.RawMessage `json:"offer"`
}

type answerPayload struct {
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer"`
}

type icePayload struct {
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}

type empty struct{}

type reactionUpdate struct {
	MessageID uint              `json:"messageId"`
	Reactions map[string]string `json:"reactions"`
}

type messageRef struct {
	MessageID uint `json:"messageId"`
}

type messageEdited struct {
	MessageID uint   `json:"messageId"`
	NewText   string `json:"newText"`
	IsEdited  bool   `json:"isEdited"`
}

type typingNotice struct {
	Username string `json:"username"`
}

type callMade struct {
	Offer json.RawMessage `json:"offer"`
	From  string          `json:"from"`
}

type answerMade struct {
	From   string          `json:"from"`
	Answer json.RawMessage `json:"answer"`
}

type iceRelay struct {
	Candidate json.RawMessage `json:"candidate"`
}

type actionError struct {
	Action    string `json:"action"`
	MessageID uint   `json:"messageId,omitempty"`
	Reason    string `json:"reason"`
}

// decodeMessageRef 接受 {"messageId": n}，也兼容直接发送数字 id 的旧客户端。
func decodeMessageRef(data json.RawMessage) (uint, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		var id uint
		if err := json.Unmarshal(trimmed, &id); err != nil || id == 0 {
			return 0, ErrInvalidPayload
		}
		return id, nil
	}
	var ref messageRef
	if err := decode(data, &ref); err != nil || ref.MessageID == 0 {
		return 0, ErrInvalidPayload
	}
	return ref.MessageID, nil
}

// decode 解析事件负载；空负载视为 {}。
func decode(data json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrInvalidPayload
	}
	return nil
}
