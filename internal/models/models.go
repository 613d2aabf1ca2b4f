package models

import "time"

// 消息体类型。
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeDocument = "document"
	TypeAudio    = "audio"
)

// ValidType 判断消息体类型是否合法。
func ValidType(t string) bool {
	switch t {
	case TypeText, TypeImage, TypeDocument, TypeAudio:
		return true
	}
	return false
}

// Message 是持久化的聊天消息。ExpiresAt 为 nil 表示持久消息，否则为临时消息。
type Message struct {
	ID        uint       `gorm:"primaryKey"`
	Username  string     `gorm:"index;size:64;not null"`
	Text      string     `gorm:"type:text;not null"`
	FileName  string     `gorm:"size:255"`
	Type      string     `gorm:"size:16;not null;default:text"`
	Room      string     `gorm:"index:idx_msg_room;size:64;not null"`
	Edited    bool       `gorm:"not null;default:false"`
	ReadAt    *time.Time `gorm:"default:null"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time  `gorm:"index"`

	// Reactions 由 reactions 表组装：username -> symbol。
	Reactions map[string]string `gorm:"-"`
}

// Durable 表示消息没有过期时间。
func (m *Message) Durable() bool { return m.ExpiresAt == nil }

// Expired 判断消息在 now 时刻是否已经过期。
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// Clone 返回深拷贝，避免调用方共享 map 与指针。
func (m *Message) Clone() *Message {
	out := *m
	if m.ReadAt != nil {
		t := *m.ReadAt
		out.ReadAt = &t
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		out.ExpiresAt = &t
	}
	out.Reactions = make(map[string]string, len(m.Reactions))
	for k, v := range m.Reactions {
		out.Reactions[k] = v
	}
	return &out
}

// Reaction 每个用户在一条消息上最多一条记录。
type Reaction struct {
	MessageID uint   `gorm:"primaryKey"`
	Username  string `gorm:"primaryKey;size:64"`
	Symbol    string `gorm:"size:32;not null"`
	CreatedAt time.Time
}
