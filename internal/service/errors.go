package service

import (
	"errors"

	"chatrelay/internal/store"
)

// 业务层通用错误，dispatcher 据此决定回给请求方的 action-error 原因。
var (
	ErrNotFound        = store.ErrNotFound
	ErrNotOwner        = errors.New("not the message author")
	ErrUnauthenticated = errors.New("session not authenticated")
	ErrAuthFailed      = errors.New("invalid code")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrUnknownRoom     = errors.New("unknown room")

	errUnknownEvent = errors.New("unknown event")
)

// reason 把错误映射为 action-error 中的原因字符串。
func reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrNotOwner):
		return "not-owner"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid-payload"
	case errors.Is(err, ErrUnknownRoom):
		return "unknown-room"
	case errors.Is(err, errUnknownEvent):
		return "unknown-event"
	default:
		return "internal"
	}
}
