package service

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// SignalService 透传通话建立信令。offer/answer/candidate 的内容不做解析。
type SignalService struct {
	router Router
}

func NewSignalService(router Router) *SignalService {
	return &SignalService{router: router}
}

func (s *SignalService) authed(connID string) bool {
	sess, ok := s.router.Session(connID)
	return ok && sess.Identity != ""
}

// CallUser 把 offer 广播给其他所有连接。
func (s *SignalService) CallUser(connID string, offer json.RawMessage) error {
	if !s.authed(connID) {
		return ErrUnauthenticated
	}
	s.router.BroadcastOthers(connID, EventCallMade, callMade{Offer: offer, From: connID})
	return nil
}

// MakeAnswer 把 answer 定向发给 to；目标不在线时静默丢弃。
func (s *SignalService) MakeAnswer(connID, to string, answer json.RawMessage) error {
	if !s.authed(connID) {
		return ErrUnauthenticated
	}
	if !s.router.SendTo(to, EventAnswerMade, answerMade{From: connID, Answer: answer}) {
		log.Debug().Str("conn_id", connID).Str("to", to).Msg("answer target gone")
	}
	return nil
}

func (s *SignalService) ICECandidate(connID, to string, candidate json.RawMessage) error {
	if !s.authed(connID) {
		return ErrUnauthenticated
	}
	if !s.router.SendTo(to, EventICECandidate, iceRelay{Candidate: candidate}) {
		log.Debug().Str("conn_id", connID).Str("to", to).Msg("ice target gone")
	}
	return nil
}

func (s *SignalService) HangUp(connID string) error {
	if !s.authed(connID) {
		return ErrUnauthenticated
	}
	s.router.BroadcastOthers(connID, EventCallEnded, empty{})
	return nil
}
