package service

// PresenceService 转发输入状态，不做持久化，也不做去抖。
type PresenceService struct {
	router Router
}

func NewPresenceService(router Router) *PresenceService {
	return &PresenceService{router: router}
}

func (s *PresenceService) Typing(connID string) error {
	sess, ok := s.router.Session(connID)
	if !ok || sess.Identity == "" {
		return ErrUnauthenticated
	}
	s.router.BroadcastOthers(connID, EventDisplayTyping, typingNotice{Username: sess.Identity})
	return nil
}

func (s *PresenceService) StopTyping(connID string) error {
	sess, ok := s.router.Session(connID)
	if !ok || sess.Identity == "" {
		return ErrUnauthenticated
	}
	s.router.BroadcastOthers(connID, EventHideTyping, empty{})
	return nil
}
