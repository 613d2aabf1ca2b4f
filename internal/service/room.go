package service

import (
	"strings"

	"chatrelay/internal/store"
	"chatrelay/internal/ws"
)

// RoomKind 区分持久房间与临时房间。
type RoomKind int

const (
	RoomNormal RoomKind = iota
	RoomEphemeral
)

// View 返回该房间历史查询使用的生命周期视图。
func (k RoomKind) View() store.View {
	if k == RoomEphemeral {
		return store.ViewEphemeral
	}
	return store.ViewDurable
}

// Rooms 是按名称索引的房间注册表。
type Rooms struct {
	names map[RoomKind]string
}

func DefaultRooms() Rooms {
	return NewRooms("main", "temp")
}

func NewRooms(normal, ephemeral string) Rooms {
	return Rooms{names: map[RoomKind]string{RoomNormal: normal, RoomEphemeral: ephemeral}}
}

func (r Rooms) Name(k RoomKind) string { return r.names[k] }

// Kind 反查房间名对应的类型。
func (r Rooms) Kind(name string) (RoomKind, bool) {
	for k, n := range r.names {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// ParseMode 解析 switch-mode 的 mode 字段，也接受房间名本身。
func (r Rooms) ParseMode(mode string) (RoomKind, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "normal", "durable":
		return RoomNormal, nil
	case "temp", "ephemeral":
		return RoomEphemeral, nil
	}
	if k, ok := r.Kind(mode); ok {
		return k, nil
	}
	return 0, ErrUnknownRoom
}

// RoomService 对外提供房间列表。
type RoomService struct {
	hub   *ws.Hub
	rooms Rooms
}

func NewRoomService(hub *ws.Hub, rooms Rooms) *RoomService {
	return &RoomService{hub: hub, rooms: rooms}
}

// RoomDTO 是对外输出的房间数据。
type RoomDTO struct {
	Name      string `json:"name"`
	Ephemeral bool   `json:"ephemeral"`
	Online    int    `json:"online"`
}

// List 返回注册表中的房间，附带各房间的在线人数。
func (s *RoomService) List() []RoomDTO {
	out := make([]RoomDTO, 0, 2)
	for _, k := range []RoomKind{RoomNormal, RoomEphemeral} {
		name := s.rooms.Name(k)
		out = append(out, RoomDTO{Name: name, Ephemeral: k == RoomEphemeral, Online: s.hub.Online(name)})
	}
	return out
}

// Resolve 把 URL 中的房间名解析为房间类型。
func (s *RoomService) Resolve(name string) (RoomKind, error) {
	k, ok := s.rooms.Kind(name)
	if !ok {
		return 0, ErrUnknownRoom
	}
	return k, nil
}
