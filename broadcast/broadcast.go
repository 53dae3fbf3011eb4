// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/escaperoom/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// Scope 投递范围：整个房间、房间内除发送者、仅发送者
type Scope int

const (
	ScopeRoom Scope = iota
	ScopeRoomExceptSender
	ScopeSender
)

// 广播接口
type Broadcaster interface {
	Deliver(scope Scope, roomID, senderID string, msgID uint16, payload interface{}) error
}

// RoomBroadcaster 基于会话管理器做房间扇出
type RoomBroadcaster struct {
	sessionManager *session.Manager
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
	}
}

// Deliver 只序列化一次，再按范围逐连接发送。单个连接发送失败不中断扇出，
// 失联连接由读循环的清理路径负责移除。
func (b *RoomBroadcaster) Deliver(scope Scope, roomID, senderID string, msgID uint16, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if scope == ScopeSender {
		s, exists := b.sessionManager.Get(senderID)
		if !exists {
			return ErrSessionNotFound
		}
		return s.Send(msgID, data)
	}

	for _, s := range b.sessionManager.InRoom(roomID) {
		if scope == ScopeRoomExceptSender && s.ID == senderID {
			continue
		}
		if err := s.Send(msgID, data); err != nil {
			continue
		}
	}
	return nil
}
