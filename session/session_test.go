package session

import (
	"net"
	"testing"
	"time"

	"github.com/wfunc/escaperoom/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error          { return nil }
func (m *MockConnection) SendJSON(msgID uint16, v interface{}) error    { return nil }
func (m *MockConnection) Close() error                                  { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                          { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)           {}
func (m *MockConnection) ReadPacket() (*network.Packet, error)          { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	// Test Add
	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	// Test Get
	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	// Test Remove
	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_InRoom(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{})
	sess1.SetIdentity("room_a", "alice")

	sess2 := NewSession("session2", &MockConnection{})
	sess2.SetIdentity("room_b", "bob")

	sess3 := NewSession("session3", &MockConnection{})
	sess3.SetIdentity("room_a", "carol")

	manager.Add(sess1)
	manager.Add(sess2)
	manager.Add(sess3)

	roomA := manager.InRoom("room_a")
	if len(roomA) != 2 {
		t.Errorf("Expected 2 sessions in room_a, got %d", len(roomA))
	}

	roomB := manager.InRoom("room_b")
	if len(roomB) != 1 {
		t.Errorf("Expected 1 session in room_b, got %d", len(roomB))
	}

	roomC := manager.InRoom("room_c")
	if len(roomC) != 0 {
		t.Errorf("Expected 0 sessions in room_c, got %d", len(roomC))
	}
}

func TestSession_SetIdentity(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})

	if sess.RoomID() != "" || sess.Username() != "" {
		t.Error("a fresh session should carry no identity")
	}

	sess.SetIdentity("room_a", "alice")
	if sess.RoomID() != "room_a" {
		t.Errorf("Expected room_a, got %q", sess.RoomID())
	}
	if sess.Username() != "alice" {
		t.Errorf("Expected alice, got %q", sess.Username())
	}

	// 离开房间后清空
	sess.SetIdentity("", "")
	if sess.RoomID() != "" {
		t.Errorf("Expected cleared room id, got %q", sess.RoomID())
	}
}
