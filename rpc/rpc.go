package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/escaperoom/logger"
	"github.com/wfunc/escaperoom/models"
	"github.com/wfunc/escaperoom/room"
	"github.com/wfunc/escaperoom/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrPersistenceDisabled = errors.New("persistence disabled")
)

// AdminService 运维侧RPC：查看房间、显式回收房间、查询得分榜。
// 注册表的显式 Remove 只从这里可达，常规清理走空房规则。
type AdminService struct {
	rooms   *room.Manager
	records *services.RecordService
}

// NewAdminService creates the admin RPC facade. records may be nil when the
// server runs without a database.
func NewAdminService(rooms *room.Manager, records *services.RecordService) *AdminService {
	return &AdminService{rooms: rooms, records: records}
}

type GetRoomArgs struct {
	RoomID string
}

type GetRoomReply struct {
	State models.RoomSnapshot
}

func (a *AdminService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	r, exists := a.rooms.Get(args.RoomID)
	if !exists {
		return ErrRoomNotFound
	}
	reply.State = r.Snapshot()
	return nil
}

type RemoveRoomArgs struct {
	RoomID string
}

type RemoveRoomReply struct {
	Removed bool
}

func (a *AdminService) RemoveRoom(args *RemoveRoomArgs, reply *RemoveRoomReply) error {
	_, exists := a.rooms.Get(args.RoomID)
	if !exists {
		return ErrRoomNotFound
	}
	a.rooms.Remove(args.RoomID)
	reply.Removed = true
	return nil
}

type LeaderboardArgs struct {
	Limit int
}

type LeaderboardReply struct {
	Records []models.EscapeRecord
}

func (a *AdminService) Leaderboard(args *LeaderboardArgs, reply *LeaderboardReply) error {
	if a.records == nil {
		return ErrPersistenceDisabled
	}
	records, err := a.records.Leaderboard(args.Limit)
	if err != nil {
		return err
	}
	reply.Records = records
	return nil
}
