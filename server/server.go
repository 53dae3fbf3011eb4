package server

import (
	"encoding/json"
	"net/http"
	stdrpc "net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/escaperoom/broadcast"
	"github.com/wfunc/escaperoom/config"
	"github.com/wfunc/escaperoom/logger"
	"github.com/wfunc/escaperoom/models"
	"github.com/wfunc/escaperoom/monitor"
	"github.com/wfunc/escaperoom/network"
	"github.com/wfunc/escaperoom/persistence"
	"github.com/wfunc/escaperoom/puzzle"
	"github.com/wfunc/escaperoom/room"
	escaperoom_rpc "github.com/wfunc/escaperoom/rpc"
	"github.com/wfunc/escaperoom/services"
	"github.com/wfunc/escaperoom/session"
	"github.com/wfunc/escaperoom/timer"
)

// GameServer 是传输边界：接受WebSocket连接，把入站意图翻译成房间调用，
// 再把房间产生的事件按范围扇出。不含任何游戏规则。
type GameServer struct {
	addr           string
	initialTime    int
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	recordService  *services.RecordService
	mon            *monitor.Monitor
	rpcServer      *escaperoom_rpc.Server
	scheduler      *timer.TimerManager
	metricsAddr    string
	shutdownChan   chan struct{}
}

func NewGameServer(cfg *config.Config, db persistence.Database) *GameServer {
	scheduler := timer.NewTimerManager()

	s := &GameServer{
		addr:           cfg.Server.HTTPAddress,
		initialTime:    cfg.Game.InitialTimeSeconds,
		roomManager:    room.NewManager(cfg.Game.InitialTimeSeconds, cfg.Game.HintPenaltySeconds, scheduler),
		sessionManager: session.NewManager(),
		mon:            monitor.NewMonitor("escaperoom"),
		scheduler:      scheduler,
		metricsAddr:    cfg.Server.MetricsAddress,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	s.broadcaster = broadcast.NewRoomBroadcaster(s.sessionManager)
	s.roomManager.SetOnEnd(s.handleGameEnd)

	if db != nil {
		s.recordService = services.NewRecordService(db)
	}

	// 初始化RPC服务器
	rpcServer, err := escaperoom_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	// 注册RPC服务
	adminService := escaperoom_rpc.NewAdminService(s.roomManager, s.recordService)
	stdrpc.Register(adminService)

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()
	s.mon.StartServer(s.metricsAddr)

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.rpcServer.Stop()
	s.scheduler.Stop()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.mon.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.handleDisconnect(sess)
		wsConn.Close()
		s.mon.DecOnlinePlayers()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.mon.IncEventsReceived()

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.LastActive = time.Now()
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypePlayerMove:
		s.handlePlayerMove(sess, packet)
	case network.MsgTypeCollectItem:
		s.handleCollectItem(sess, packet)
	case network.MsgTypeAttemptPuzzle:
		s.handleAttemptPuzzle(sess, packet)
	case network.MsgTypeUseHint:
		s.handleUseHint(sess, packet)
	case network.MsgTypeChat:
		s.handleChat(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}

	s.mon.ObserveEventLatency(time.Since(start))
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	var req models.JoinRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	if req.RoomID == "" {
		return
	}

	// 已在别的房间时先离开，一个连接同一时刻只属于一个房间
	if prev := sess.RoomID(); prev != "" && prev != req.RoomID {
		s.leaveRoom(sess, prev)
	}

	username := req.Username
	if username == "" {
		username = room.DefaultUsername
	}

	rm := s.roomManager.GetOrCreate(req.RoomID)
	rm.AddPlayer(sess.ID, username)
	sess.SetIdentity(req.RoomID, username)

	logger.Log.Infof("Session %s joined room %s as %q", sess.GetID(), req.RoomID, username)

	sess.SendJSON(network.MsgTypeJoinAck, models.JoinAck{
		Status: "ok",
		RoomID: req.RoomID,
		State:  rm.Snapshot(),
	})
	s.broadcaster.Deliver(broadcast.ScopeRoomExceptSender, req.RoomID, sess.ID,
		network.MsgTypePlayerJoined, models.PlayerJoined{ID: sess.ID, Username: username})

	s.mon.SetActiveRooms(s.roomManager.ActiveCount())
}

func (s *GameServer) handlePlayerMove(sess *session.Session, packet *network.Packet) {
	var req models.MoveRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	rm := s.roomManager.GetOrCreate(req.RoomID)
	rm.UpdateTransform(sess.ID, req.Position, req.Rotation)

	// 发送者本地渲染自己的移动，只转发给房间内其他人
	s.broadcaster.Deliver(broadcast.ScopeRoomExceptSender, req.RoomID, sess.ID,
		network.MsgTypePlayerMoved, models.PlayerMoved{
			ID:       sess.ID,
			Position: req.Position,
			Rotation: req.Rotation,
		})
}

func (s *GameServer) handleCollectItem(sess *session.Session, packet *network.Packet) {
	var req models.CollectRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	rm := s.roomManager.GetOrCreate(req.RoomID)
	if !rm.CollectItem(req.ItemID) {
		// 重复拾取：不改状态也不广播
		return
	}

	snap := rm.Snapshot()
	s.broadcaster.Deliver(broadcast.ScopeRoom, req.RoomID, sess.ID,
		network.MsgTypeInventoryUpdated, models.InventoryUpdated{
			Inventory:   snap.Inventory,
			CollectedBy: sess.ID,
			ItemID:      req.ItemID,
		})
	if req.CustomMessage != "" {
		s.broadcaster.Deliver(broadcast.ScopeRoom, req.RoomID, sess.ID,
			network.MsgTypeServerMessage, models.ServerMessage{Message: req.CustomMessage})
	}
}

func (s *GameServer) handleAttemptPuzzle(sess *session.Session, packet *network.Packet) {
	var req models.AttemptRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	rm := s.roomManager.GetOrCreate(req.RoomID)
	out, snap := rm.AttemptPuzzle(req.PuzzleType, req.Payload)

	switch out.Disposition {
	case puzzle.Solved, puzzle.Partial:
		s.broadcaster.Deliver(broadcast.ScopeRoom, req.RoomID, sess.ID,
			network.MsgTypePuzzleSolved, models.PuzzleSolved{
				Stage:     snap.PuzzleStage,
				Message:   out.Message,
				LampOff:   snap.LampOff,
				Inventory: snap.Inventory,
			})
		if out.Disposition == puzzle.Solved {
			s.mon.IncPuzzleSolves()
		}
		if out.Escaped {
			s.broadcaster.Deliver(broadcast.ScopeRoom, req.RoomID, sess.ID,
				network.MsgTypeEscapeSuccess, models.EscapeSuccess{
					Score: snap.Score,
					Time:  snap.TimeLeft,
				})
		}
	case puzzle.Failed:
		// 显式失败只回发起连接，可无限重试
		s.broadcaster.Deliver(broadcast.ScopeSender, req.RoomID, sess.ID,
			network.MsgTypePuzzleFailed, models.PuzzleFailed{Message: out.Message})
	case puzzle.Ignored:
		// 类型与阶段不符：静默丢弃
	}
}

func (s *GameServer) handleUseHint(sess *session.Session, packet *network.Packet) {
	var req models.HintRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	rm := s.roomManager.GetOrCreate(req.RoomID)
	snap := rm.UseHint()

	s.broadcaster.Deliver(broadcast.ScopeRoom, req.RoomID, sess.ID,
		network.MsgTypeHintUsed, models.HintUsed{
			HintsUsed: snap.HintsUsed,
			TimeLeft:  snap.TimeLeft,
		})
}

func (s *GameServer) handleChat(sess *session.Session, packet *network.Packet) {
	var req models.ChatRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	// 纯转发，服务器不保存聊天记录
	s.broadcaster.Deliver(broadcast.ScopeRoom, req.RoomID, sess.ID,
		network.MsgTypeChatMessage, models.ChatMessage{
			ID:       sess.ID,
			Username: sess.Username(),
			Message:  req.Message,
		})
}

func (s *GameServer) handleDisconnect(sess *session.Session) {
	if roomID := sess.RoomID(); roomID != "" {
		s.leaveRoom(sess, roomID)
	}
	s.sessionManager.Remove(sess.ID)
}

func (s *GameServer) leaveRoom(sess *session.Session, roomID string) {
	if rm, exists := s.roomManager.Get(roomID); exists {
		rm.RemovePlayer(sess.ID)
	}
	sess.SetIdentity("", "")
	s.broadcaster.Deliver(broadcast.ScopeRoomExceptSender, roomID, sess.ID,
		network.MsgTypePlayerLeft, models.PlayerLeft{ID: sess.ID})
	s.mon.SetActiveRooms(s.roomManager.ActiveCount())
}

// handleGameEnd 房间停止时触发一次，三种终局（逃脱/超时/空房）同一入口。
// 落盘对局记录并刷新指标。
func (s *GameServer) handleGameEnd(snap models.RoomSnapshot) {
	logger.Log.Infof("Room %s ended: stage=%d score=%d timeLeft=%d",
		snap.RoomID, snap.PuzzleStage, snap.Score, snap.TimeLeft)

	if snap.PuzzleStage >= puzzle.StageEscaped {
		s.mon.IncEscapes()
	}
	s.mon.SetActiveRooms(s.roomManager.ActiveCount())

	if s.recordService == nil {
		return
	}
	duration := s.initialTime - snap.TimeLeft
	if duration < 0 {
		duration = 0
	}
	if err := s.recordService.RecordGameEnd(snap, duration); err != nil {
		logger.Log.Errorf("Failed to record game end for room %s: %v", snap.RoomID, err)
	}
}
