// room/room.go
package room

import (
	"sync"
	"time"

	"github.com/wfunc/escaperoom/models"
	"github.com/wfunc/escaperoom/puzzle"
	"github.com/wfunc/escaperoom/timer"
)

// DefaultUsername 未提供用户名时的兜底展示名
const DefaultUsername = "Operator"

// spawnPosition 新玩家的出生点（站立视角高度 1.6）
var spawnPosition = [3]float64{0, 1.6, 0}

// Room 是单局游戏的核心结构：倒计时、谜题阶段、共享背包、玩家名册。
// 所有字段由同一把锁守护，同一房间的变更彼此串行，跨房间互不竞争。
type Room struct {
	ID        string
	CreatedAt time.Time

	mutex     sync.Mutex
	timeLeft  int
	active    bool
	stage     int
	inventory []string
	books     map[string]bool
	lampOff   bool
	players   map[string]models.PlayerState
	hintsUsed int
	score     int

	hintPenalty int
	sched       timer.Scheduler
	timerID     int64
	onEnd       func(models.RoomSnapshot)
}

// NewRoom 创建房间并立即注册秒级倒计时
func NewRoom(id string, initialTime, hintPenalty int, sched timer.Scheduler, onEnd func(models.RoomSnapshot)) *Room {
	r := &Room{
		ID:          id,
		CreatedAt:   time.Now(),
		timeLeft:    initialTime,
		active:      true,
		stage:       puzzle.StageChairKey,
		inventory:   make([]string, 0),
		books:       map[string]bool{"book1": false, "book2": false, "book3": false},
		players:     make(map[string]models.PlayerState),
		hintPenalty: hintPenalty,
		sched:       sched,
		onEnd:       onEnd,
	}
	r.timerID = sched.Schedule(time.Second, time.Second, r.Tick)
	return r
}

// Tick 每秒由调度器调用一次。倒数到 0 房间冻结（弃权，得分保持 0）。
func (r *Room) Tick() {
	r.mutex.Lock()
	if !r.active {
		r.mutex.Unlock()
		return
	}
	r.timeLeft--
	if r.timeLeft > 0 {
		r.mutex.Unlock()
		return
	}
	r.timeLeft = 0
	hook, snap := r.endLocked(false)
	r.mutex.Unlock()
	if hook != nil {
		hook(snap)
	}
}

// AddPlayer 在名册中登记连接，同一连接ID重复加入时覆盖旧条目
func (r *Room) AddPlayer(connID, username string) {
	if username == "" {
		username = DefaultUsername
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.players[connID] = models.PlayerState{
		Username: username,
		Position: spawnPosition,
	}
}

// RemovePlayer 移除名册条目；名册清空时立即结束对局，
// 没必要为空房间继续跑服务器侧倒计时。
func (r *Room) RemovePlayer(connID string) {
	r.mutex.Lock()
	delete(r.players, connID)
	var (
		hook func(models.RoomSnapshot)
		snap models.RoomSnapshot
	)
	if len(r.players) == 0 {
		hook, snap = r.endLocked(false)
	}
	r.mutex.Unlock()
	if hook != nil {
		hook(snap)
	}
}

// UpdateTransform 覆盖玩家位置与朝向。未知连接（断线后迟到的包）静默忽略。
func (r *Room) UpdateTransform(connID string, position, rotation [3]float64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	p, exists := r.players[connID]
	if !exists {
		return
	}
	p.Position = position
	p.Rotation = rotation
	r.players[connID] = p
}

// CollectItem 向共享背包追加物品，已持有时为无广播的空操作。
// 返回是否新增，调用方据此决定是否广播。
func (r *Room) CollectItem(itemID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.collectLocked(itemID)
}

func (r *Room) collectLocked(itemID string) bool {
	for _, id := range r.inventory {
		if id == itemID {
			return false
		}
	}
	r.inventory = append(r.inventory, itemID)
	return true
}

// AttemptPuzzle 是谜题进度唯一的变更入口：交给规则表判定，
// 在这里统一施加全部副作用，并返回判定结果和更新后的快照供广播。
func (r *Room) AttemptPuzzle(puzzleType, payload string) (puzzle.Outcome, models.RoomSnapshot) {
	r.mutex.Lock()
	if !r.active {
		out := puzzle.Outcome{Disposition: puzzle.Ignored, NextStage: r.stage}
		snap := r.snapshotLocked()
		r.mutex.Unlock()
		return out, snap
	}

	view := puzzle.View{
		Stage:     r.stage,
		Books:     r.books,
		LampOff:   r.lampOff,
		Inventory: r.inventory,
	}
	out := puzzle.Resolve(view, puzzleType, payload)

	if out.AlignBook != "" {
		r.books[out.AlignBook] = true
	}
	if out.SetLampOff {
		r.lampOff = true
	}
	if out.GrantItem != "" {
		r.collectLocked(out.GrantItem)
	}
	if out.NextStage > r.stage {
		r.stage = out.NextStage
	}

	var hook func(models.RoomSnapshot)
	var endSnap models.RoomSnapshot
	if out.Escaped {
		hook, endSnap = r.endLocked(true)
	}
	snap := r.snapshotLocked()
	r.mutex.Unlock()

	if hook != nil {
		hook(endSnap)
	}
	return out, snap
}

// UseHint 计一次提示并扣除固定时间罚秒，与谜题阶段无关
func (r *Room) UseHint() models.RoomSnapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.hintsUsed++
	r.timeLeft -= r.hintPenalty
	if r.timeLeft < 0 {
		r.timeLeft = 0
	}
	return r.snapshotLocked()
}

// EndGame 终态转移：停表、冻结房间。逃脱时结算得分，否则得分为 0。
// 对已结束的房间重复调用是空操作。
func (r *Room) EndGame(escaped bool) {
	r.mutex.Lock()
	hook, snap := r.endLocked(escaped)
	r.mutex.Unlock()
	if hook != nil {
		hook(snap)
	}
}

// endLocked 必须持锁调用。保证定时器恰好释放一次，
// 不论超时、空房、逃脱哪个触发在先。
func (r *Room) endLocked(escaped bool) (func(models.RoomSnapshot), models.RoomSnapshot) {
	if !r.active {
		return nil, models.RoomSnapshot{}
	}
	r.active = false
	if r.timerID != 0 {
		r.sched.Cancel(r.timerID)
		r.timerID = 0
	}
	if escaped {
		r.score = r.timeLeft*10 - r.hintsUsed*500
		if r.score < 0 {
			r.score = 0
		}
	} else {
		r.score = 0
	}
	return r.onEnd, r.snapshotLocked()
}

// Snapshot 返回可直接下发给客户端的完整公开投影
func (r *Room) Snapshot() models.RoomSnapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() models.RoomSnapshot {
	inventory := make([]string, len(r.inventory))
	copy(inventory, r.inventory)
	players := make(map[string]models.PlayerState, len(r.players))
	for id, p := range r.players {
		players[id] = p
	}
	return models.RoomSnapshot{
		RoomID:      r.ID,
		TimeLeft:    r.timeLeft,
		IsActive:    r.active,
		PuzzleStage: r.stage,
		Inventory:   inventory,
		Players:     players,
		HintsUsed:   r.hintsUsed,
		Score:       r.score,
		BooksAligned: models.BookFlags{
			Book1: r.books["book1"],
			Book2: r.books["book2"],
			Book3: r.books["book3"],
		},
		LampOff: r.lampOff,
	}
}

// PlayerCount 当前名册人数
func (r *Room) PlayerCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.players)
}

// IsActive 房间是否仍在进行中
func (r *Room) IsActive() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.active
}

// --- 房间注册表 ---

// Manager 进程级注册表：房间ID到房间的唯一映射，首次引用即惰性创建
type Manager struct {
	rooms       map[string]*Room
	mutex       sync.RWMutex
	sched       timer.Scheduler
	initialTime int
	hintPenalty int
	onEnd       func(models.RoomSnapshot)
}

func NewManager(initialTime, hintPenalty int, sched timer.Scheduler) *Manager {
	return &Manager{
		rooms:       make(map[string]*Room),
		sched:       sched,
		initialTime: initialTime,
		hintPenalty: hintPenalty,
	}
}

// SetOnEnd 注册对局结束回调，随后创建的每个房间停止时触发一次。
// 必须在第一个房间创建之前调用。
func (m *Manager) SetOnEnd(fn func(models.RoomSnapshot)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onEnd = fn
}

// GetOrCreate 返回既有房间，不存在则构造并启动倒计时。没有失败路径。
func (m *Manager) GetOrCreate(roomID string) *Room {
	m.mutex.RLock()
	r, exists := m.rooms[roomID]
	m.mutex.RUnlock()
	if exists {
		return r
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if r, exists := m.rooms[roomID]; exists {
		return r
	}
	r = NewRoom(roomID, m.initialTime, m.hintPenalty, m.sched, m.onEnd)
	m.rooms[roomID] = r
	return r
}

func (m *Manager) Get(roomID string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	r, exists := m.rooms[roomID]
	return r, exists
}

// Remove 显式清理：停表并丢弃条目。常规流程依赖空房规则，不走这里。
func (m *Manager) Remove(roomID string) {
	m.mutex.Lock()
	r, exists := m.rooms[roomID]
	if exists {
		delete(m.rooms, roomID)
	}
	m.mutex.Unlock()

	if exists {
		r.EndGame(false)
	}
}

// ActiveCount 仍在进行中的房间数，供指标上报
func (m *Manager) ActiveCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	count := 0
	for _, r := range m.rooms {
		if r.IsActive() {
			count++
		}
	}
	return count
}
