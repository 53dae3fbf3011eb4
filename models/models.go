// models/models.go
package models

// PlayerState 房间内单个玩家的可见状态
type PlayerState struct {
	Username string     `json:"username"`
	Position [3]float64 `json:"position"`
	Rotation [3]float64 `json:"rotation"`
}

// BookFlags 书架对齐子状态，三本书都对齐后抽屉才会解锁
type BookFlags struct {
	Book1 bool `json:"book1"`
	Book2 bool `json:"book2"`
	Book3 bool `json:"book3"`
}

// RoomSnapshot 房间状态模型：加入房间时同步给客户端的完整公开投影
type RoomSnapshot struct {
	RoomID       string                 `json:"roomId"`
	TimeLeft     int                    `json:"timeLeft"`
	IsActive     bool                   `json:"isActive"`
	PuzzleStage  int                    `json:"puzzleStage"`
	Inventory    []string               `json:"inventory"`
	Players      map[string]PlayerState `json:"players"`
	HintsUsed    int                    `json:"hintsUsed"`
	Score        int                    `json:"score"`
	BooksAligned BookFlags              `json:"booksAligned"`
	LampOff      bool                   `json:"lampOff"`
}

// --- 客户端意图 ---

type JoinRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type MoveRequest struct {
	RoomID   string     `json:"roomId"`
	Position [3]float64 `json:"position"`
	Rotation [3]float64 `json:"rotation"`
}

type CollectRequest struct {
	RoomID        string `json:"roomId"`
	ItemID        string `json:"itemId"`
	CustomMessage string `json:"customMessage,omitempty"`
}

type AttemptRequest struct {
	RoomID     string `json:"roomId"`
	PuzzleType string `json:"puzzleType"`
	Payload    string `json:"payload,omitempty"`
}

type HintRequest struct {
	RoomID string `json:"roomId"`
}

type ChatRequest struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// --- 服务器事件 ---

type JoinAck struct {
	Status string       `json:"status"`
	RoomID string       `json:"roomId"`
	State  RoomSnapshot `json:"state"`
}

type PlayerJoined struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type PlayerMoved struct {
	ID       string     `json:"id"`
	Position [3]float64 `json:"position"`
	Rotation [3]float64 `json:"rotation"`
}

type PlayerLeft struct {
	ID string `json:"id"`
}

type InventoryUpdated struct {
	Inventory   []string `json:"inventory"`
	CollectedBy string   `json:"collectedBy"`
	ItemID      string   `json:"itemId"`
}

type PuzzleSolved struct {
	Stage     int      `json:"stage"`
	Message   string   `json:"message"`
	LampOff   bool     `json:"lampOff"`
	Inventory []string `json:"inventory"`
}

type PuzzleFailed struct {
	Message string `json:"message"`
}

type EscapeSuccess struct {
	Score int `json:"score"`
	Time  int `json:"time"`
}

type HintUsed struct {
	HintsUsed int `json:"hintsUsed"`
	TimeLeft  int `json:"timeLeft"`
}

type ChatMessage struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type ServerMessage struct {
	Message string `json:"message"`
}
