// puzzle/puzzle.go
package puzzle

// 线性谜题进度（环境叙事三回合）：
// Round 1
//   0: 开局 -> 点击椅子找到钥匙
//   1: 拿到钥匙 -> 对齐三本书 -> 抽屉解锁 -> 获得U盘
// Round 2
//   2: 拿到U盘 -> 插入笔记本
//   3: 笔记本激活 -> 关台灯
//   4: 灯灭（UV可见）-> 点击暗格书
//   5: 暗格打开 -> 解符号锁 -> 获得空调遥控器
// Round 3
//   6: 拿到遥控器 -> 打开空调
//   7: 空调启动 -> 看温度计/窗帘 -> 键盘输入密码 -> 逃脱
const (
	StageChairKey   = 0
	StageAlignBooks = 1
	StageInsertUSB  = 2
	StageToggleLamp = 3
	StagePushBook   = 4
	StageSymbolLock = 5
	StageTurnOnAC   = 6
	StageEscapeDoor = 7
	StageEscaped    = 8
)

// 谜题尝试类型，与客户端 attempt_puzzle 事件的 puzzleType 字段一致
const (
	TypeChairKey   = "chair_key"
	TypeAlignBook  = "align_book"
	TypeInsertUSB  = "insert_usb"
	TypeToggleLamp = "toggle_lamp"
	TypePushBook   = "push_book"
	TypeSymbolLock = "symbol_lock"
	TypeTurnOnAC   = "turn_on_ac"
	TypeEscapeDoor = "escape_door"
)

const (
	ItemDeskKey  = "desk_key"
	ItemUSBDrive = "usb_drive"
	ItemACRemote = "ac_remote"
)

// DoorCode 出口键盘密码
const DoorCode = "2026"

// Disposition 区分三类结果：沉默忽略、向房间广播的进展、只回发起者的显式失败
type Disposition int

const (
	// Ignored 类型与当前阶段不符或前置条件未满足：不改状态、不广播
	Ignored Disposition = iota
	// Partial 阶段内进展（某本书对齐）但阶段不变，向全房间广播
	Partial
	// Solved 阶段推进，向全房间广播
	Solved
	// Failed 显式失败（符号锁、门禁密码），只回发起连接
	Failed
)

// View 是规则判定所需的房间状态只读投影
type View struct {
	Stage     int
	Books     map[string]bool
	LampOff   bool
	Inventory []string
}

func (v View) hasItem(itemID string) bool {
	for _, id := range v.Inventory {
		if id == itemID {
			return true
		}
	}
	return false
}

// Outcome 是一次尝试的判定结果。所有副作用由房间在单一入口统一施加，
// 这里只描述要发生什么。
type Outcome struct {
	Disposition Disposition
	Message     string
	GrantItem   string // 需加入共享背包的物品，空串表示无
	AlignBook   string // 需置位的对齐标记 (book1/book2/book3)
	SetLampOff  bool
	NextStage   int
	Escaped     bool // NextStage 到达终态
}

func ignored(stage int) Outcome {
	return Outcome{Disposition: Ignored, NextStage: stage}
}

func failed(stage int, message string) Outcome {
	return Outcome{Disposition: Failed, Message: message, NextStage: stage}
}

var validSymbolCombos = map[string]bool{
	"star_moon_sun": true, "star_sun_moon": true,
	"moon_star_sun": true, "moon_sun_star": true,
	"sun_star_moon": true, "sun_moon_star": true,
}

type rule struct {
	acceptType string
	resolve    func(view View, payload string) Outcome
}

// rules 按当前阶段查表；每个阶段只接受一种尝试类型
var rules = map[int]rule{
	StageChairKey: {TypeChairKey, func(view View, payload string) Outcome {
		return Outcome{
			Disposition: Solved,
			GrantItem:   ItemDeskKey,
			NextStage:   StageAlignBooks,
			Message:     "Silver key acquired. A tag reads: 'Knowledge must be aligned before it can be unlocked. Face the shelf.'",
		}
	}},
	StageAlignBooks: {TypeAlignBook, func(view View, payload string) Outcome {
		if payload != "book1" && payload != "book2" && payload != "book3" {
			return ignored(view.Stage)
		}
		aligned := 0
		for _, book := range []string{"book1", "book2", "book3"} {
			if view.Books[book] || book == payload {
				aligned++
			}
		}
		if aligned == 3 {
			return Outcome{
				Disposition: Solved,
				AlignBook:   payload,
				GrantItem:   ItemUSBDrive,
				NextStage:   StageInsertUSB,
				Message:     "A hidden mechanism clicks. You found a USB drive. A dormant screen nearby awaits its data.",
			}
		}
		return Outcome{
			Disposition: Partial,
			AlignBook:   payload,
			NextStage:   view.Stage,
			Message:     "Aligned " + payload + ".",
		}
	}},
	StageInsertUSB: {TypeInsertUSB, func(view View, payload string) Outcome {
		if !view.hasItem(ItemUSBDrive) {
			return ignored(view.Stage)
		}
		return Outcome{
			Disposition: Solved,
			NextStage:   StageToggleLamp,
			Message:     "System booting... 'The truth is often written in the dark. Kill the lights to see what the shadows hide.'",
		}
	}},
	StageToggleLamp: {TypeToggleLamp, func(view View, payload string) Outcome {
		return Outcome{
			Disposition: Solved,
			SetLampOff:  true,
			NextStage:   StagePushBook,
			Message:     "UV light illuminates the room... 'The thickest, strangest tome holds the next secret.'",
		}
	}},
	StagePushBook: {TypePushBook, func(view View, payload string) Outcome {
		return Outcome{
			Disposition: Solved,
			NextStage:   StageSymbolLock,
			Message:     "A golden vault emerges! Look to the heavens to unlock it.",
		}
	}},
	StageSymbolLock: {TypeSymbolLock, func(view View, payload string) Outcome {
		if !validSymbolCombos[payload] {
			return failed(view.Stage, "Incorrect symbols.")
		}
		return Outcome{
			Disposition: Solved,
			GrantItem:   ItemACRemote,
			NextStage:   StageTurnOnAC,
			Message:     "You found a remote control. The air feels heavy... maybe it's time to cool things down?",
		}
	}},
	StageTurnOnAC: {TypeTurnOnAC, func(view View, payload string) Outcome {
		if !view.hasItem(ItemACRemote) {
			return ignored(view.Stage)
		}
		return Outcome{
			Disposition: Solved,
			NextStage:   StageEscapeDoor,
			Message:     "The blast of cold air stirs the room, shifting fabrics to reveal what was painted behind.",
		}
	}},
	StageEscapeDoor: {TypeEscapeDoor, func(view View, payload string) Outcome {
		if payload != DoorCode {
			return failed(view.Stage, "Invalid keypad code.")
		}
		return Outcome{
			Disposition: Solved,
			NextStage:   StageEscaped,
			Escaped:     true,
			Message:     "DOOR UNLOCKED!",
		}
	}},
}

// Resolve 是纯判定函数：按 (阶段, 尝试类型) 查表，返回应施加的效果。
// 不匹配的尝试一律沉默忽略，终态之后没有任何转移。
func Resolve(view View, puzzleType, payload string) Outcome {
	r, exists := rules[view.Stage]
	if !exists || r.acceptType != puzzleType {
		return ignored(view.Stage)
	}
	return r.resolve(view, payload)
}
