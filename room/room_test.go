package room

import (
	"testing"
	"time"

	"github.com/wfunc/escaperoom/models"
	"github.com/wfunc/escaperoom/puzzle"
	"github.com/wfunc/escaperoom/timer"
)

// newTestRoom creates a room driven by a logical scheduler, so tests never
// wait on the wall clock.
func newTestRoom(initialTime int) (*Room, *timer.ManualScheduler) {
	sched := timer.NewManualScheduler()
	r := NewRoom("test_room", initialTime, 300, sched, nil)
	return r, sched
}

func advanceSeconds(sched *timer.ManualScheduler, n int) {
	sched.Advance(time.Duration(n) * time.Second)
}

func TestRoom_TickCountdown(t *testing.T) {
	r, sched := newTestRoom(600)

	advanceSeconds(sched, 5)

	snap := r.Snapshot()
	if snap.TimeLeft != 595 {
		t.Errorf("expected 595 seconds left, got %d", snap.TimeLeft)
	}
	if !snap.IsActive {
		t.Error("room should still be active")
	}
}

func TestRoom_TimeoutFreezesRoom(t *testing.T) {
	r, sched := newTestRoom(3)

	advanceSeconds(sched, 10)

	snap := r.Snapshot()
	if snap.TimeLeft != 0 {
		t.Errorf("time left should floor at 0, got %d", snap.TimeLeft)
	}
	if snap.IsActive {
		t.Error("room should deactivate on timeout")
	}
	if snap.Score != 0 {
		t.Errorf("timeout is a forfeit, score should be 0, got %d", snap.Score)
	}
	if sched.Pending() != 0 {
		t.Errorf("timer should be released on timeout, %d tasks still pending", sched.Pending())
	}

	// 冻结后的尝试不再有任何效果
	out, after := r.AttemptPuzzle(puzzle.TypeChairKey, "")
	if out.Disposition != puzzle.Ignored {
		t.Errorf("attempts on a frozen room must be ignored, got %v", out.Disposition)
	}
	if after.PuzzleStage != 0 {
		t.Errorf("stage must not move on a frozen room, got %d", after.PuzzleStage)
	}
}

func TestRoom_CollectItemIdempotent(t *testing.T) {
	r, _ := newTestRoom(600)

	if !r.CollectItem("notebook") {
		t.Fatal("first collect should report a new item")
	}
	if r.CollectItem("notebook") {
		t.Error("second collect of the same item should be a no-op")
	}

	snap := r.Snapshot()
	if len(snap.Inventory) != 1 {
		t.Errorf("expected 1 item in inventory, got %d", len(snap.Inventory))
	}
}

func TestRoom_UseHintPenalty(t *testing.T) {
	r, _ := newTestRoom(600)

	snap := r.UseHint()
	if snap.TimeLeft != 300 || snap.HintsUsed != 1 {
		t.Errorf("expected 300s left and 1 hint, got %d/%d", snap.TimeLeft, snap.HintsUsed)
	}

	snap = r.UseHint()
	if snap.TimeLeft != 0 {
		t.Errorf("hint penalty should floor at 0, got %d", snap.TimeLeft)
	}
	if snap.HintsUsed != 2 {
		t.Errorf("expected 2 hints used, got %d", snap.HintsUsed)
	}
}

func TestRoom_EscapeScore(t *testing.T) {
	// 200秒剩余、零提示 => 2000分
	r, _ := newTestRoom(200)
	r.EndGame(true)
	if got := r.Snapshot().Score; got != 2000 {
		t.Errorf("expected score 2000, got %d", got)
	}

	// 200秒剩余、5次提示 => max(0, 2000-2500) = 0
	r2, _ := newTestRoom(1700)
	for i := 0; i < 5; i++ {
		r2.UseHint()
	}
	if left := r2.Snapshot().TimeLeft; left != 200 {
		t.Fatalf("setup failed: expected 200s left after hints, got %d", left)
	}
	r2.EndGame(true)
	if got := r2.Snapshot().Score; got != 0 {
		t.Errorf("expected score floored at 0, got %d", got)
	}
}

func TestRoom_ForfeitScoreStaysZero(t *testing.T) {
	r, _ := newTestRoom(600)
	r.EndGame(false)
	if got := r.Snapshot().Score; got != 0 {
		t.Errorf("non-escape end must score 0, got %d", got)
	}
}

func TestRoom_LastPlayerLeaveForfeits(t *testing.T) {
	r, sched := newTestRoom(600)
	r.AddPlayer("conn1", "alice")
	r.AddPlayer("conn2", "bob")

	r.RemovePlayer("conn1")
	if !r.IsActive() {
		t.Fatal("room should stay active while players remain")
	}

	r.RemovePlayer("conn2")
	snap := r.Snapshot()
	if snap.IsActive {
		t.Error("room should deactivate when the last player leaves")
	}
	if snap.TimeLeft == 0 {
		t.Error("forfeit cleanup should not depend on the timer running out")
	}
	if sched.Pending() != 0 {
		t.Errorf("timer should be released, %d tasks still pending", sched.Pending())
	}
}

func TestRoom_AddPlayerDefaults(t *testing.T) {
	r, _ := newTestRoom(600)

	r.AddPlayer("conn1", "")
	snap := r.Snapshot()
	p, exists := snap.Players["conn1"]
	if !exists {
		t.Fatal("player should appear in the roster")
	}
	if p.Username != DefaultUsername {
		t.Errorf("expected default username %q, got %q", DefaultUsername, p.Username)
	}
	if p.Position != [3]float64{0, 1.6, 0} {
		t.Errorf("expected spawn position, got %v", p.Position)
	}

	// 同一连接重复加入覆盖旧条目
	r.AddPlayer("conn1", "carol")
	if got := r.Snapshot().Players["conn1"].Username; got != "carol" {
		t.Errorf("rejoin should overwrite the entry, got username %q", got)
	}
	if n := r.PlayerCount(); n != 1 {
		t.Errorf("expected 1 roster entry, got %d", n)
	}
}

func TestRoom_UpdateTransform(t *testing.T) {
	r, _ := newTestRoom(600)
	r.AddPlayer("conn1", "alice")

	pos := [3]float64{1, 2, 3}
	rot := [3]float64{0, 90, 0}
	r.UpdateTransform("conn1", pos, rot)

	p := r.Snapshot().Players["conn1"]
	if p.Position != pos || p.Rotation != rot {
		t.Errorf("transform not stored: %v %v", p.Position, p.Rotation)
	}

	// 未知连接是空操作而非错误
	r.UpdateTransform("ghost", pos, rot)
	if _, exists := r.Snapshot().Players["ghost"]; exists {
		t.Error("unknown connection must not create a roster entry")
	}
}

func TestRoom_ProgressScenario(t *testing.T) {
	r, sched := newTestRoom(600)
	r.AddPlayer("conn1", "alice")

	mustStage := func(want int) {
		t.Helper()
		if got := r.Snapshot().PuzzleStage; got != want {
			t.Fatalf("expected stage %d, got %d", want, got)
		}
	}
	mustHave := func(itemID string) {
		t.Helper()
		for _, id := range r.Snapshot().Inventory {
			if id == itemID {
				return
			}
		}
		t.Fatalf("inventory should contain %s: %v", itemID, r.Snapshot().Inventory)
	}

	out, _ := r.AttemptPuzzle(puzzle.TypeChairKey, "")
	if out.Disposition != puzzle.Solved {
		t.Fatalf("chair_key should solve, got %v", out.Disposition)
	}
	mustStage(1)
	mustHave(puzzle.ItemDeskKey)

	// 乱序对齐三本书；前两本不推进阶段
	r.AttemptPuzzle(puzzle.TypeAlignBook, "book2")
	mustStage(1)
	r.AttemptPuzzle(puzzle.TypeAlignBook, "book3")
	mustStage(1)
	r.AttemptPuzzle(puzzle.TypeAlignBook, "book1")
	mustStage(2)
	mustHave(puzzle.ItemUSBDrive)

	r.AttemptPuzzle(puzzle.TypeInsertUSB, "")
	mustStage(3)

	_, snap := r.AttemptPuzzle(puzzle.TypeToggleLamp, "")
	mustStage(4)
	if !snap.LampOff {
		t.Error("lamp flag should be set")
	}

	r.AttemptPuzzle(puzzle.TypePushBook, "")
	mustStage(5)

	r.AttemptPuzzle(puzzle.TypeSymbolLock, "moon_sun_star")
	mustStage(6)
	mustHave(puzzle.ItemACRemote)

	r.AttemptPuzzle(puzzle.TypeTurnOnAC, "")
	mustStage(7)

	out, _ = r.AttemptPuzzle(puzzle.TypeEscapeDoor, "0000")
	if out.Disposition != puzzle.Failed {
		t.Fatalf("wrong code should fail explicitly, got %v", out.Disposition)
	}
	mustStage(7)

	out, snap = r.AttemptPuzzle(puzzle.TypeEscapeDoor, puzzle.DoorCode)
	if !out.Escaped {
		t.Fatal("right code should escape")
	}
	mustStage(8)
	if snap.IsActive {
		t.Error("escape must freeze the room")
	}
	if snap.Score != snap.TimeLeft*10 {
		t.Errorf("expected score %d, got %d", snap.TimeLeft*10, snap.Score)
	}
	if sched.Pending() != 0 {
		t.Errorf("timer should be released on escape, %d tasks still pending", sched.Pending())
	}
}

func TestRoom_StageNeverDecreases(t *testing.T) {
	r, _ := newTestRoom(600)

	attempts := []struct{ puzzleType, payload string }{
		{puzzle.TypeEscapeDoor, puzzle.DoorCode},
		{puzzle.TypeChairKey, ""},
		{puzzle.TypeSymbolLock, "sun_moon_star"},
		{puzzle.TypeAlignBook, "book1"},
		{puzzle.TypeChairKey, ""},
		{puzzle.TypeAlignBook, "book3"},
		{puzzle.TypeInsertUSB, ""},
		{puzzle.TypeAlignBook, "book2"},
		{puzzle.TypeToggleLamp, ""},
	}

	prev := 0
	for _, a := range attempts {
		_, snap := r.AttemptPuzzle(a.puzzleType, a.payload)
		if snap.PuzzleStage < prev {
			t.Fatalf("stage decreased from %d to %d after %s", prev, snap.PuzzleStage, a.puzzleType)
		}
		prev = snap.PuzzleStage
	}
}

func TestRoom_OnEndFiresExactlyOnce(t *testing.T) {
	sched := timer.NewManualScheduler()
	manager := NewManager(5, 300, sched)

	var endCount int
	var lastSnap models.RoomSnapshot
	manager.SetOnEnd(func(snap models.RoomSnapshot) {
		endCount++
		lastSnap = snap
	})

	r := manager.GetOrCreate("end_test")
	r.AddPlayer("conn1", "alice")

	advanceSeconds(sched, 5) // 超时
	r.RemovePlayer("conn1")  // 空房规则再次尝试结束
	r.EndGame(true)          // 显式结束也一样

	if endCount != 1 {
		t.Errorf("end hook should fire exactly once, fired %d times", endCount)
	}
	if lastSnap.RoomID != "end_test" {
		t.Errorf("hook received wrong snapshot: %+v", lastSnap)
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	sched := timer.NewManualScheduler()
	manager := NewManager(600, 300, sched)

	r := manager.GetOrCreate("room_a")
	if r == nil {
		t.Fatal("GetOrCreate should never return nil")
	}
	if again := manager.GetOrCreate("room_a"); again != r {
		t.Error("GetOrCreate should return the same instance for the same id")
	}

	retrieved, exists := manager.Get("room_a")
	if !exists || retrieved != r {
		t.Error("Get should find the created room")
	}

	if count := manager.ActiveCount(); count != 1 {
		t.Errorf("expected 1 active room, got %d", count)
	}
}

func TestManager_Remove(t *testing.T) {
	sched := timer.NewManualScheduler()
	manager := NewManager(600, 300, sched)

	r := manager.GetOrCreate("room_b")
	manager.Remove("room_b")

	if _, exists := manager.Get("room_b"); exists {
		t.Error("removed room should not be retrievable")
	}
	if r.IsActive() {
		t.Error("removed room should be deactivated")
	}
	if sched.Pending() != 0 {
		t.Errorf("removed room's timer should be released, %d pending", sched.Pending())
	}
}
