// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Scheduler 定时任务抽象。房间的秒级倒计时通过它注册，
// 测试里用 ManualScheduler 以逻辑时间驱动，不碰墙钟。
type Scheduler interface {
	// Schedule 在 delay 后首次执行 callback；interval > 0 时周期重复。
	// 返回的任务ID用于取消。
	Schedule(delay, interval time.Duration, callback func()) int64
	// Cancel 移除任务。对已取消或已完成的ID是无害的空操作，
	// 且允许在任务自己的回调内调用。
	Cancel(id int64)
}

type task struct {
	id        int64
	execute   time.Time
	interval  time.Duration
	callback  func()
	cancelled bool
	index     int
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].execute.Before(q[j].execute)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	n := len(*q)
	t := x.(*task)
	t.index = n
	*q = append(*q, t)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	t.index = -1
	*q = old[0 : n-1]
	return t
}

// TimerManager 基于最小堆的墙钟调度器，生产环境使用。
type TimerManager struct {
	queue    taskQueue
	tasks    map[int64]*task
	mutex    sync.Mutex
	nextID   int64
	quit     chan struct{}
	stopOnce sync.Once
}

func NewTimerManager() *TimerManager {
	manager := &TimerManager{
		queue:  make(taskQueue, 0),
		tasks:  make(map[int64]*task),
		nextID: 1,
		quit:   make(chan struct{}),
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

func (m *TimerManager) Schedule(delay, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t := &task{
		id:       m.nextID,
		execute:  time.Now().Add(delay),
		interval: interval,
		callback: callback,
	}
	m.nextID++

	m.tasks[t.id] = t
	heap.Push(&m.queue, t)
	return t.id
}

func (m *TimerManager) Cancel(id int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, exists := m.tasks[id]
	if !exists {
		return
	}
	t.cancelled = true
	delete(m.tasks, id)
	if t.index >= 0 {
		heap.Remove(&m.queue, t.index)
	}
}

// Stop 终止调度循环。已入队但未到期的任务不再执行。
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
	})
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runDue(time.Now())
		case <-m.quit:
			return
		}
	}
}

// runDue 弹出所有到期任务并在锁外执行回调，
// 回调因此可以安全地调用 Cancel（包括取消自己）。
func (m *TimerManager) runDue(now time.Time) {
	m.mutex.Lock()
	var due []*task
	for m.queue.Len() > 0 {
		t := m.queue[0]
		if t.execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		due = append(due, t)
	}
	m.mutex.Unlock()

	for _, t := range due {
		t.callback()

		m.mutex.Lock()
		if t.interval > 0 && !t.cancelled {
			t.execute = now.Add(t.interval)
			heap.Push(&m.queue, t)
		} else if !t.cancelled {
			delete(m.tasks, t.id)
		}
		m.mutex.Unlock()
	}
}

// ManualScheduler 逻辑时钟调度器，仅测试使用：Advance 推进时间并同步执行到期回调。
type ManualScheduler struct {
	queue  taskQueue
	tasks  map[int64]*task
	mutex  sync.Mutex
	nextID int64
	now    time.Time
}

func NewManualScheduler() *ManualScheduler {
	m := &ManualScheduler{
		queue:  make(taskQueue, 0),
		tasks:  make(map[int64]*task),
		nextID: 1,
		now:    time.Unix(0, 0),
	}
	heap.Init(&m.queue)
	return m
}

func (m *ManualScheduler) Schedule(delay, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t := &task{
		id:       m.nextID,
		execute:  m.now.Add(delay),
		interval: interval,
		callback: callback,
	}
	m.nextID++

	m.tasks[t.id] = t
	heap.Push(&m.queue, t)
	return t.id
}

func (m *ManualScheduler) Cancel(id int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, exists := m.tasks[id]
	if !exists {
		return
	}
	t.cancelled = true
	delete(m.tasks, id)
	if t.index >= 0 {
		heap.Remove(&m.queue, t.index)
	}
}

// Advance 将逻辑时间前移 d，按到期顺序执行沿途所有回调。
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mutex.Lock()
	deadline := m.now.Add(d)

	for m.queue.Len() > 0 {
		t := m.queue[0]
		if t.execute.After(deadline) {
			break
		}
		heap.Pop(&m.queue)
		m.now = t.execute

		m.mutex.Unlock()
		t.callback()
		m.mutex.Lock()

		if t.interval > 0 && !t.cancelled {
			t.execute = t.execute.Add(t.interval)
			heap.Push(&m.queue, t)
		} else if !t.cancelled {
			delete(m.tasks, t.id)
		}
	}

	m.now = deadline
	m.mutex.Unlock()
}

// Pending 返回仍在排队的任务数，测试断言定时器已释放时使用。
func (m *ManualScheduler) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}
