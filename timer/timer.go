// timer/timer.go
package timer

import (
	"container/heap"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wfunc/doodleserver/logger"
)

// Scheduler 房间使用的定时器接口，测试里用假实现手动触发
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerID int64)
}

type task struct {
	id       int64
	execute  time.Time
	interval time.Duration
	callback func()
	index    int
}

type queue []*task

func (q queue) Len() int           { return len(q) }
func (q queue) Less(i, j int) bool { return q[i].execute.Before(q[j].execute) }

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// TimerManager 单个 goroutine 驱动的最小堆定时器，所有房间共享。
// 回调在独立 goroutine 中执行，不能阻塞调度循环。
type TimerManager struct {
	mutex      sync.Mutex
	queue      queue
	byID       map[int64]*task
	nextID     int64
	resolution time.Duration
	done       chan struct{}
	stopOnce   sync.Once
}

func NewTimerManager(resolution time.Duration) *TimerManager {
	if resolution <= 0 {
		resolution = 50 * time.Millisecond
	}
	m := &TimerManager{
		byID:       make(map[int64]*task),
		nextID:     1,
		resolution: resolution,
		done:       make(chan struct{}),
	}
	heap.Init(&m.queue)
	go m.process()
	return m
}

// AddTimer fires callback after delay, then every interval if interval > 0.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t := &task{
		id:       m.nextID,
		execute:  time.Now().Add(delay),
		interval: interval,
		callback: callback,
	}
	m.nextID++
	heap.Push(&m.queue, t)
	m.byID[t.id] = t
	return t.id
}

// RemoveTimer is a no-op for unknown or already fired one-shot timers.
func (m *TimerManager) RemoveTimer(timerID int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if t, ok := m.byID[timerID]; ok {
		if t.index >= 0 {
			heap.Remove(&m.queue, t.index)
		}
		delete(m.byID, timerID)
	}
}

// Len 待触发的定时器数量
func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			for _, t := range m.due(now) {
				go run(t.callback)
			}
		}
	}
}

func (m *TimerManager) due(now time.Time) []*task {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var fired []*task
	for m.queue.Len() > 0 {
		t := m.queue[0]
		if t.execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		fired = append(fired, t)

		if t.interval > 0 {
			t.execute = now.Add(t.interval)
			heap.Push(&m.queue, t)
		} else {
			delete(m.byID, t.id)
		}
	}
	return fired
}

func run(callback func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, debug.Stack())
		}
	}()
	callback()
}
