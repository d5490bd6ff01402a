package timer

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance instead of the wall clock.
// Callbacks run synchronously on the caller of Advance.
type Manual struct {
	mutex  sync.Mutex
	base   time.Time
	now    time.Duration
	nextID int64
	tasks  map[int64]*manualTask
}

type manualTask struct {
	id       int64
	at       time.Duration
	interval time.Duration
	callback func()
}

func NewManual() *Manual {
	return &Manual{
		base:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		nextID: 1,
		tasks:  make(map[int64]*manualTask),
	}
}

// Now is the manual clock's current time.
func (m *Manual) Now() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.base.Add(m.now)
}

func (m *Manual) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	id := m.nextID
	m.nextID++
	m.tasks[id] = &manualTask{id: id, at: m.now + delay, interval: interval, callback: callback}
	return id
}

func (m *Manual) RemoveTimer(timerID int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.tasks, timerID)
}

// Pending 未触发的定时器数量
func (m *Manual) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d, firing every timer that becomes due
// in deadline order. Timers added by callbacks fire too if they fall inside
// the window.
func (m *Manual) Advance(d time.Duration) {
	m.mutex.Lock()
	target := m.now + d
	m.mutex.Unlock()

	for {
		m.mutex.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mutex.Unlock()
			return
		}
		m.now = next.at
		if next.interval > 0 {
			next.at += next.interval
		} else {
			delete(m.tasks, next.id)
		}
		cb := next.callback
		m.mutex.Unlock()
		cb()
	}
}

func (m *Manual) nextDue(target time.Duration) *manualTask {
	var due []*manualTask
	for _, t := range m.tasks {
		if t.at <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at == due[j].at {
			return due[i].id < due[j].id
		}
		return due[i].at < due[j].at
	})
	return due[0]
}
