// Package schedule provides a small registry of deferred, cancellable
// work items. Components that chain retries through timers (queue
// re-enqueues, monitor reconnects) register them here so the whole chain
// can be inspected and cancelled as a unit.
package schedule

import (
	"sync"
	"time"
)

// Task is a handle to one scheduled work item.
type Task struct {
	id    uint64
	timer *time.Timer
	s     *Scheduler
}

// Cancel stops the task if it has not fired yet. Safe to call more than
// once and after firing.
func (t *Task) Cancel() {
	t.timer.Stop()
	t.s.forget(t.id)
}

// Scheduler owns a set of pending deferred tasks.
type Scheduler struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*Task
	stopped bool
}

func New() *Scheduler {
	return &Scheduler{pending: make(map[uint64]*Task)}
}

// After schedules fn to run once after d. The returned handle cancels
// the task. After Stop, scheduling is a no-op returning a dead handle.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	task := &Task{id: id, s: s}

	if s.stopped {
		// Dead handle: a stopped timer that never fires.
		task.timer = time.NewTimer(d)
		task.timer.Stop()
		return task
	}

	task.timer = time.AfterFunc(d, func() {
		s.forget(id)
		fn()
	})
	s.pending[id] = task
	return task
}

// Pending returns the number of scheduled tasks that have not fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending task and rejects new ones. Tasks already
// running are not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, task := range s.pending {
		task.timer.Stop()
		delete(s.pending, id)
	}
}

func (s *Scheduler) forget(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}
