package trainer

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs the opponent reply after the thinking delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// ClockScheduler uses time.AfterFunc. When Lock is set every callback runs
// while holding it, which is how the session service serialises replies
// with user commands.
type ClockScheduler struct {
	Lock sync.Locker
}

func (s ClockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	if s.Lock == nil {
		return time.AfterFunc(d, f)
	}
	lock := s.Lock
	return time.AfterFunc(d, func() {
		lock.Lock()
		defer lock.Unlock()
		f()
	})
}

// ManualScheduler queues callbacks until Fire is called. The caller is
// responsible for synchronisation.
type ManualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTask) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &manualTask{delay: d, f: f}
	s.tasks = append(s.tasks, task)
	return task
}

// Pending counts callbacks that were neither stopped nor fired.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// LastDelay returns the delay of the most recently scheduled callback.
func (s *ManualScheduler) LastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return 0
	}
	return s.tasks[len(s.tasks)-1].delay
}

// Fire runs every live callback in scheduling order and returns how many ran.
func (s *ManualScheduler) Fire() int {
	s.mu.Lock()
	var due []*manualTask
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.tasks = nil
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

// FireStale runs every scheduled callback, including stopped ones, to model
// a timer that had already started when it was cancelled.
func (s *ManualScheduler) FireStale() int {
	s.mu.Lock()
	due := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, t := range due {
		t.fired = true
		t.f()
	}
	return len(due)
}
