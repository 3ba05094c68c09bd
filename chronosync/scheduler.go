package chronosync

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type task struct {
	timer clockwork.Timer
}

// scheduler runs delayed tasks. Scheduling a task under a key cancels the task
// scheduled earlier under the same key if it didn't fire yet, so that a burst of
// triggers results in a single run.
type scheduler struct {
	clock clockwork.Clock

	mu      sync.Mutex
	tasks   map[any]*task
	stopped bool
}

func newScheduler(clock clockwork.Clock) *scheduler {
	return &scheduler{
		clock: clock,
		tasks: make(map[any]*task),
	}
}

func (s *scheduler) schedule(key any, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
	}
	t := &task{}
	t.timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		// a timer may fire while being replaced or stopped
		if s.tasks[key] != t {
			s.mu.Unlock()
			return
		}
		delete(s.tasks, key)
		s.mu.Unlock()
		fn()
	})
	s.tasks[key] = t
}

// scheduled returns the number of tasks that didn't fire yet.
func (s *scheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// stop cancels all the scheduled tasks. Tasks scheduled after stop never run.
func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
}
