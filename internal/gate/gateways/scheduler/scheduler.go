// Package scheduler provides the deadline capability on wall-clock
// timers. Each tag owns at most one pending timer; re-registering a
// tag replaces the prior timer.
package scheduler

import (
	"sync"
	"time"

	"github.com/haltgate/haltgate/internal/gate/common/log"
)

// Scheduler fires a callback once per registered deadline. The
// callback runs on a timer goroutine; the receiver is responsible for
// its own synchronization.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   func(tag string)
	logger log.Logger
}

// New constructs a Scheduler delivering fired tags to fire.
func New(fire func(tag string), logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		fire:   fire,
		logger: logger,
	}
}

// RegisterDeadline schedules tag to fire at the given time. A past
// time fires immediately. An existing registration for the same tag is
// replaced.
func (s *Scheduler) RegisterDeadline(tag string, at time.Time) {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[tag]; ok {
		t.Stop()
	}
	s.timers[tag] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, tag)
		s.mu.Unlock()
		s.logger.Debug(map[string]any{"tag": tag}, "Deadline fired")
		s.fire(tag)
	})
}

// CancelDeadline stops and forgets the timer for tag, if any.
func (s *Scheduler) CancelDeadline(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[tag]; ok {
		t.Stop()
		delete(s.timers, tag)
	}
}

// Stop cancels every pending deadline. Used during shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tag, t := range s.timers {
		t.Stop()
		delete(s.timers, tag)
	}
}
