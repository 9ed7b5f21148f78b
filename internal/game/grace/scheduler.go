// Package grace schedules keyed, cancellable forfeiture timers.
package grace

import (
	"sync"
	"time"
)

type pending struct {
	token uint64
	timer *time.Timer
}

// Scheduler owns at most one outstanding timer per key.
// It is safe for concurrent use.
type Scheduler struct {
	mu      sync.Mutex
	next    uint64
	pending map[string]pending
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{pending: make(map[string]pending)}
}

// Schedule arms a timer for key that calls onFire with the returned token
// after d, replacing any timer already outstanding for key.
// onFire is called in a separate goroutine and must call Claim before acting.
//
// Precondition: d > 0; onFire must not be nil.
// Postcondition: Pending(key) is true and no earlier timer for key will fire.
func (s *Scheduler) Schedule(key string, d time.Duration, onFire func(token uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
	}
	s.next++
	token := s.next
	s.pending[key] = pending{
		token: token,
		timer: time.AfterFunc(d, func() {
			if s.current(key, token) {
				onFire(token)
			}
		}),
	}
	return token
}

func (s *Scheduler) current(key string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	return ok && p.token == token
}

// Claim removes the timer for key when token still identifies it.
//
// Postcondition: Returns true exactly once per scheduled token that was
// neither cancelled nor replaced.
func (s *Scheduler) Claim(key string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[key]
	if !ok || p.token != token {
		return false
	}
	delete(s.pending, key)
	return true
}

// Cancel stops and forgets the timer for key.
//
// Postcondition: Returns true when a timer was outstanding.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, key)
	return true
}

// Pending reports whether a timer is outstanding for key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Len returns the number of outstanding timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// StopAll cancels every outstanding timer.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, key)
	}
}
