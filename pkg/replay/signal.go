package replay

import "sync"

// Signal is a level-triggered signal: once set it stays set until Reset.
// It never forcibly terminates a waiter; it only shortens voluntary waits
// on Done.
type Signal struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

func NewSignal() *Signal {
	return &Signal{
		ch: make(chan struct{}),
	}
}

// Set fires the signal. Waiters on Done unblock until Reset is called.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		s.set = true
		close(s.ch)
	}
}

// Reset clears the signal.
func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		s.set = false
		s.ch = make(chan struct{})
	}
}

// IsSet reports whether the signal is currently set.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Done returns a channel closed while the signal is set.
func (s *Signal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}
