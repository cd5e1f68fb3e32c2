package testsupport

import (
	"context"
	"sync"
	"sync/atomic"
)

// RealStub stands in for the real implementation of a cached member and
// counts how many times it ran.
type RealStub struct {
	calls atomic.Int64

	mu    sync.Mutex
	value any
	err   error
	gate  chan struct{}
}

// NewRealStub returns a stub answering value.
func NewRealStub(value any) *RealStub {
	return &RealStub{value: value}
}

// Fn has the shape of methodcache.RealFn.
func (s *RealStub) Fn(ctx context.Context) (any, error) {
	s.calls.Add(1)

	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.err
}

// Calls returns how many times Fn ran.
func (s *RealStub) Calls() int {
	return int(s.calls.Load())
}

// SetValue changes the value answered by later calls.
func (s *RealStub) SetValue(value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
}

// SetError makes later calls fail with err; nil restores success.
func (s *RealStub) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Block makes later calls wait until the returned release func is called.
func (s *RealStub) Block() (release func()) {
	gate := make(chan struct{})

	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}
