package workqueue

import "sync"

// ConcurrencyStrategy decides whether a pending task may start given the
// tasks already running. Implementations are called with the queue lock held.
type ConcurrencyStrategy interface {
	CanStart(exclusive bool) bool
	OnStart(exclusive bool)
	OnComplete(exclusive bool)
}

// SerializedStrategy runs at most one exclusive task and one shared task at a
// time. An exclusive and a shared task may overlap.
type SerializedStrategy struct {
	mu              sync.Mutex
	exclusiveActive bool
	sharedActive    bool
}

// NewSerializedStrategy creates the default strategy.
func NewSerializedStrategy() *SerializedStrategy {
	return &SerializedStrategy{}
}

func (s *SerializedStrategy) CanStart(exclusive bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exclusive {
		return !s.exclusiveActive
	}
	return !s.sharedActive
}

func (s *SerializedStrategy) OnStart(exclusive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exclusive {
		s.exclusiveActive = true
	} else {
		s.sharedActive = true
	}
}

func (s *SerializedStrategy) OnComplete(exclusive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exclusive {
		s.exclusiveActive = false
	} else {
		s.sharedActive = false
	}
}

// BoundedStrategy serializes exclusive tasks and runs up to maxShared shared
// tasks in parallel.
type BoundedStrategy struct {
	mu              sync.Mutex
	maxShared       int
	sharedRunning   int
	exclusiveActive bool
}

// NewBoundedStrategy creates a strategy allowing maxShared concurrent shared tasks.
func NewBoundedStrategy(maxShared int) *BoundedStrategy {
	if maxShared < 1 {
		maxShared = 1
	}
	return &BoundedStrategy{maxShared: maxShared}
}

func (s *BoundedStrategy) CanStart(exclusive bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exclusive {
		return !s.exclusiveActive
	}
	return s.sharedRunning < s.maxShared
}

func (s *BoundedStrategy) OnStart(exclusive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exclusive {
		s.exclusiveActive = true
	} else {
		s.sharedRunning++
	}
}

func (s *BoundedStrategy) OnComplete(exclusive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exclusive {
		s.exclusiveActive = false
	} else if s.sharedRunning > 0 {
		s.sharedRunning--
	}
}
