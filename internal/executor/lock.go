package executor

import (
	"context"
	"sync"
)

// agentLock serialises runs for one agent. Waiting honours ctx.
type agentLock struct {
	agentID string
	ch      chan struct{}
}

func newAgentLock(agentID string) *agentLock {
	return &agentLock{agentID: agentID, ch: make(chan struct{}, 1)}
}

func (l *agentLock) Lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *agentLock) TryLock() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l *agentLock) Unlock() {
	<-l.ch
}

type lockSet struct {
	mu    sync.Mutex
	locks map[string]*agentLock
}

func (s *lockSet) get(agentID string) *agentLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locks == nil {
		s.locks = make(map[string]*agentLock)
	}
	l, ok := s.locks[agentID]
	if !ok {
		l = newAgentLock(agentID)
		s.locks[agentID] = l
	}
	return l
}
