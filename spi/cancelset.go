// File: spi/cancelset.go
// Author: momentics <momentics@gmail.com>
//
// Deferred cancellation set: filled by any goroutine, drained by the selector.

package spi

import (
	"sync"

	"github.com/eapache/queue"
)

// cancelledSet keeps cancelled keys in arrival order, each at most once.
type cancelledSet struct {
	mu      sync.Mutex
	members map[*SelectionKey]struct{}
	order   *queue.Queue
}

func newCancelledSet() *cancelledSet {
	return &cancelledSet{
		members: make(map[*SelectionKey]struct{}),
		order:   queue.New(),
	}
}

// add inserts k and reports whether it was not already present.
func (s *cancelledSet) add(k *SelectionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.members[k]; dup {
		return false
	}
	s.members[k] = struct{}{}
	s.order.Add(k)
	return true
}

// drain removes and returns every key, oldest first.
func (s *cancelledSet) drain() []*SelectionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.order.Length()
	if n == 0 {
		return nil
	}
	out := make([]*SelectionKey, 0, n)
	for s.order.Length() > 0 {
		k := s.order.Remove().(*SelectionKey)
		delete(s.members, k)
		out = append(out, k)
	}
	return out
}

func (s *cancelledSet) snapshot() []*SelectionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.order.Length()
	out := make([]*SelectionKey, n)
	for i := 0; i < n; i++ {
		out[i] = s.order.Get(i).(*SelectionKey)
	}
	return out
}

func (s *cancelledSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Length()
}
