// File: fake/selector.go
// Author: momentics <momentics@gmail.com>

package fake

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/spi"
)

// Selector is an in-memory selector. Poll parks until Wakeup; it never
// reports readiness.
type Selector struct {
	*spi.SelectorCore

	mu          sync.Mutex
	keys        map[*spi.SelectionKey]struct{}
	registerErr error
	closes      int
	closing     bool

	wake    chan struct{}
	wakeups atomic.Int64
}

var _ api.Selector = (*Selector)(nil)

// NewSelector creates an open selector.
func NewSelector() *Selector {
	s := &Selector{
		keys: make(map[*spi.SelectionKey]struct{}),
		wake: make(chan struct{}, 1),
	}
	s.SelectorCore = spi.NewSelectorCore(s)
	return s
}

// ImplRegister records k. Registrations racing the close hook fail with
// api.ErrClosedSelector.
func (s *Selector) ImplRegister(k *spi.SelectionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return api.ErrClosedSelector
	}
	if s.registerErr != nil {
		return s.registerErr
	}
	s.keys[k] = struct{}{}
	return nil
}

// ImplCloseSelector deregisters every key and releases Poll.
func (s *Selector) ImplCloseSelector() error {
	s.mu.Lock()
	s.closes++
	s.closing = true
	keys := make([]*spi.SelectionKey, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	s.keys = make(map[*spi.SelectionKey]struct{})
	s.mu.Unlock()

	for _, k := range keys {
		s.Deregister(k)
	}
	return s.Wakeup()
}

// Wakeup releases one pending or future Poll.
func (s *Selector) Wakeup() error {
	s.wakeups.Add(1)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Poll reaps cancelled keys, then parks until woken. It returns the
// context error when the wakeup came from ctx.
func (s *Selector) Poll(ctx context.Context) error {
	if !s.IsOpen() {
		return api.ErrClosedSelector
	}
	s.Reap()
	op, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	<-s.wake
	s.End(op)
	s.Reap()
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// Reap drains the cancelled set and returns the number of keys processed.
func (s *Selector) Reap() int {
	return s.DrainCancelled(func(k *spi.SelectionKey) {
		s.mu.Lock()
		delete(s.keys, k)
		s.mu.Unlock()
	})
}

// Registered returns the number of keys the selector holds.
func (s *Selector) Registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Closes returns how many times the close hook ran.
func (s *Selector) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Wakeups returns the number of Wakeup calls.
func (s *Selector) Wakeups() int64 { return s.wakeups.Load() }

// SetRegisterError makes new registrations fail with err.
func (s *Selector) SetRegisterError(err error) {
	s.mu.Lock()
	s.registerErr = err
	s.mu.Unlock()
}
