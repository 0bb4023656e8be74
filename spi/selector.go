// File: spi/selector.go
// Author: momentics <momentics@gmail.com>
//
// Selector core: registration entry point, deferred cancellation and the
// interrupt gate around a selector's poll call.

package spi

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/control"
	"github.com/momentics/hioload-nio/internal/interrupt"
)

// SelectorImpl is what a concrete selector supplies. Concrete selectors embed
// *SelectorCore and pass themselves to NewSelectorCore.
type SelectorImpl interface {
	api.Selector

	// ImplRegister inserts selector-side bookkeeping for a freshly minted
	// key. It is called with the channel's registration and key-table locks
	// held, so it must not call back into the channel.
	ImplRegister(k *SelectionKey) error

	// ImplCloseSelector releases the selector. Runs once.
	ImplCloseSelector() error
}

// registrar is satisfied by any type embedding *SelectorCore.
type registrar interface {
	selectorCore() *SelectorCore
}

// SelectorCore is the platform-independent part of a selector.
type SelectorCore struct {
	owner     api.Selector
	impl      SelectorImpl
	closed    atomic.Bool
	cancelled *cancelledSet

	interruptorOnce sync.Once
	interruptor     func(*interrupt.Op)
}

// NewSelectorCore returns an open core driving impl.
func NewSelectorCore(impl SelectorImpl) *SelectorCore {
	return &SelectorCore{
		owner:     impl,
		impl:      impl,
		cancelled: newCancelledSet(),
	}
}

func (s *SelectorCore) selectorCore() *SelectorCore { return s }

// IsOpen reports whether the selector is open.
func (s *SelectorCore) IsOpen() bool {
	return !s.closed.Load()
}

// Close closes the selector; the implementation hook runs once.
func (s *SelectorCore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.impl.ImplCloseSelector()
}

// register mints a key for ch. Called by SelectableChannel.Register with the
// channel's registration and key-table locks held.
func (s *SelectorCore) register(ch api.SelectableChannel, ops api.Ops, att any) (*SelectionKey, error) {
	if !s.IsOpen() {
		return nil, api.ErrClosedSelector
	}
	k := newSelectionKey(ch, s, ops, att)
	if err := s.impl.ImplRegister(k); err != nil {
		k.invalidate()
		return nil, err
	}
	return k, nil
}

// cancel queues k for deregistration. Safe from any goroutine.
func (s *SelectorCore) cancel(k *SelectionKey) {
	s.cancelled.add(k)
}

// CancelledKeys returns a snapshot of the keys awaiting deregistration.
func (s *SelectorCore) CancelledKeys() []*SelectionKey {
	return s.cancelled.snapshot()
}

// PendingCancelled returns the number of keys awaiting deregistration.
func (s *SelectorCore) PendingCancelled() int {
	return s.cancelled.len()
}

// DrainCancelled empties the cancelled set. For each key, oldest first, it
// calls fn (selector-side cleanup, may be nil) and then Deregister. Must be
// called only from the selector's own poll cycle. Returns the key count.
func (s *SelectorCore) DrainCancelled(fn func(*SelectionKey)) int {
	keys := s.cancelled.drain()
	for _, k := range keys {
		if fn != nil {
			fn(k)
		}
		s.Deregister(k)
	}
	return len(keys)
}

// Deregister removes k from its channel's registration table and
// invalidates it. Runs on the selector's side only.
func (s *SelectorCore) Deregister(k *SelectionKey) {
	if r, ok := k.ch.(keyRemover); ok {
		r.removeKey(k)
		return
	}
	k.invalidate()
}

// Begin marks the start of a poll call that may block indefinitely. If ctx
// is done before End, the selector is woken up; it is not closed.
func (s *SelectorCore) Begin(ctx context.Context) (*interrupt.Op, error) {
	s.interruptorOnce.Do(func() {
		s.interruptor = func(*interrupt.Op) {
			if err := s.impl.Wakeup(); err != nil {
				control.Component("selector").WithError(err).Debug("wakeup after interrupt failed")
			}
		}
	})
	return interrupt.Begin(ctx, s.interruptor)
}

// End marks the end of the poll call started by Begin.
func (s *SelectorCore) End(op *interrupt.Op) {
	if op != nil {
		op.End()
	}
}
