// File: spi/key.go
// Author: momentics <momentics@gmail.com>
//
// Selection key binding one channel to one selector.

package spi

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-nio/api"
)

// SelectionKey implements api.SelectionKey. Keys are minted only by
// SelectorCore during registration.
type SelectionKey struct {
	ch   api.SelectableChannel
	sel  api.Selector
	core *SelectorCore

	mu         sync.Mutex
	interest   api.Ops
	attachment any

	ready atomic.Uint32
	valid atomic.Bool
}

var _ api.SelectionKey = (*SelectionKey)(nil)

func newSelectionKey(ch api.SelectableChannel, core *SelectorCore, ops api.Ops, att any) *SelectionKey {
	k := &SelectionKey{
		ch:         ch,
		sel:        core.owner,
		core:       core,
		interest:   ops,
		attachment: att,
	}
	k.valid.Store(true)
	return k
}

// Channel returns the registered channel.
func (k *SelectionKey) Channel() api.SelectableChannel { return k.ch }

// Selector returns the owning selector.
func (k *SelectionKey) Selector() api.Selector { return k.sel }

// IsValid reports whether the key is valid.
func (k *SelectionKey) IsValid() bool { return k.valid.Load() }

// Cancel invalidates the key and adds it to its selector's cancelled set.
// Safe from any goroutine; calls after the first are no-ops.
func (k *SelectionKey) Cancel() {
	if k.valid.CompareAndSwap(true, false) {
		k.core.cancel(k)
	}
}

func (k *SelectionKey) invalidate() {
	k.valid.Store(false)
}

// InterestOps returns the interest set.
func (k *SelectionKey) InterestOps() (api.Ops, error) {
	if !k.IsValid() {
		return 0, api.ErrCancelledKey
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.interest, nil
}

// SetInterestOps replaces the interest set.
func (k *SelectionKey) SetInterestOps(ops api.Ops) error {
	return k.update(ops, nil, false)
}

// update replaces the interest set and, if setAtt, the attachment, as one step.
func (k *SelectionKey) update(ops api.Ops, att any, setAtt bool) error {
	if valid := k.ch.ValidOps(); !ops.Subset(valid) {
		return api.NewError(api.ErrCodeInvalidArgument, "interest set not supported by channel").
			WithContext("ops", ops).
			WithContext("valid", valid)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.IsValid() {
		return api.ErrCancelledKey
	}
	k.interest = ops
	if setAtt {
		k.attachment = att
	}
	return nil
}

// Interest returns the interest set without the validity check. For
// selector implementations building a poll set.
func (k *SelectionKey) Interest() api.Ops {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.interest
}

// ReadyOps returns the ready set from the last selection.
func (k *SelectionKey) ReadyOps() (api.Ops, error) {
	if !k.IsValid() {
		return 0, api.ErrCancelledKey
	}
	return api.Ops(k.ready.Load()), nil
}

// SetReadyOps replaces the ready set. For selector implementations.
func (k *SelectionKey) SetReadyOps(ops api.Ops) {
	k.ready.Store(uint32(ops))
}

// AddReadyOps merges ops into the ready set and returns the result.
// For selector implementations.
func (k *SelectionKey) AddReadyOps(ops api.Ops) api.Ops {
	for {
		old := k.ready.Load()
		next := old | uint32(ops)
		if k.ready.CompareAndSwap(old, next) {
			return api.Ops(next)
		}
	}
}

// Attachment returns the attached object.
func (k *SelectionKey) Attachment() any {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.attachment
}

// Attach replaces the attachment and returns the previous one.
func (k *SelectionKey) Attach(v any) any {
	k.mu.Lock()
	defer k.mu.Unlock()
	prev := k.attachment
	k.attachment = v
	return prev
}

func (k *SelectionKey) isReady(op api.Ops) bool {
	ready, err := k.ReadyOps()
	return err == nil && ready&op != 0
}

// IsReadable reports whether OpRead is in the ready set.
func (k *SelectionKey) IsReadable() bool { return k.isReady(api.OpRead) }

// IsWritable reports whether OpWrite is in the ready set.
func (k *SelectionKey) IsWritable() bool { return k.isReady(api.OpWrite) }

// IsConnectable reports whether OpConnect is in the ready set.
func (k *SelectionKey) IsConnectable() bool { return k.isReady(api.OpConnect) }

// IsAcceptable reports whether OpAccept is in the ready set.
func (k *SelectionKey) IsAcceptable() bool { return k.isReady(api.OpAccept) }
