// File: spi/selectable.go
// Author: momentics <momentics@gmail.com>
//
// Blocking-mode arbitration and selector registration for channels.

package spi

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-nio/api"
)

// SelectableChannelImpl is what a concrete channel supplies. Concrete
// channels embed *SelectableChannel and pass themselves to
// NewSelectableChannel.
type SelectableChannelImpl interface {
	api.SelectableChannel

	// ImplCloseSelectableChannel releases the channel's resources and must
	// unblock any goroutine parked in one of its native operations.
	ImplCloseSelectableChannel() error

	// ImplConfigureBlocking applies a blocking-mode change to the
	// underlying handle.
	ImplConfigureBlocking(block bool) error
}

// keyRemover is satisfied by any type embedding *SelectableChannel.
type keyRemover interface {
	removeKey(k *SelectionKey)
}

// SelectableChannel is the platform-independent part of a selectable channel.
// It is created open and in blocking mode.
type SelectableChannel struct {
	InterruptibleChannel

	impl SelectableChannelImpl

	// regLock serializes ConfigureBlocking and Register.
	regLock sync.Mutex
	// keyLock guards keys; taken inside regLock, never the other way round.
	keyLock sync.Mutex
	keys    keyTable

	blocking atomic.Bool
}

// NewSelectableChannel returns an open, blocking channel core for impl.
func NewSelectableChannel(impl SelectableChannelImpl) *SelectableChannel {
	c := &SelectableChannel{impl: impl}
	c.teardown = c.implCloseChannel
	c.blocking.Store(true)
	return c
}

// IsBlocking reports the blocking mode. It never blocks.
func (c *SelectableChannel) IsBlocking() bool {
	return c.blocking.Load()
}

// BlockingLock returns the lock held while the mode or registrations change.
func (c *SelectableChannel) BlockingLock() sync.Locker {
	return &c.regLock
}

// IsRegistered reports whether the channel has any entry in its table,
// including cancelled keys not yet deregistered by their selector.
func (c *SelectableChannel) IsRegistered() bool {
	c.keyLock.Lock()
	defer c.keyLock.Unlock()
	return c.keys.len() != 0
}

// KeyFor returns the key registered with sel, or nil.
func (c *SelectableChannel) KeyFor(sel api.Selector) api.SelectionKey {
	r, ok := sel.(registrar)
	if !ok {
		return nil
	}
	c.keyLock.Lock()
	defer c.keyLock.Unlock()
	if k := c.keys.find(r.selectorCore()); k != nil {
		return k
	}
	return nil
}

// ConfigureBlocking switches the blocking mode. Switching to blocking fails
// with api.ErrIllegalBlockingMode while any key is valid.
func (c *SelectableChannel) ConfigureBlocking(block bool) error {
	c.regLock.Lock()
	defer c.regLock.Unlock()
	if !c.IsOpen() {
		return api.ErrClosedChannel
	}
	if c.blocking.Load() == block {
		return nil
	}
	if block && c.haveValidKeys() {
		return api.ErrIllegalBlockingMode
	}
	if err := c.impl.ImplConfigureBlocking(block); err != nil {
		return err
	}
	c.blocking.Store(block)
	return nil
}

func (c *SelectableChannel) haveValidKeys() bool {
	c.keyLock.Lock()
	defer c.keyLock.Unlock()
	return c.keys.haveValid()
}

// Register registers the channel with sel. If a key for sel already exists
// its interest set and attachment are replaced and the same key returned.
//
// Fails with api.ErrIllegalBlockingMode in blocking mode, api.ErrClosedChannel
// once closed, api.ErrIllegalSelector if sel is not built on SelectorCore,
// and api.ErrCancelledKey if the existing key is cancelled but not yet
// deregistered.
func (c *SelectableChannel) Register(sel api.Selector, ops api.Ops, att any) (api.SelectionKey, error) {
	if valid := c.impl.ValidOps(); !ops.Subset(valid) {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "interest set not supported by channel").
			WithContext("ops", ops).
			WithContext("valid", valid)
	}
	if !c.IsOpen() {
		return nil, api.ErrClosedChannel
	}
	r, ok := sel.(registrar)
	if !ok {
		return nil, api.ErrIllegalSelector
	}
	core := r.selectorCore()

	c.regLock.Lock()
	defer c.regLock.Unlock()
	if c.blocking.Load() {
		return nil, api.ErrIllegalBlockingMode
	}

	c.keyLock.Lock()
	defer c.keyLock.Unlock()
	// Close may have won the race since the first check; its key snapshot
	// waits on keyLock, so a key added past this point is still cancelled.
	if !c.IsOpen() {
		return nil, api.ErrClosedChannel
	}
	if k := c.keys.find(core); k != nil {
		if err := k.update(ops, att, true); err != nil {
			return nil, err
		}
		return k, nil
	}
	k, err := core.register(c.impl, ops, att)
	if err != nil {
		return nil, err
	}
	c.keys.add(k)
	return k, nil
}

// removeKey drops k from the table and invalidates it. Called by the
// owning selector during deregistration.
func (c *SelectableChannel) removeKey(k *SelectionKey) {
	c.keyLock.Lock()
	defer c.keyLock.Unlock()
	c.keys.remove(k)
	k.invalidate()
}

// implCloseChannel is the teardown hook: channel-specific close first, then
// cancel every key from a copy taken under keyLock. Keys are cancelled even
// if the channel-specific close fails.
func (c *SelectableChannel) implCloseChannel() error {
	err := c.impl.ImplCloseSelectableChannel()

	c.keyLock.Lock()
	keys := c.keys.snapshot()
	c.keyLock.Unlock()

	for _, k := range keys {
		k.Cancel()
	}
	return err
}
