// File: spi/interruptible.go
// Author: momentics <momentics@gmail.com>
//
// Exactly-once close and the interrupt gate for blocking channel operations.

package spi

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/control"
	"github.com/momentics/hioload-nio/internal/interrupt"
)

// InterruptibleChannel is the closable core shared by every channel.
//
// The teardown hook runs exactly once, under the close lock, on the first
// successful Close or interrupt-driven close. Teardown must force any
// goroutine parked in the channel's native operation to return without
// taking the close lock.
type InterruptibleChannel struct {
	closeLock sync.Mutex
	closed    atomic.Bool
	teardown  func() error

	interruptorOnce sync.Once
	interruptor     func(*interrupt.Op)

	// interrupted is the op whose interruption closed the channel; guarded
	// by closeLock for writes.
	interrupted atomic.Pointer[interrupt.Op]
}

// NewInterruptibleChannel returns an open channel whose teardown is fn.
func NewInterruptibleChannel(fn func() error) *InterruptibleChannel {
	if fn == nil {
		fn = func() error { return nil }
	}
	return &InterruptibleChannel{teardown: fn}
}

// IsOpen reports whether the channel is open. It never blocks.
func (c *InterruptibleChannel) IsOpen() bool {
	return !c.closed.Load()
}

// Close closes the channel. The flag is flipped before teardown runs, so a
// failed teardown still leaves the channel closed and later calls no-op.
func (c *InterruptibleChannel) Close() error {
	c.closeLock.Lock()
	defer c.closeLock.Unlock()
	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)
	return c.runTeardown()
}

func (c *InterruptibleChannel) runTeardown() error {
	if c.teardown == nil {
		return nil
	}
	return c.teardown()
}

// Begin marks the start of a blocking operation that may block indefinitely.
// It must be paired with End. If ctx is done before End, the channel is
// closed and the pending End fails with api.ErrClosedByInterrupt.
//
// A goroutine may have only one operation in progress; a nested Begin fails
// with api.ErrNestedBlockingOp.
func (c *InterruptibleChannel) Begin(ctx context.Context) (*interrupt.Op, error) {
	c.interruptorOnce.Do(func() {
		c.interruptor = c.interruptClose
	})
	return interrupt.Begin(ctx, c.interruptor)
}

// interruptClose closes on behalf of an interrupted op. Teardown errors have
// no caller to go to and are dropped.
func (c *InterruptibleChannel) interruptClose(op *interrupt.Op) {
	c.closeLock.Lock()
	defer c.closeLock.Unlock()
	if c.closed.Load() {
		return
	}
	c.closed.Store(true)
	c.interrupted.Store(op)
	if err := c.runTeardown(); err != nil {
		control.Component("channel").WithError(err).Debug("teardown failed after interrupt")
	}
}

// End marks the end of the operation started by Begin. completed states
// whether the operation had a visible effect, such as bytes transferred.
//
// End fails with api.ErrClosedByInterrupt if op's interruption closed the
// channel, or with api.ErrAsynchronousClose if the operation did not
// complete and the channel was closed by any other means.
func (c *InterruptibleChannel) End(op *interrupt.Op, completed bool) error {
	if op == nil {
		return nil
	}
	op.End()
	if c.interrupted.CompareAndSwap(op, nil) {
		if cause := op.Cause(); cause != nil {
			return fmt.Errorf("%w: %w", api.ErrClosedByInterrupt, cause)
		}
		return api.ErrClosedByInterrupt
	}
	if !completed && !c.IsOpen() {
		return api.ErrAsynchronousClose
	}
	return nil
}
