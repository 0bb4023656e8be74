// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for channels and selectors.

package fake

import (
	"context"
	"sync"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/spi"
)

// Channel is an in-memory selectable channel. Its only "native" operation
// is Block, which parks until released or until teardown runs.
type Channel struct {
	*spi.SelectableChannel

	valid api.Ops

	mu          sync.Mutex
	teardowns   int
	modes       []bool
	teardownErr error
	modeErr     error

	closing chan struct{}
	parked  chan struct{}
}

var _ api.SelectableChannel = (*Channel)(nil)

// NewChannel creates an open, blocking channel supporting valid.
func NewChannel(valid api.Ops) *Channel {
	c := &Channel{
		valid:   valid,
		closing: make(chan struct{}),
		parked:  make(chan struct{}, 1),
	}
	c.SelectableChannel = spi.NewSelectableChannel(c)
	return c
}

// ValidOps implements api.SelectableChannel.
func (c *Channel) ValidOps() api.Ops { return c.valid }

// ImplCloseSelectableChannel counts the teardown and releases Block callers.
func (c *Channel) ImplCloseSelectableChannel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardowns++
	if c.teardowns == 1 {
		close(c.closing)
	}
	return c.teardownErr
}

// ImplConfigureBlocking records the requested mode.
func (c *Channel) ImplConfigureBlocking(block bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.modeErr != nil {
		return c.modeErr
	}
	c.modes = append(c.modes, block)
	return nil
}

// SetTeardownError makes teardown fail with err.
func (c *Channel) SetTeardownError(err error) {
	c.mu.Lock()
	c.teardownErr = err
	c.mu.Unlock()
}

// SetModeError makes mode changes fail with err.
func (c *Channel) SetModeError(err error) {
	c.mu.Lock()
	c.modeErr = err
	c.mu.Unlock()
}

// Teardowns returns how many times teardown ran.
func (c *Channel) Teardowns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardowns
}

// ModeChanges returns the modes applied, in order.
func (c *Channel) ModeChanges() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.modes...)
}

// Parked is signalled each time a Block call is inside its bracket.
func (c *Channel) Parked() <-chan struct{} { return c.parked }

// Block simulates a native blocking operation. It completes when release is
// closed and is aborted when the channel is torn down.
func (c *Channel) Block(ctx context.Context, release <-chan struct{}) error {
	if !c.IsOpen() {
		return api.ErrClosedChannel
	}
	op, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	select {
	case c.parked <- struct{}{}:
	default:
	}

	completed := false
	select {
	case <-c.closing:
	case <-release:
		completed = true
	}
	return c.End(op, completed)
}
