// File: api/channel.go
// Author: momentics <momentics@gmail.com>
//
// Channel, selection key and selector contracts.

package api

import "sync"

// Channel is an I/O endpoint that is open until closed, exactly once.
type Channel interface {
	// IsOpen reports whether the channel is open. It never blocks.
	IsOpen() bool

	// Close closes the channel. Calls after the first are no-ops.
	Close() error
}

// SelectableChannel is a channel that can be multiplexed by a Selector.
// A channel is either in blocking mode or has live registrations, never both.
type SelectableChannel interface {
	Channel

	// ValidOps returns the operations this channel supports.
	ValidOps() Ops

	IsBlocking() bool

	// ConfigureBlocking switches the blocking mode. Switching to blocking
	// fails with ErrIllegalBlockingMode while any key is valid.
	ConfigureBlocking(block bool) error

	// BlockingLock returns the lock that serializes mode changes and registration.
	BlockingLock() sync.Locker

	IsRegistered() bool

	// KeyFor returns the key registered with sel, or nil.
	KeyFor(sel Selector) SelectionKey

	// Register registers the channel with sel, or updates the existing key's
	// interest set and attachment.
	Register(sel Selector, ops Ops, attachment any) (SelectionKey, error)
}

// SelectionKey is the token for one (channel, selector) registration.
type SelectionKey interface {
	Channel() SelectableChannel
	Selector() Selector

	InterestOps() (Ops, error)
	SetInterestOps(ops Ops) error
	ReadyOps() (Ops, error)

	Attachment() any
	// Attach replaces the attachment and returns the previous one.
	Attach(v any) any

	// IsValid reports whether the key is still valid. Once false, stays false.
	IsValid() bool

	// Cancel invalidates the key and queues it for removal by its selector.
	Cancel()
}

// Selector multiplexes readiness of registered channels.
type Selector interface {
	IsOpen() bool
	Close() error

	// Wakeup makes a blocked or the next selection operation return at once.
	Wakeup() error
}
