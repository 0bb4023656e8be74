//go:build unix

// File: reactor/backend.go
// Author: momentics <momentics@gmail.com>
//
// Readiness backends behind PollSelector. Linux uses epoll; every other
// unix uses poll(2). Events are expressed as poll(2) bits on both sides.

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/spi"
)

// readyKey is one readiness report from a backend wait.
type readyKey struct {
	key     *spi.SelectionKey
	revents int16
}

// backend tracks the kernel-side interest of registered keys. Methods other
// than wait are called with the selector's mu held; wait is called without
// it and may run concurrently with register.
type backend interface {
	// register starts watching fd for k with the given poll events. A zero
	// mask records the key without arming it.
	register(k *spi.SelectionKey, fd int, events int16) error
	// update changes the watched events of k. Unchanged masks are no-ops.
	update(k *spi.SelectionKey, fd int, events int16) error
	// deregister stops watching fd on behalf of k.
	deregister(k *spi.SelectionKey, fd int) error
	// wait blocks for up to ms milliseconds, or forever if ms < 0.
	wait(ms int) (ready []readyKey, woken bool, err error)
	// armed reports how many descriptors are currently watched, excluding
	// the wake descriptor.
	armed() int
	close() error
	kind() string
}

func toPollEvents(ops api.Ops) int16 {
	var ev int16
	if ops&(api.OpRead|api.OpAccept) != 0 {
		ev |= unix.POLLIN
	}
	if ops&(api.OpWrite|api.OpConnect) != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

// fromPollEvents maps revents back onto the interest set. Error and hangup
// conditions make every interested operation ready so that the following
// I/O call observes the failure.
func fromPollEvents(revents int16, interest api.Ops) api.Ops {
	var ready api.Ops
	if revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		return interest
	}
	if revents&unix.POLLIN != 0 {
		ready |= interest & (api.OpRead | api.OpAccept)
	}
	if revents&unix.POLLOUT != 0 {
		ready |= interest & (api.OpWrite | api.OpConnect)
	}
	return ready
}
