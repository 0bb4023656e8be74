//go:build unix

// File: internal/sysfd/poll.go
// Author: momentics <momentics@gmail.com>

package sysfd

import (
	"fmt"
	"math"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

// PollFd builds a poll entry for fd.
func PollFd(fd int, events int16) (unix.PollFd, error) {
	fd32, err := safecast.Conv[int32](fd)
	if err != nil {
		return unix.PollFd{}, fmt.Errorf("descriptor %d: %w", fd, err)
	}
	return unix.PollFd{Fd: fd32, Events: events}, nil
}

// Millis converts a timeout to poll(2) and epoll_wait(2) milliseconds.
// Negative means infinite (-1); positive sub-millisecond values round up to
// 1 so a short timeout never degrades into a non-blocking poll. The kernel
// reads the timeout as a C int, so longer timeouts are capped at
// math.MaxInt32 rather than wrapping into an infinite wait.
func Millis(d time.Duration) (int, error) {
	if d < 0 {
		return -1, nil
	}
	ms := d.Milliseconds()
	if d%time.Millisecond != 0 {
		ms++
	}
	ms = min(ms, math.MaxInt32)
	return safecast.Conv[int](ms)
}

// Poll wraps unix.Poll. An EINTR is reported as zero ready descriptors.
func Poll(fds []unix.PollFd, timeout int) (int, error) {
	n, err := unix.Poll(fds, timeout)
	if err == unix.EINTR {
		return 0, nil
	}
	return n, err
}
