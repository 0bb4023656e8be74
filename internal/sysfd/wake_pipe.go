//go:build unix && !linux

// File: internal/sysfd/wake_pipe.go
// Author: momentics <momentics@gmail.com>

package sysfd

import "golang.org/x/sys/unix"

// createWakeFd returns a self-pipe as (read, write).
func createWakeFd() (int, int, error) {
	return Pipe()
}

// Pipe returns a non-blocking, close-on-exec pipe as (read, write).
func Pipe() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	cleanup := func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			cleanup()
			return -1, -1, err
		}
	}
	return fds[0], fds[1], nil
}

// WakeKind names the wake mechanism in debug output.
const WakeKind = "pipe"
