//go:build linux

// File: internal/sysfd/wake_linux.go
// Author: momentics <momentics@gmail.com>

package sysfd

import "golang.org/x/sys/unix"

// createWakeFd returns one eventfd as both read and write end.
func createWakeFd() (int, int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}

// Pipe returns a non-blocking, close-on-exec pipe as (read, write).
func Pipe() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// WakeKind names the wake mechanism in debug output.
const WakeKind = "eventfd"
