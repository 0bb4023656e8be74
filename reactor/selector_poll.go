//go:build unix && !linux

// File: reactor/selector_poll.go
// Author: momentics <momentics@gmail.com>

package reactor

func newDefaultBackend(wakeFD int) (backend, error) {
	return newPollBackend(wakeFD), nil
}
