//go:build unix

// File: reactor/backend_poll.go
// Author: momentics <momentics@gmail.com>
//
// poll(2) backend. The poll set is rebuilt from the recorded interest on
// every wait, so registrations made during a wait apply to the next one.

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-nio/internal/sysfd"
	"github.com/momentics/hioload-nio/spi"
)

type pollReg struct {
	fd     int
	events int16
}

type pollBackend struct {
	wakeFD int

	mu   sync.Mutex
	regs map[*spi.SelectionKey]pollReg
}

func newPollBackend(wakeFD int) *pollBackend {
	return &pollBackend{
		wakeFD: wakeFD,
		regs:   make(map[*spi.SelectionKey]pollReg),
	}
}

func (b *pollBackend) register(k *spi.SelectionKey, fd int, events int16) error {
	if _, err := sysfd.PollFd(fd, events); err != nil {
		return err
	}
	b.mu.Lock()
	b.regs[k] = pollReg{fd: fd, events: events}
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) update(k *spi.SelectionKey, fd int, events int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.regs[k]; ok {
		r.events = events
		b.regs[k] = r
	}
	return nil
}

func (b *pollBackend) deregister(k *spi.SelectionKey, _ int) error {
	b.mu.Lock()
	delete(b.regs, k)
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) wait(ms int) ([]readyKey, bool, error) {
	wake, err := sysfd.PollFd(b.wakeFD, unix.POLLIN)
	if err != nil {
		return nil, false, err
	}

	b.mu.Lock()
	fds := make([]unix.PollFd, 1, len(b.regs)+1)
	fds[0] = wake
	keys := make([]*spi.SelectionKey, 0, len(b.regs))
	for k, r := range b.regs {
		if r.events == 0 || !k.IsValid() {
			continue
		}
		pfd, err := sysfd.PollFd(r.fd, r.events)
		if err != nil {
			b.mu.Unlock()
			return nil, false, err
		}
		fds = append(fds, pfd)
		keys = append(keys, k)
	}
	b.mu.Unlock()

	if _, err := sysfd.Poll(fds, ms); err != nil {
		return nil, false, err
	}
	var ready []readyKey
	for i, pfd := range fds[1:] {
		// POLLNVAL: the channel closed its descriptor before the key was reaped.
		if pfd.Revents == 0 || pfd.Revents&unix.POLLNVAL != 0 {
			continue
		}
		ready = append(ready, readyKey{key: keys[i], revents: pfd.Revents})
	}
	return ready, fds[0].Revents != 0, nil
}

func (b *pollBackend) armed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.regs {
		if r.events != 0 {
			n++
		}
	}
	return n
}

func (b *pollBackend) close() error {
	b.mu.Lock()
	b.regs = make(map[*spi.SelectionKey]pollReg)
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) kind() string { return "poll" }
