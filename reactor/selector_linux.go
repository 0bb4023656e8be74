//go:build linux

// File: reactor/selector_linux.go
// Author: momentics <momentics@gmail.com>
//
// epoll backend. Descriptors stay in the kernel interest list between
// waits; registration adds them, interest changes modify them and
// deregistration removes them.

package reactor

import (
	"errors"
	"fmt"
	"sync"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-nio/spi"
)

const maxEvents = 128

func newDefaultBackend(wakeFD int) (backend, error) {
	return newEpollBackend(wakeFD)
}

type epollReg struct {
	key    *spi.SelectionKey
	events int16
	armed  bool
}

type epollBackend struct {
	epfd   int
	wakeFD int

	// mu guards byFD and nArmed. EpollWait runs without it.
	mu     sync.Mutex
	byFD   map[int]*epollReg
	nArmed int

	events [maxEvents]unix.EpollEvent
}

func newEpollBackend(wakeFD int) (*epollBackend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	b := &epollBackend{epfd: epfd, wakeFD: wakeFD, byFD: make(map[int]*epollReg)}
	if err := b.ctl(unix.EPOLL_CTL_ADD, wakeFD, unix.POLLIN); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wake: %w", err)
	}
	return b, nil
}

func (b *epollBackend) ctl(op, fd int, events int16) error {
	fd32, err := safecast.Conv[int32](fd)
	if err != nil {
		return err
	}
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: fd32}
	return unix.EpollCtl(b.epfd, op, fd, &ev)
}

func (b *epollBackend) register(k *spi.SelectionKey, fd int, events int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	// A stale entry on the same fd belongs to a closed descriptor whose
	// number was reused; the kernel already dropped it from the set.
	if old, ok := b.byFD[fd]; ok && old.armed {
		b.nArmed--
	}
	r := &epollReg{key: k, events: events}
	b.byFD[fd] = r
	if events == 0 {
		return nil
	}
	err := b.ctl(unix.EPOLL_CTL_ADD, fd, events)
	if errors.Is(err, unix.EEXIST) {
		err = b.ctl(unix.EPOLL_CTL_MOD, fd, events)
	}
	if err != nil {
		delete(b.byFD, fd)
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	r.armed = true
	b.nArmed++
	return nil
}

// update applies a new mask. A zero mask removes the descriptor from the
// set because epoll reports EPOLLERR and EPOLLHUP regardless of the mask.
func (b *epollBackend) update(k *spi.SelectionKey, fd int, events int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byFD[fd]
	if !ok || r.key != k || r.events == events && r.armed == (events != 0) {
		return nil
	}
	r.events = events
	var err error
	switch {
	case events == 0:
		if r.armed {
			r.armed = false
			b.nArmed--
			err = b.ctl(unix.EPOLL_CTL_DEL, fd, 0)
		}
	case r.armed:
		err = b.ctl(unix.EPOLL_CTL_MOD, fd, events)
	default:
		err = b.ctl(unix.EPOLL_CTL_ADD, fd, events)
		if err == nil {
			r.armed = true
			b.nArmed++
		}
	}
	if gone(err) {
		// closed under us; the key is about to be cancelled
		if r.armed {
			r.armed = false
			b.nArmed--
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("epoll ctl: %w", err)
	}
	return nil
}

func (b *epollBackend) deregister(k *spi.SelectionKey, fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byFD[fd]
	if !ok || r.key != k {
		return nil
	}
	delete(b.byFD, fd)
	if !r.armed {
		return nil
	}
	b.nArmed--
	if err := b.ctl(unix.EPOLL_CTL_DEL, fd, 0); err != nil && !gone(err) {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// wait is only called with the selector's selectMu held, so the event
// buffer is not shared.
func (b *epollBackend) wait(ms int) ([]readyKey, bool, error) {
	n, err := unix.EpollWait(b.epfd, b.events[:], ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, false, nil // interrupted by signal, normal
		}
		return nil, false, fmt.Errorf("epoll wait: %w", err)
	}

	woken := false
	var ready []readyKey
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range b.events[:n] {
		fd := int(ev.Fd)
		if fd == b.wakeFD {
			woken = true
			continue
		}
		r, ok := b.byFD[fd]
		if !ok || !r.armed {
			continue
		}
		ready = append(ready, readyKey{key: r.key, revents: fromEpollEvents(ev.Events)})
	}
	return ready, woken, nil
}

func (b *epollBackend) armed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nArmed
}

func (b *epollBackend) close() error {
	b.mu.Lock()
	b.byFD = make(map[int]*epollReg)
	b.nArmed = 0
	b.mu.Unlock()
	return unix.Close(b.epfd)
}

func (b *epollBackend) kind() string { return "epoll" }

// gone reports errors meaning the descriptor is no longer in the set.
func gone(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EBADF)
}

func toEpollEvents(events int16) uint32 {
	var ev uint32
	if events&unix.POLLIN != 0 {
		ev |= unix.EPOLLIN
	}
	if events&unix.POLLOUT != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpollEvents(ev uint32) int16 {
	var revents int16
	if ev&unix.EPOLLIN != 0 {
		revents |= unix.POLLIN
	}
	if ev&unix.EPOLLOUT != 0 {
		revents |= unix.POLLOUT
	}
	if ev&unix.EPOLLERR != 0 {
		revents |= unix.POLLERR
	}
	if ev&unix.EPOLLHUP != 0 {
		revents |= unix.POLLHUP
	}
	return revents
}
