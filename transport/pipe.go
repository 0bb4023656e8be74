//go:build unix

// File: transport/pipe.go
// Author: momentics <momentics@gmail.com>
//
// Pipe channels. Descriptors are always O_NONBLOCK; blocking mode is
// emulated by parking in poll(2) on the data descriptor together with an
// unblock descriptor that teardown signals.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/internal/sysfd"
	"github.com/momentics/hioload-nio/spi"
)

// errUnblocked reports that teardown interrupted a wait.
var errUnblocked = errors.New("transport: wait unblocked by close")

// endpoint is the state shared by both pipe ends.
type endpoint struct {
	*spi.SelectableChannel

	fd atomic.Int64
	// ioMu serializes I/O on the descriptor and guards its release.
	ioMu    sync.Mutex
	unblock *sysfd.Waker
}

func (e *endpoint) init(fd int, impl spi.SelectableChannelImpl) error {
	wk, err := sysfd.NewWaker()
	if err != nil {
		return err
	}
	e.fd.Store(int64(fd))
	e.unblock = wk
	e.SelectableChannel = spi.NewSelectableChannel(impl)
	return nil
}

// FD returns the descriptor, or -1 once the channel is closed.
func (e *endpoint) FD() int { return int(e.fd.Load()) }

// ImplConfigureBlocking is a no-op: the descriptor stays non-blocking and
// the mode is consulted on each EAGAIN.
func (e *endpoint) ImplConfigureBlocking(bool) error {
	if e.FD() < 0 {
		return api.ErrClosedChannel
	}
	return nil
}

// ImplCloseSelectableChannel releases a goroutine parked in poll, waits for
// the I/O lock and closes both descriptors.
func (e *endpoint) ImplCloseSelectableChannel() error {
	if err := e.unblock.Signal(); err != nil {
		return fmt.Errorf("transport: unblock: %w", err)
	}
	e.ioMu.Lock()
	defer e.ioMu.Unlock()
	fd := int(e.fd.Swap(-1))
	var err error
	if fd >= 0 {
		err = unix.Close(fd)
	}
	if uerr := e.unblock.Close(); err == nil {
		err = uerr
	}
	return err
}

// await parks until fd reports events or teardown signals the unblock
// descriptor. Must be called with ioMu held.
func (e *endpoint) await(fd int, events int16) error {
	data, err := sysfd.PollFd(fd, events)
	if err != nil {
		return err
	}
	wake, err := sysfd.PollFd(e.unblock.ReadFD(), unix.POLLIN)
	if err != nil {
		return err
	}
	fds := []unix.PollFd{data, wake}
	for {
		n, err := sysfd.Poll(fds, -1)
		if err != nil {
			return err
		}
		if fds[1].Revents != 0 {
			return errUnblocked
		}
		if n > 0 {
			return nil
		}
	}
}

// Source is the readable end of a pipe.
type Source struct {
	endpoint
}

// Sink is the writable end of a pipe.
type Sink struct {
	endpoint
}

var (
	_ api.SelectableChannel = (*Source)(nil)
	_ api.SelectableChannel = (*Sink)(nil)
)

// Pipe creates a connected Source and Sink, both in blocking mode.
func Pipe() (*Source, *Sink, error) {
	r, w, err := sysfd.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("transport: pipe: %w", err)
	}
	src := &Source{}
	if err := src.init(r, src); err != nil {
		unix.Close(r)
		unix.Close(w)
		return nil, nil, fmt.Errorf("transport: pipe: %w", err)
	}
	sink := &Sink{}
	if err := sink.init(w, sink); err != nil {
		src.Close()
		unix.Close(w)
		return nil, nil, fmt.Errorf("transport: pipe: %w", err)
	}
	return src, sink, nil
}

// ValidOps implements api.SelectableChannel.
func (s *Source) ValidOps() api.Ops { return api.OpRead }

// Read reads into p. In non-blocking mode it returns (0, nil) when no data
// is available. In blocking mode it waits; cancelling ctx closes the channel
// and fails with api.ErrClosedByInterrupt. Returns io.EOF once the write end
// is closed and drained.
func (s *Source) Read(ctx context.Context, p []byte) (int, error) {
	if !s.IsOpen() {
		return 0, api.ErrClosedChannel
	}
	if len(p) == 0 {
		return 0, nil
	}
	op, err := s.Begin(ctx)
	if err != nil {
		return 0, err
	}
	s.ioMu.Lock()
	n, rerr := s.read(p)
	s.ioMu.Unlock()

	if err := s.End(op, n > 0 || rerr == io.EOF); err != nil {
		return n, err
	}
	return n, rerr
}

func (s *Source) read(p []byte) (int, error) {
	for {
		fd := s.FD()
		if fd < 0 {
			return 0, nil
		}
		n, err := unix.Read(fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if !s.IsBlocking() {
				return 0, nil
			}
			if werr := s.await(fd, unix.POLLIN); werr != nil {
				if werr == errUnblocked {
					return 0, nil
				}
				return 0, fmt.Errorf("transport: read: %w", werr)
			}
		case err != nil:
			return 0, fmt.Errorf("transport: read: %w", err)
		case n == 0:
			return 0, io.EOF
		default:
			return n, nil
		}
	}
}

// ValidOps implements api.SelectableChannel.
func (s *Sink) ValidOps() api.Ops { return api.OpWrite }

// Write writes p. In blocking mode it waits until all of p is written; in
// non-blocking mode it writes what fits and may return (0, nil).
// Cancelling ctx closes the channel and fails with api.ErrClosedByInterrupt.
func (s *Sink) Write(ctx context.Context, p []byte) (int, error) {
	if !s.IsOpen() {
		return 0, api.ErrClosedChannel
	}
	if len(p) == 0 {
		return 0, nil
	}
	op, err := s.Begin(ctx)
	if err != nil {
		return 0, err
	}
	s.ioMu.Lock()
	n, werr := s.write(p)
	s.ioMu.Unlock()

	if err := s.End(op, n > 0); err != nil {
		return n, err
	}
	return n, werr
}

func (s *Sink) write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		fd := s.FD()
		if fd < 0 {
			return total, nil
		}
		n, err := unix.Write(fd, p[total:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if !s.IsBlocking() {
				return total, nil
			}
			if aerr := s.await(fd, unix.POLLOUT); aerr != nil {
				if aerr == errUnblocked {
					return total, nil
				}
				return total, fmt.Errorf("transport: write: %w", aerr)
			}
		case err != nil:
			return total, fmt.Errorf("transport: write: %w", err)
		default:
			total += n
			if !s.IsBlocking() {
				return total, nil
			}
		}
	}
	return total, nil
}
