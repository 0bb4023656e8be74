//go:build unix

// File: internal/sysfd/wake.go
// Author: momentics <momentics@gmail.com>

package sysfd

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Waker is a level-triggered wake descriptor. Signal makes ReadFD readable
// until Drain is called.
type Waker struct {
	mu     sync.RWMutex
	r, w   int
	closed bool
	buf    [8]byte
}

// NewWaker creates a non-blocking, close-on-exec wake descriptor.
func NewWaker() (*Waker, error) {
	r, w, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &Waker{r: r, w: w}, nil
}

// ReadFD returns the descriptor to poll for POLLIN.
func (wk *Waker) ReadFD() int { return wk.r }

// Signal makes the read side readable. A full pipe or saturated counter
// already means "pending", so EAGAIN is not an error. Signalling a closed
// waker is a no-op.
func (wk *Waker) Signal() error {
	wk.mu.RLock()
	defer wk.mu.RUnlock()
	if wk.closed {
		return nil
	}
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	if _, err := unix.Write(wk.w, buf); err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

// Drain consumes every pending signal. Only the polling goroutine calls it.
func (wk *Waker) Drain() {
	wk.mu.RLock()
	defer wk.mu.RUnlock()
	if wk.closed {
		return
	}
	for {
		if _, err := unix.Read(wk.r, wk.buf[:]); err != nil {
			return
		}
	}
}

// Close releases both ends. Subsequent calls are no-ops.
func (wk *Waker) Close() error {
	wk.mu.Lock()
	defer wk.mu.Unlock()
	if wk.closed {
		return nil
	}
	wk.closed = true
	err := unix.Close(wk.r)
	if wk.w != wk.r {
		if werr := unix.Close(wk.w); err == nil {
			err = werr
		}
	}
	return err
}
