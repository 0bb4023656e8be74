//go:build unix

// File: reactor/selector.go
// Author: momentics <momentics@gmail.com>
//
// Descriptor selector. Readiness comes from a backend: epoll on Linux and
// poll(2) elsewhere. Interest changes take effect on the next Select.

package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/control"
	"github.com/momentics/hioload-nio/internal/sysfd"
	"github.com/momentics/hioload-nio/spi"
)

// PollSelector multiplexes descriptor-backed channels.
type PollSelector struct {
	*spi.SelectorCore

	metrics *control.MetricsRegistry
	probes  *control.DebugProbes
	log     *logrus.Entry

	pollTimeout atomic.Int64

	// selectMu serializes Select and the final stage of Close.
	selectMu sync.Mutex

	// mu guards keys, selected and closing, and serializes backend
	// bookkeeping. Never held while calling into a channel.
	mu       sync.Mutex
	keys     map[*spi.SelectionKey]int
	selected map[*spi.SelectionKey]struct{}
	closing  bool

	be    backend
	waker *sysfd.Waker
}

var _ spi.SelectorImpl = (*PollSelector)(nil)

// New creates an open selector.
func New(opts ...Option) (*PollSelector, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	wk, err := sysfd.NewWaker()
	if err != nil {
		return nil, fmt.Errorf("reactor: wake descriptor: %w", err)
	}
	var be backend
	if o.forcePoll {
		be = newPollBackend(wk.ReadFD())
	} else if be, err = newDefaultBackend(wk.ReadFD()); err != nil {
		wk.Close()
		return nil, fmt.Errorf("reactor: %w", err)
	}
	s := &PollSelector{
		metrics:  o.metrics,
		probes:   o.probes,
		log:      control.Component("reactor"),
		keys:     make(map[*spi.SelectionKey]int, o.initialKeys),
		selected: make(map[*spi.SelectionKey]struct{}),
		be:       be,
		waker:    wk,
	}
	s.pollTimeout.Store(int64(o.pollTimeout))
	s.SelectorCore = spi.NewSelectorCore(s)
	s.registerProbes()
	return s, nil
}

// PollTimeout returns the configured default timeout for select loops.
// It is negative when the loop should block until woken.
func (s *PollSelector) PollTimeout() time.Duration {
	return time.Duration(s.pollTimeout.Load())
}

// Backend names the readiness mechanism, "epoll" or "poll".
func (s *PollSelector) Backend() string { return s.be.kind() }

// ApplyConfig updates the tunables that can change on a live selector.
func (s *PollSelector) ApplyConfig(cfg control.ReactorConfig) {
	s.pollTimeout.Store(int64(loopTimeout(cfg.PollTimeout.Duration)))
}

// ImplRegister adds k to the backend. The channel must implement Pollable.
func (s *PollSelector) ImplRegister(k *spi.SelectionKey) error {
	p, ok := k.Channel().(Pollable)
	if !ok {
		return api.NewError(api.ErrCodeIllegalSelector, "channel has no descriptor").
			WithContext("channel", fmt.Sprintf("%T", k.Channel()))
	}
	fd := p.FD()
	if fd < 0 {
		return api.ErrClosedChannel
	}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return api.ErrClosedSelector
	}
	if err := s.be.register(k, fd, toPollEvents(k.Interest())); err != nil {
		s.mu.Unlock()
		return err
	}
	s.keys[k] = fd
	s.metrics.Set(control.MetricKeysLive, int64(len(s.keys)))
	s.mu.Unlock()
	s.metrics.Add(control.MetricKeysRegistered, 1)
	return nil
}

// ImplCloseSelector wakes a Select in progress, waits for it to return and
// then deregisters every key and releases the backend and wake descriptor.
func (s *PollSelector) ImplCloseSelector() error {
	if err := s.waker.Signal(); err != nil {
		s.log.WithError(err).Debug("wakeup on close failed")
	}
	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	s.processCancelled()

	s.mu.Lock()
	s.closing = true
	keys := make([]*spi.SelectionKey, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	s.keys = make(map[*spi.SelectionKey]int)
	s.selected = make(map[*spi.SelectionKey]struct{})
	s.metrics.Set(control.MetricKeysLive, 0)
	s.mu.Unlock()

	for _, k := range keys {
		s.Deregister(k)
	}
	s.metrics.Add(control.MetricKeysDeregistered, int64(len(keys)))
	s.unregisterProbes()
	s.log.WithFields(logrus.Fields{"keys": len(keys), "backend": s.be.kind()}).Info("selector closed")
	return errors.Join(s.be.close(), s.waker.Close())
}

// Wakeup makes the current or next Select return immediately.
func (s *PollSelector) Wakeup() error {
	return s.waker.Signal()
}

// SelectNow polls without blocking.
func (s *PollSelector) SelectNow() (int, error) {
	return s.Select(context.Background(), 0)
}

// Select waits until at least one registered channel is ready, the timeout
// elapses, Wakeup is called or ctx is done. A negative timeout waits
// indefinitely. It returns the number of keys whose ready set was updated.
// If ctx ended the wait the selector stays open and the context's cause is
// returned together with the count.
func (s *PollSelector) Select(ctx context.Context, timeout time.Duration) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ms, err := sysfd.Millis(timeout)
	if err != nil {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "timeout out of range").
			WithContext("timeout", timeout)
	}

	s.selectMu.Lock()
	defer s.selectMu.Unlock()
	if !s.IsOpen() {
		return 0, api.ErrClosedSelector
	}

	s.processCancelled()
	if err := s.syncInterest(); err != nil {
		return 0, err
	}

	op, err := s.Begin(ctx)
	if err != nil {
		return 0, err
	}
	ready, woken, werr := s.be.wait(ms)
	s.End(op)

	s.metrics.Add(control.MetricSelectCycles, 1)
	if werr != nil {
		s.metrics.Add(control.MetricPollErrors, 1)
		s.log.WithError(werr).WithField("backend", s.be.kind()).Warn("wait failed")
		return 0, fmt.Errorf("reactor: %s: %w", s.be.kind(), werr)
	}
	if woken {
		s.waker.Drain()
		s.metrics.Add(control.MetricSelectWakeups, 1)
	}

	s.processCancelled()
	n := s.updateSelected(ready)
	if ctx.Err() != nil {
		return n, context.Cause(ctx)
	}
	return n, nil
}

// syncInterest pushes interest-set changes made since the last cycle to
// the backend.
func (s *PollSelector) syncInterest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, fd := range s.keys {
		if !k.IsValid() {
			continue
		}
		if err := s.be.update(k, fd, toPollEvents(k.Interest())); err != nil {
			s.metrics.Add(control.MetricPollErrors, 1)
			return fmt.Errorf("reactor: %s: %w", s.be.kind(), err)
		}
	}
	return nil
}

// updateSelected translates backend reports into ready sets. A key entering
// the selected set has its ready set replaced; a key already selected has
// the new bits merged in. Keys cancelled during the poll are skipped.
func (s *PollSelector) updateSelected(reports []readyKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range reports {
		k := r.key
		if _, ok := s.keys[k]; !ok || !k.IsValid() {
			continue
		}
		ready := fromPollEvents(r.revents, k.Interest())
		if ready == 0 {
			continue
		}
		if _, ok := s.selected[k]; !ok {
			k.SetReadyOps(ready)
			s.selected[k] = struct{}{}
			n++
			continue
		}
		old, _ := k.ReadyOps()
		if k.AddReadyOps(ready) != old {
			n++
		}
	}
	return n
}

// processCancelled deregisters every key in the cancelled set. Selector-side
// state is dropped under mu; Deregister runs after mu is released.
func (s *PollSelector) processCancelled() {
	n := s.DrainCancelled(func(k *spi.SelectionKey) {
		s.mu.Lock()
		if fd, ok := s.keys[k]; ok {
			if err := s.be.deregister(k, fd); err != nil {
				s.log.WithError(err).WithField("fd", fd).Debug("backend deregister failed")
			}
		}
		delete(s.keys, k)
		delete(s.selected, k)
		s.metrics.Set(control.MetricKeysLive, int64(len(s.keys)))
		s.mu.Unlock()
	})
	if n > 0 {
		s.metrics.Add(control.MetricKeysDeregistered, int64(n))
		s.log.WithField("keys", n).Debug("deregistered cancelled keys")
	}
}

// Keys returns a snapshot of the registered keys.
func (s *PollSelector) Keys() []*spi.SelectionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*spi.SelectionKey, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out
}

// SelectedKeys returns a snapshot of the selected-key set.
func (s *PollSelector) SelectedKeys() []*spi.SelectionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*spi.SelectionKey, 0, len(s.selected))
	for k := range s.selected {
		out = append(out, k)
	}
	return out
}

// RemoveSelected drops k from the selected-key set.
func (s *PollSelector) RemoveSelected(k *spi.SelectionKey) {
	s.mu.Lock()
	delete(s.selected, k)
	s.mu.Unlock()
}

// ClearSelected empties the selected-key set.
func (s *PollSelector) ClearSelected() {
	s.mu.Lock()
	s.selected = make(map[*spi.SelectionKey]struct{})
	s.mu.Unlock()
}

func (s *PollSelector) registerProbes() {
	s.probes.RegisterProbe("reactor.keys", func() any {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.keys)
	})
	s.probes.RegisterProbe("reactor.selected", func() any {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.selected)
	})
	s.probes.RegisterProbe("reactor.cancelled", func() any {
		return s.PendingCancelled()
	})
	s.probes.RegisterProbe("reactor.wakeup", func() any {
		return sysfd.WakeKind
	})
	s.probes.RegisterProbe("reactor.backend", func() any {
		return s.be.kind()
	})
	s.probes.RegisterProbe("reactor.armed", func() any {
		return s.be.armed()
	})
}

func (s *PollSelector) unregisterProbes() {
	for _, name := range []string{
		"reactor.keys", "reactor.selected", "reactor.cancelled",
		"reactor.wakeup", "reactor.backend", "reactor.armed",
	} {
		s.probes.UnregisterProbe(name)
	}
}
