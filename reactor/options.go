// File: reactor/options.go
// Author: momentics <momentics@gmail.com>
//
// Construction options shared by all platforms.

package reactor

import (
	"time"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/control"
)

// Pollable is a selectable channel backed by a descriptor.
type Pollable interface {
	api.SelectableChannel
	FD() int
}

// Option configures a PollSelector.
type Option func(*options)

type options struct {
	metrics     *control.MetricsRegistry
	probes      *control.DebugProbes
	initialKeys int
	pollTimeout time.Duration
	forcePoll   bool
}

func defaultOptions() options {
	cfg := control.DefaultConfig().Reactor
	return options{
		initialKeys: cfg.InitialKeys,
		pollTimeout: loopTimeout(cfg.PollTimeout.Duration),
	}
}

// WithMetrics records selector counters in reg.
func WithMetrics(reg *control.MetricsRegistry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithDebugProbes exposes selector state through dp.
func WithDebugProbes(dp *control.DebugProbes) Option {
	return func(o *options) { o.probes = dp }
}

// WithConfig applies the reactor section of a loaded configuration.
func WithConfig(cfg control.ReactorConfig) Option {
	return func(o *options) {
		if cfg.InitialKeys > 0 {
			o.initialKeys = cfg.InitialKeys
		}
		o.pollTimeout = loopTimeout(cfg.PollTimeout.Duration)
	}
}

// WithPollBackend selects the poll(2) backend even where epoll is available.
func WithPollBackend() Option {
	return func(o *options) { o.forcePoll = true }
}

// loopTimeout maps a configured poll timeout onto a Select timeout. Zero
// and negative values mean block until woken, which Select spells as -1.
func loopTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return -1
	}
	return d
}
