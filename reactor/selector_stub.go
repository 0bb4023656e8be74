//go:build !unix

// File: reactor/selector_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for platforms without poll(2).

package reactor

import (
	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/spi"
)

// PollSelector is unavailable on this platform.
type PollSelector struct {
	*spi.SelectorCore
}

// New returns api.ErrNotSupported on this platform.
func New(opts ...Option) (*PollSelector, error) {
	return nil, api.NewError(api.ErrCodeNotSupported, "reactor: poll selector is not supported on this platform")
}
