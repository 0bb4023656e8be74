// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides PollSelector, a descriptor selector built on
// spi.SelectorCore. On Linux it drives epoll; other unix systems use
// poll(2), which WithPollBackend also selects on Linux. Channels register
// with it if they expose a descriptor through FD() int. Other platforms get
// a stub whose constructor fails with api.ErrNotSupported.
package reactor
