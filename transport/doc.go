// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package transport provides descriptor-backed selectable channels. Pipe
// returns the two ends of an OS pipe as a readable Source and a writable
// Sink. Both can block interruptibly or register with a reactor.PollSelector
// once switched to non-blocking mode.
package transport
