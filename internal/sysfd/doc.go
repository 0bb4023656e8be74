// File: internal/sysfd/doc.go
// Author: momentics <momentics@gmail.com>

// Package sysfd holds the descriptor plumbing shared by the poll selector and
// the pipe channels: non-blocking pipes, a wake descriptor (eventfd on Linux,
// a self-pipe elsewhere) and a poll(2) wrapper with checked narrowing.
package sysfd
