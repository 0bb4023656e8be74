// File: internal/interrupt/doc.go
// Author: momentics <momentics@gmail.com>
//
// Package interrupt tracks which goroutines are parked inside a bracketed
// blocking operation and delivers interruption to them.
//
// Goroutines cannot be interrupted directly, so the interrupt source is the
// context.Context handed to Begin. Each goroutine owns at most one installed
// Op at a time, kept in a process-wide slot table keyed by goroutine id.
// When the context is done the Op's callback runs exactly once: either from
// context.AfterFunc, or synchronously inside Begin when the context was
// already done before the callback could be armed.
package interrupt
