// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package spi provides the building blocks for concrete channels and
// selectors: the exactly-once close protocol, the interrupt gate around
// blocking operations, blocking-mode arbitration, per-channel registration
// tables, selection keys, and the selector's deferred cancellation set.
//
// Lock order, outer to inner:
//
//  1. SelectableChannel registration lock (ConfigureBlocking, Register)
//  2. SelectableChannel key-table lock (Register, removal, close snapshot)
//  3. SelectorCore cancellation-set lock; never held while calling into a
//     channel
//
// The InterruptibleChannel close lock (Close, interrupt callback) sits
// outside that chain and is never taken under locks 1 or 2. Teardown runs
// under it: the key snapshot briefly nests lock 2 inside it, then keys are
// cancelled with lock 2 released, which reaches only lock 3.
//
// No lock in this package is held while a goroutine is parked in the
// blocking operation bracketed by Begin and End.
package spi
