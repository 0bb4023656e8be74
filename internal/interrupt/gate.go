// File: internal/interrupt/gate.go
// Author: momentics <momentics@gmail.com>
//
// Per-goroutine blocker slot and the interrupt callback around one blocking op.

package interrupt

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-nio/api"
)

// Op is the token for one bracketed blocking operation.
type Op struct {
	gid   uint64
	ctx   context.Context
	fn    func(*Op)
	stop  func() bool
	once  sync.Once
	fired chan struct{}
	ended atomic.Bool
}

// slots maps goroutine id to the Op it is currently blocked in.
var slots = struct {
	sync.Mutex
	m map[uint64]*Op
}{m: make(map[uint64]*Op)}

// Begin installs an Op for the calling goroutine. fn runs at most once, when
// ctx is done before End. If ctx is already done, fn runs before Begin returns.
//
// Begin fails with api.ErrNestedBlockingOp if the goroutine already has an
// Op installed; nothing is installed in that case.
func Begin(ctx context.Context, fn func(*Op)) (*Op, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	op := &Op{
		gid:   goroutineID(),
		ctx:   ctx,
		fn:    fn,
		fired: make(chan struct{}),
	}

	slots.Lock()
	if _, busy := slots.m[op.gid]; busy {
		slots.Unlock()
		return nil, api.ErrNestedBlockingOp
	}
	slots.m[op.gid] = op
	slots.Unlock()

	op.stop = context.AfterFunc(ctx, op.fire)
	// The context may have been done before the callback was armed.
	if ctx.Err() != nil {
		op.fire()
	}
	return op, nil
}

func (op *Op) fire() {
	op.once.Do(func() {
		defer close(op.fired)
		if op.fn != nil {
			op.fn(op)
		}
	})
}

// End uninstalls the Op. If the callback already started, End waits for it
// to return, so the caller must not hold any lock the callback takes.
// Repeated calls are no-ops.
func (op *Op) End() {
	if !op.ended.CompareAndSwap(false, true) {
		return
	}
	slots.Lock()
	if slots.m[op.gid] == op {
		delete(slots.m, op.gid)
	}
	slots.Unlock()

	if !op.stop() {
		<-op.fired
	}
}

// Interrupted reports whether the Op's context is done.
func (op *Op) Interrupted() bool {
	return op.ctx.Err() != nil
}

// Cause returns the cause of the interrupt, or nil.
func (op *Op) Cause() error {
	return context.Cause(op.ctx)
}

// Fired reports whether the callback has run to completion.
func (op *Op) Fired() bool {
	select {
	case <-op.fired:
		return true
	default:
		return false
	}
}

// Current returns the Op installed for the calling goroutine, or nil.
func Current() *Op {
	gid := goroutineID()
	slots.Lock()
	defer slots.Unlock()
	return slots.m[gid]
}

// Blocked returns the number of goroutines currently inside a bracketed op.
func Blocked() int {
	slots.Lock()
	defer slots.Unlock()
	return len(slots.m)
}
