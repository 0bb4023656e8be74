// File: api/ops.go
// Author: momentics <momentics@gmail.com>
//
// Interest and readiness operation bits.

package api

import "strings"

// Ops is a bit set of selectable operations.
type Ops uint32

const (
	OpRead    Ops = 1 << 0
	OpWrite   Ops = 1 << 2
	OpConnect Ops = 1 << 3
	OpAccept  Ops = 1 << 4
)

// AllOps is the union of every operation bit.
const AllOps = OpRead | OpWrite | OpConnect | OpAccept

// String renders the set as "read|write", or "none".
func (o Ops) String() string {
	if o == 0 {
		return "none"
	}
	var parts []string
	if o&OpRead != 0 {
		parts = append(parts, "read")
	}
	if o&OpWrite != 0 {
		parts = append(parts, "write")
	}
	if o&OpConnect != 0 {
		parts = append(parts, "connect")
	}
	if o&OpAccept != 0 {
		parts = append(parts, "accept")
	}
	if rest := o &^ AllOps; rest != 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, "|")
}

// Subset reports whether every bit of o is present in valid.
func (o Ops) Subset(valid Ops) bool {
	return o&^valid == 0
}
