package fast

import (
	"fmt"

	"github.com/rvemu/rvemu/rvgo/isa"
	"github.com/rvemu/rvemu/rvgo/riscv"
)

// handler applies one decoded instruction to the hart state.
// Handlers cannot fail through a return value: fatal conditions panic with a typed error,
// which ExecBlock recovers.
type handler func(s *State, mem *Memory, in *isa.Instr)

// handlers is total over isa.Op. It is built once and never modified afterwards.
var (
	handlers    [isa.NumOps]handler
	implemented [isa.NumOps]bool
)

func init() {
	for _, table := range []map[isa.Op]handler{intHandlers(), floatHandlers()} {
		for op, h := range table {
			if handlers[op] != nil {
				panic(fmt.Sprintf("duplicate handler for %s", op))
			}
			handlers[op] = h
			implemented[op] = true
		}
	}
	for op := range handlers {
		if handlers[op] == nil {
			handlers[op] = execNotImplemented
		}
	}
}

// UnimplementedError reports a decodable instruction this hart does not execute.
type UnimplementedError struct {
	Op isa.Op
	PC uint64
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("unimplemented instruction %s at pc 0x%x", e.Op, e.PC)
}

func (e *UnimplementedError) Unwrap() error {
	return riscv.ErrUnimplemented
}

func execNotImplemented(s *State, _ *Memory, in *isa.Instr) {
	panic(&UnimplementedError{Op: in.Op, PC: s.PC})
}

// Implemented reports whether op has a real handler.
func Implemented(op isa.Op) bool {
	return op < isa.NumOps && implemented[op]
}
