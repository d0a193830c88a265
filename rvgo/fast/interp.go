package fast

import (
	"fmt"

	"github.com/rvemu/rvemu/rvgo/isa"
)

// ExecBlock interprets instructions from s.PC until one of them sets an exit reason.
// On return s.PC still points at the block-ending instruction and s.ReEnterPC holds
// where execution continues.
// Decode failures, unimplemented operations and other fatal conditions are returned as errors.
func ExecBlock(s *State, mem *Memory) (outErr error) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				outErr = fmt.Errorf("pc 0x%x: %w", s.PC, err)
			} else {
				outErr = fmt.Errorf("pc 0x%x: %v", s.PC, r)
			}
		}
	}()

	s.ExitReason = ExitNone
	for {
		in, err := isa.Decode(s.Instr(mem))
		if err != nil {
			return fmt.Errorf("pc 0x%x: %w", s.PC, err)
		}
		handlers[in.Op](s, mem, &in)
		s.Registers[0] = 0
		s.Step++
		if s.ExitReason != ExitNone {
			return nil
		}
		s.PC += in.Size()
	}
}
