package fast

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/rvemu/rvemu/rvgo/riscv"
)

// CSRFile is the flat 4096-entry control and status register array.
// Only non-zero registers are written when marshalling to JSON.
type CSRFile [riscv.CSRCount]uint64

func (c *CSRFile) MarshalJSON() ([]byte, error) {
	out := make(map[string]uint64)
	for i, v := range c {
		if v != 0 {
			out[fmt.Sprintf("0x%03x", i)] = v
		}
	}
	return json.Marshal(out)
}

func (c *CSRFile) UnmarshalJSON(data []byte) error {
	var in map[string]uint64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	*c = CSRFile{}
	for _, k := range keys {
		addr, err := strconv.ParseUint(k, 0, 16)
		if err != nil || addr >= riscv.CSRCount {
			return fmt.Errorf("invalid csr address %q", k)
		}
		c[addr] = in[k]
	}
	return nil
}

const (
	fflagsMask = 0x1f
	frmShift   = 5
	fcsrMask   = 0xff

	// SIE SPIE UBE SPP VS FS XS SUM MXR UXL SD
	sstatusMask = 0x8000_0003_000d_e762

	// RV64 with extensions A C D F I M S U
	misaValue = 2<<62 | 1<<0 | 1<<2 | 1<<3 | 1<<5 | 1<<8 | 1<<12 | 1<<18 | 1<<20
)

// readCSR returns the value of a CSR, resolving the derived views.
// fflags and frm live inside fcsr; sie and sip are mie and mip masked by mideleg.
func (s *State) readCSR(num uint16) uint64 {
	c := &s.CSR
	switch num {
	case riscv.CSRFflags:
		return c[riscv.CSRFcsr] & fflagsMask
	case riscv.CSRFrm:
		return (c[riscv.CSRFcsr] >> frmShift) & 7
	case riscv.CSRFcsr:
		return c[riscv.CSRFcsr] & fcsrMask
	case riscv.CSRSstatus:
		return c[riscv.CSRMstatus] & sstatusMask
	case riscv.CSRSie:
		return c[riscv.CSRMie] & c[riscv.CSRMideleg]
	case riscv.CSRSip:
		return c[riscv.CSRMip] & c[riscv.CSRMideleg]
	case riscv.CSRCycle, riscv.CSRTime, riscv.CSRInstret:
		return s.Step
	case riscv.CSRMisa:
		return misaValue
	case riscv.CSRMhartid, riscv.CSRMvendorid, riscv.CSRMarchid, riscv.CSRMimpid:
		return 0
	}
	return c[num&(riscv.CSRCount-1)]
}

// writeCSR stores v into a CSR. Writes to the read-only counters and ID registers are dropped.
func (s *State) writeCSR(num uint16, v uint64) {
	c := &s.CSR
	switch num {
	case riscv.CSRFflags:
		c[riscv.CSRFcsr] = c[riscv.CSRFcsr]&^fflagsMask | v&fflagsMask
	case riscv.CSRFrm:
		c[riscv.CSRFcsr] = c[riscv.CSRFcsr]&^(7<<frmShift) | (v&7)<<frmShift
	case riscv.CSRFcsr:
		c[riscv.CSRFcsr] = v & fcsrMask
	case riscv.CSRSstatus:
		c[riscv.CSRMstatus] = c[riscv.CSRMstatus]&^sstatusMask | v&sstatusMask
	case riscv.CSRSie:
		deleg := c[riscv.CSRMideleg]
		c[riscv.CSRMie] = c[riscv.CSRMie]&^deleg | v&deleg
	case riscv.CSRSip:
		deleg := c[riscv.CSRMideleg]
		c[riscv.CSRMip] = c[riscv.CSRMip]&^deleg | v&deleg
	case riscv.CSRCycle, riscv.CSRTime, riscv.CSRInstret, riscv.CSRMisa,
		riscv.CSRMhartid, riscv.CSRMvendorid, riscv.CSRMarchid, riscv.CSRMimpid:
	default:
		c[num&(riscv.CSRCount-1)] = v
	}
}

// updateCSR applies one CSR read-modify-write and returns the value before the update.
// mode follows funct3: 1 = write, 2 = set bits, 3 = clear bits. Set and clear skip the
// write when the source is x0 or a zero immediate.
func (s *State) updateCSR(num uint16, v uint64, mode uint8, write bool) (out uint64) {
	out = s.readCSR(num)
	switch mode {
	case 1: // ?01 = CSRRW(I)
	case 2: // ?10 = CSRRS(I)
		v = or64(out, v)
	case 3: // ?11 = CSRRC(I)
		v = and64(out, not64(v))
	default:
		panic(fmt.Errorf("unknown CSR mode: %d", mode))
	}
	if write {
		s.writeCSR(num, v)
	}
	return
}

func (s *State) setFflags(flags uint64) {
	s.CSR[riscv.CSRFcsr] |= flags & fflagsMask
}

// roundingMode resolves an instruction rm field, reading frm for the dynamic mode.
func (s *State) roundingMode(rm uint8) uint8 {
	if rm == riscv.RoundDynamic {
		rm = uint8(s.readCSR(riscv.CSRFrm))
	}
	if rm > riscv.RoundNearestMax {
		panic(fmt.Errorf("%w: invalid rounding mode %d", riscv.ErrIllegalInstruction, rm))
	}
	return rm
}
