package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"

	"github.com/rvemu/rvemu/rvgo/fast"
	"github.com/rvemu/rvemu/rvgo/isa"
)

var (
	DecodeHexFlag = &cli.StringFlag{
		Name:  "hex",
		Usage: "0x-prefixed little-endian instruction bytes, decoded as a stream",
	}
	DecodeELFFlag = &cli.PathFlag{
		Name:      "elf",
		Usage:     "Disassemble from the loaded image of this ELF file",
		TakesFile: true,
	}
	DecodeAddrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "Address of the first instruction. Defaults to the ELF entry point, or 0.",
	}
	DecodeCountFlag = &cli.UintFlag{
		Name:  "count",
		Usage: "Number of instructions to disassemble from --elf",
		Value: 16,
	}
)

// disassemble decodes up to limit instructions (0 for all) from code starting at addr,
// stepping by each instruction's length. Illegal encodings are printed, not fatal.
func disassemble(w io.Writer, addr uint64, code []byte, symbols fast.SortedSymbols, limit uint) error {
	var last string
	for n := uint(0); len(code) >= 2 && (limit == 0 || n < limit); n++ {
		if len(symbols) > 0 {
			if name := symbols.FindSymbol(addr).Name; name != last && !strings.HasPrefix(name, "!") {
				if _, err := fmt.Fprintf(w, "%s:\n", name); err != nil {
					return err
				}
				last = name
			}
		}
		raw := uint32(code[0]) | uint32(code[1])<<8
		size := 2
		if raw&3 == 3 {
			if len(code) < 4 {
				return fmt.Errorf("truncated instruction at 0x%x", addr)
			}
			raw |= uint32(code[2])<<16 | uint32(code[3])<<24
			size = 4
		}
		if _, err := fmt.Fprintln(w, formatInstr(addr, raw, size)); err != nil {
			return err
		}
		addr += uint64(size)
		code = code[size:]
	}
	return nil
}

func formatInstr(addr uint64, raw uint32, size int) string {
	word := fmt.Sprintf("%08x", raw)
	if size == 2 {
		word = fmt.Sprintf("%04x    ", raw&0xffff)
	}
	in, err := isa.Decode(raw)
	if err != nil {
		return fmt.Sprintf("%8x:  %s  <illegal: %v>", addr, word, err)
	}
	return fmt.Sprintf("%8x:  %s  %s", addr, word, in.String())
}

func parseAddr(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return v, nil
}

func Decode(ctx *cli.Context) error {
	w := ctx.App.Writer
	var addr uint64
	if ctx.IsSet(DecodeAddrFlag.Name) {
		a, err := parseAddr(ctx.String(DecodeAddrFlag.Name))
		if err != nil {
			return err
		}
		addr = a
	}

	if path := ctx.Path(DecodeELFFlag.Name); path != "" {
		f, err := fast.OpenELF(path)
		if err != nil {
			return err
		}
		defer f.Close()
		m, err := fast.LoadELF(f)
		if err != nil {
			return err
		}
		symbols, err := fast.Symbols(f)
		if err != nil {
			return err
		}
		if !ctx.IsSet(DecodeAddrFlag.Name) {
			addr = m.State.PC
		}
		count := ctx.Uint(DecodeCountFlag.Name)
		code := make([]byte, count*4)
		m.Memory.GetUnaligned(addr, code)
		return disassemble(w, addr, code, symbols, count)
	}

	if hex := ctx.String(DecodeHexFlag.Name); hex != "" {
		code, err := hexutil.Decode(hex)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", DecodeHexFlag.Name, err)
		}
		return disassemble(w, addr, code, nil, 0)
	}

	if ctx.NArg() == 0 {
		return fmt.Errorf("nothing to decode: pass instruction words, --%s or --%s", DecodeHexFlag.Name, DecodeELFFlag.Name)
	}
	for _, arg := range ctx.Args().Slice() {
		raw, err := strconv.ParseUint(strings.TrimPrefix(arg, "0x"), 16, 32)
		if err != nil {
			return fmt.Errorf("invalid instruction word %q: %w", arg, err)
		}
		size := 4
		if raw&3 != 3 {
			size = 2
		}
		if _, err := fmt.Fprintln(w, formatInstr(addr, uint32(raw), size)); err != nil {
			return err
		}
		addr += uint64(size)
	}
	return nil
}

func newDecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Disassemble RV64GC instructions",
		ArgsUsage: "[instruction words...]",
		Description: "Decode instruction words given as hex arguments, a little-endian byte stream (--hex), " +
			"or a range of a loaded ELF image (--elf).",
		Action: Decode,
		Flags: []cli.Flag{
			DecodeHexFlag,
			DecodeELFFlag,
			DecodeAddrFlag,
			DecodeCountFlag,
		},
	}
}
