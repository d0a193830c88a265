package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rvemu/rvemu/rvgo/fast"
)

func LoadELF(ctx *cli.Context) error {
	elfPath := ctx.Path(LoadELFPathFlag.Name)
	elfProgram, err := fast.OpenELF(elfPath)
	if err != nil {
		return err
	}
	defer elfProgram.Close()
	state, err := fast.LoadELF(elfProgram)
	if err != nil {
		return fmt.Errorf("failed to load ELF data into VM state: %w", err)
	}
	if ctx.IsSet(StackSizeFlag.Name) {
		state.StackSize = ctx.Uint64(StackSizeFlag.Name)
	}
	argv := append([]string{elfPath}, ctx.Args().Slice()...)
	if err := state.SetupStack(argv, ctx.StringSlice(EnvFlag.Name)); err != nil {
		return fmt.Errorf("failed to set up initial stack: %w", err)
	}
	return WriteState(ctx.Path(LoadELFOutFlag.Name), state)
}

func newLoadELFCommand() *cli.Command {
	return &cli.Command{
		Name:        "load-elf",
		Usage:       "Load ELF file into a state file",
		ArgsUsage:   "[guest args...]",
		Description: "Load ELF file into a JSON or binary state file, with the initial stack built from the remaining arguments. Resume it with run --input.",
		Action:      LoadELF,
		Flags: []cli.Flag{
			LoadELFPathFlag,
			LoadELFOutFlag,
			StackSizeFlag,
			EnvFlag,
		},
	}
}
