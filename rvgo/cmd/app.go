package cmd

import (
	"github.com/urfave/cli/v2"
)

// NewApp builds the rvemu CLI. Without a subcommand the arguments are run as an ELF,
// so "rvemu prog a b" is "rvemu run prog a b".
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = "rvemu"
	app.Usage = "RV64GC user-mode emulator"
	app.Description = "Run statically linked RISC-V Linux executables, forwarding their syscalls to the host."
	app.ArgsUsage = "<elf> [guest args...]"
	app.Flags = runFlags()
	app.Action = Run
	app.Commands = []*cli.Command{
		newRunCommand(),
		newLoadELFCommand(),
		newDecodeCommand(),
	}
	return app
}
