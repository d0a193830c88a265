package cmd

import (
	"github.com/urfave/cli/v2"
)

const envVarPrefix = "RVEMU_"

func prefixEnvVar(name string) []string {
	return []string{envVarPrefix + name}
}

var (
	ConfigFlag = &cli.PathFlag{
		Name:    "config",
		Usage:   "YAML file with run settings. Flags override its values.",
		EnvVars: prefixEnvVar("CONFIG"),
	}
	LogLevelFlag = &cli.StringFlag{
		Name:    "log.level",
		Usage:   "Log level: trace, debug, info, warn, error or crit",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
	}
	LogFormatFlag = &cli.StringFlag{
		Name:    "log.format",
		Usage:   "Log format: logfmt, terminal or json. Defaults to terminal on a TTY, logfmt otherwise.",
		EnvVars: prefixEnvVar("LOG_FORMAT"),
	}
	InputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "Resume from a state file (.json or .bin) instead of loading an ELF",
		TakesFile: true,
	}
	OutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "Write the final state to this path. Empty to skip.",
		TakesFile: true,
	}
	MaxStepsFlag = &cli.Uint64Flag{
		Name:    "max-steps",
		Usage:   "Stop with an error after this many instructions. 0 means no limit.",
		EnvVars: prefixEnvVar("MAX_STEPS"),
	}
	StackSizeFlag = &cli.Uint64Flag{
		Name:  "stack-size",
		Usage: "Maximum size in bytes of the initial stack contents",
	}
	EnvFlag = &cli.StringSliceFlag{
		Name:  "env",
		Usage: "Guest environment entry KEY=VALUE, may be repeated",
	}
	LinuxOpenFlagsFlag = &cli.BoolFlag{
		Name:  "linux-open-flags",
		Usage: "Pass open flags through unchanged instead of translating newlib values",
	}
	SnapshotFmtFlag = &cli.StringFlag{
		Name:  "snapshot-fmt",
		Usage: "Format for snapshot output file names.",
		Value: "state-%d.json",
	}
	StateHashFlag = &cli.BoolFlag{
		Name:  "state-hash",
		Usage: "Log the keccak256 state hash when the run ends",
	}
	StdoutLogFlag = &cli.BoolFlag{
		Name:  "stdout-log",
		Usage: "Route guest stdout through the logger",
	}
	PProfCPUFlag = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "Enable pprof cpu profiling",
	}

	LoadELFPathFlag = &cli.PathFlag{
		Name:      "path",
		Usage:     "Path to a RISC-V ELF executable",
		TakesFile: true,
		Required:  true,
	}
	LoadELFOutFlag = &cli.PathFlag{
		Name:      "out",
		Usage:     "Output path of the state file",
		TakesFile: true,
		Value:     "state.json",
	}
)

const (
	InfoAtFlagName     = "info-at"
	StopAtFlagName     = "stop-at"
	SnapshotAtFlagName = "snapshot-at"
)

// runFlags builds the run flag set. Step matchers hold parsed state, so every app gets fresh ones.
func runFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		LogLevelFlag,
		LogFormatFlag,
		InputFlag,
		OutputFlag,
		MaxStepsFlag,
		StackSizeFlag,
		EnvFlag,
		LinuxOpenFlagsFlag,
		&cli.GenericFlag{
			Name:    InfoAtFlagName,
			Usage:   "step pattern to log progress at: 'never', 'always', '=123' or '%123' (instructions)",
			Value:   MustStepMatcherFlag("never"),
			EnvVars: prefixEnvVar("INFO_AT"),
		},
		&cli.GenericFlag{
			Name:  StopAtFlagName,
			Usage: "step pattern to stop at: 'never', 'always', '=123' or '%123'",
			Value: MustStepMatcherFlag("never"),
		},
		&cli.GenericFlag{
			Name:  SnapshotAtFlagName,
			Usage: "step pattern to write a state snapshot at: 'never', 'always', '=123' or '%123'",
			Value: MustStepMatcherFlag("never"),
		},
		SnapshotFmtFlag,
		StateHashFlag,
		StdoutLogFlag,
		PProfCPUFlag,
	}
}
