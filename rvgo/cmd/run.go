package cmd

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"github.com/rvemu/rvemu/rvgo/fast"
	"github.com/rvemu/rvemu/rvgo/riscv"
)

// ExitError carries a non-zero guest exit status out to the process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("guest exited with code %d", e.Code)
}

// runConfig merges the config file with explicitly set flags.
func runConfig(ctx *cli.Context) (*Config, error) {
	cfg := &Config{}
	if path := ctx.Path(ConfigFlag.Name); path != "" {
		c, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if ctx.IsSet(MaxStepsFlag.Name) {
		cfg.MaxSteps = ctx.Uint64(MaxStepsFlag.Name)
	}
	if ctx.IsSet(StackSizeFlag.Name) {
		cfg.StackSize = ctx.Uint64(StackSizeFlag.Name)
	}
	if ctx.IsSet(LinuxOpenFlagsFlag.Name) {
		cfg.LinuxOpenFlags = ctx.Bool(LinuxOpenFlagsFlag.Name)
	}
	if ctx.IsSet(EnvFlag.Name) {
		cfg.Env = ctx.StringSlice(EnvFlag.Name)
	}
	if ctx.IsSet(LogLevelFlag.Name) || cfg.Log.Level == "" {
		cfg.Log.Level = ctx.String(LogLevelFlag.Name)
	}
	if ctx.IsSet(LogFormatFlag.Name) {
		cfg.Log.Format = ctx.String(LogFormatFlag.Name)
	}
	if ctx.IsSet(InfoAtFlagName) || cfg.InfoAt == "" {
		cfg.InfoAt = ctx.Generic(InfoAtFlagName).(*StepMatcherFlag).String()
	}
	return cfg, nil
}

// loadMachine resumes from --input, or loads the ELF named by the first argument and
// builds its initial stack from the remaining arguments.
func loadMachine(ctx *cli.Context, cfg *Config) (*fast.Machine, fast.SortedSymbols, error) {
	if input := ctx.Path(InputFlag.Name); input != "" {
		m, err := LoadState(input)
		if err != nil {
			return nil, nil, err
		}
		return m, fast.SortedSymbols{}, nil
	}
	if ctx.NArg() == 0 {
		return nil, nil, fmt.Errorf("missing ELF path, or --%s state", InputFlag.Name)
	}
	args := ctx.Args().Slice()
	f, err := fast.OpenELF(args[0])
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	m, err := fast.LoadELF(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load ELF data into VM state: %w", err)
	}
	symbols, err := fast.Symbols(f)
	if err != nil {
		return nil, nil, err
	}
	if cfg.StackSize != 0 {
		m.StackSize = cfg.StackSize
	}
	if err := m.SetupStack(args, cfg.Env); err != nil {
		return nil, nil, err
	}
	return m, symbols, nil
}

func Run(ctx *cli.Context) error {
	if ctx.Bool(PProfCPUFlag.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	cfg, err := runConfig(ctx)
	if err != nil {
		return err
	}
	lvl, err := ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	l, err := Logger(ctx.App.ErrWriter, lvl, cfg.Log.Format)
	if err != nil {
		return err
	}

	var infoFlag StepMatcherFlag
	if err := infoFlag.Set(cfg.InfoAt); err != nil {
		return fmt.Errorf("invalid --%s: %w", InfoAtFlagName, err)
	}
	infoAt := infoFlag.Matcher()
	stopAt := ctx.Generic(StopAtFlagName).(*StepMatcherFlag).Matcher()
	snapshotAt := ctx.Generic(SnapshotAtFlagName).(*StepMatcherFlag).Matcher()
	snapshotFmt := ctx.String(SnapshotFmtFlag.Name)

	m, symbols, err := loadMachine(ctx, cfg)
	if err != nil {
		return err
	}
	m.MaxSteps = cfg.MaxSteps
	m.LinuxOpenFlags = cfg.LinuxOpenFlags
	m.Logger = l
	m.Stdin = ctx.App.Reader
	m.Stdout = ctx.App.Writer
	m.Stderr = ctx.App.ErrWriter
	if ctx.Bool(StdoutLogFlag.Name) {
		m.Stdout = &LoggingWriter{Name: "program std-out", Log: l}
	}
	defer func() {
		if err := m.CloseFiles(); err != nil {
			l.Warn("failed to close guest files", "err", err)
		}
	}()

	start := time.Now()
	startStep := m.State.Step
	last := startStep

	for !m.Exited {
		if err := ctx.Context.Err(); err != nil {
			return err
		}
		if _, err := m.Step(); err != nil {
			return fmt.Errorf("failed at step %d: %w", m.State.Step, err)
		}
		num := m.State.ReadRegister(riscv.RegA7)
		if err := m.HandleSyscall(); err != nil {
			return err
		}
		step := m.State.Step

		if infoAt(last, step) {
			logProgress(l, m, symbols, start, startStep, num)
		}
		if snapshotAt(last, step) {
			if err := WriteState(fmt.Sprintf(snapshotFmt, step), m); err != nil {
				return fmt.Errorf("failed to write state snapshot: %w", err)
			}
		}
		if stopAt(last, step) {
			l.Info("stopping", "step", step, "pc", HexU64(m.State.PC))
			break
		}
		last = step
	}

	if out := ctx.Path(OutputFlag.Name); out != "" {
		if err := WriteState(out, m); err != nil {
			return fmt.Errorf("failed to write state output: %w", err)
		}
	}
	if ctx.Bool(StateHashFlag.Name) {
		hash, err := m.StateHash()
		if err != nil {
			return fmt.Errorf("failed to hash state: %w", err)
		}
		l.Info("state hash", "step", m.State.Step, "hash", hash)
	}
	if !m.Exited {
		return nil
	}
	l.Debug("guest exited", "code", m.ExitCode, "steps", m.State.Step-startStep, "elapsed", time.Since(start))
	if code := int(m.ExitCode & 0xff); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

func logProgress(l log.Logger, m *fast.Machine, symbols fast.SortedSymbols, start time.Time, startStep uint64, syscallNum uint64) {
	step := m.State.Step
	delta := time.Since(start)
	l.Info("processing",
		"step", step,
		"pc", HexU64(m.State.PC),
		"insn", HexU32(m.State.Instr(m.Memory)),
		"syscall", syscallNum,
		"ips", float64(step-startStep)/(float64(delta)/float64(time.Second)),
		"pages", m.Memory.PageCount(),
		"mem", m.Memory.Usage(),
		"name", symbols.LookupSymbol(m.State.PC),
	)
}

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a RISC-V ELF executable",
		ArgsUsage: "<elf> [guest args...]",
		Description: "Load a statically linked RV64GC executable and run it until it exits, " +
			"forwarding its syscalls to the host. See flags to log progress, snapshot or stop early.",
		Action: Run,
		Flags:  runFlags(),
	}
}
