package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/term"
)

const (
	FormatLogfmt   = "logfmt"
	FormatTerminal = "terminal"
	FormatJSON     = "json"
)

// Logger builds a leveled logger writing to w. An empty format picks the terminal
// handler when w is a TTY, and logfmt otherwise.
func Logger(w io.Writer, lvl slog.Level, format string) (log.Logger, error) {
	if format == "" {
		format = FormatLogfmt
		if isTerminal(w) {
			format = FormatTerminal
		}
	}
	switch strings.ToLower(format) {
	case FormatLogfmt:
		return log.NewLogger(log.LogfmtHandlerWithLevel(w, lvl)), nil
	case FormatTerminal:
		return log.NewLogger(log.NewTerminalHandlerWithLevel(w, lvl, isTerminal(w))), nil
	case FormatJSON:
		return log.NewLogger(log.JSONHandlerWithLevel(w, lvl)), nil
	default:
		return nil, fmt.Errorf("unrecognized log format %q", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ParseLevel accepts the geth level names, trace and crit included.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return log.LevelTrace, nil
	case "crit":
		return log.LevelCrit, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unrecognized log level %q", s)
	}
	return lvl, nil
}

// LoggingWriter is a simple util to wrap a logger,
// and expose an io Writer interface,
// for the program running within the VM to write to.
type LoggingWriter struct {
	Name string
	Log  log.Logger
}

func logAsText(b string) bool {
	for _, c := range b {
		if (c < 0x20 || c >= 0x7F) && (c != '\n' && c != '\t') {
			return false
		}
	}
	return true
}

func (lw *LoggingWriter) Write(b []byte) (int, error) {
	t := string(b)
	if logAsText(t) {
		lw.Log.Info(lw.Name, "text", strings.TrimSuffix(t, "\n"))
	} else {
		lw.Log.Info(lw.Name, "data", hexutil.Bytes(b))
	}
	return len(b), nil
}

// HexU32 to lazy-format integer attributes for logging
type HexU32 uint32

func (v HexU32) String() string {
	return fmt.Sprintf("%08x", uint32(v))
}

func (v HexU32) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

type HexU64 uint64

func (v HexU64) String() string {
	return fmt.Sprintf("%016x", uint64(v))
}

func (v HexU64) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
