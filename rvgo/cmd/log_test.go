package cmd

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", log.LevelTrace},
		{"debug", log.LevelDebug},
		{"INFO", log.LevelInfo},
		{"warn", log.LevelWarn},
		{"error", log.LevelError},
		{"crit", log.LevelCrit},
	}
	for _, tc := range tests {
		lvl, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, lvl, tc.in)
	}
	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	l, err := Logger(&buf, log.LevelInfo, "")
	require.NoError(t, err)
	l.Info("hello", "pc", HexU64(0x10000))
	l.Debug("hidden")
	require.Contains(t, buf.String(), "msg=hello")
	require.Contains(t, buf.String(), "pc=0000000000010000")
	require.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	l, err = Logger(&buf, log.LevelInfo, FormatJSON)
	require.NoError(t, err)
	l.Info("hello", "insn", HexU32(0x13))
	require.Contains(t, buf.String(), `"msg":"hello"`)
	require.Contains(t, buf.String(), `"insn":"00000013"`)

	_, err = Logger(&buf, log.LevelInfo, "xml")
	require.Error(t, err)
}

func TestLoggingWriter(t *testing.T) {
	var buf bytes.Buffer
	l, err := Logger(&buf, log.LevelInfo, FormatLogfmt)
	require.NoError(t, err)
	w := &LoggingWriter{Name: "guest", Log: l}

	n, err := w.Write([]byte("plain text\n"))
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Contains(t, buf.String(), `text="plain text"`)

	buf.Reset()
	_, err = w.Write([]byte{0x00, 0xff})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "data=0x00ff")
}
