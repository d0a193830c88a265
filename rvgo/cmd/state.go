package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	cannon "github.com/ethereum-optimism/optimism/cannon/cmd"
	"github.com/ethereum-optimism/optimism/op-service/ioutil"

	"github.com/rvemu/rvemu/rvgo/fast"
)

var OutFilePerm = os.FileMode(0o644)

func isBinaryState(path string) bool {
	return strings.HasSuffix(path, ".bin")
}

// LoadState reads a machine written by WriteState. Paths ending in .bin use the binary
// encoding, anything else is JSON, gzipped when the path ends in .gz.
// Both decode onto NewMachine, so settings that are not saved keep its defaults.
func LoadState(path string) (*fast.Machine, error) {
	m := fast.NewMachine()
	if !isBinaryState(path) {
		f, err := ioutil.OpenDecompressed(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open state %q: %w", path, err)
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(m); err != nil {
			return nil, fmt.Errorf("failed to load state %q: %w", path, err)
		}
		if m.State == nil || m.Memory == nil {
			return nil, fmt.Errorf("state %q is incomplete", path)
		}
		return m, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := m.Deserialize(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("failed to decode state %q: %w", path, err)
	}
	return m, nil
}

func WriteState(path string, m *fast.Machine) error {
	if !isBinaryState(path) {
		return cannon.WriteJSON[*fast.Machine](path, m)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, OutFilePerm)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := m.Serialize(w); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
