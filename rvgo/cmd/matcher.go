package cmd

import (
	"fmt"
	"strconv"
	"strings"
)

// StepMatcher reports whether any instruction count in (from, to] matches.
// The run loop only regains control at syscalls, so matchers test the range
// retired since the previous check instead of a single step.
type StepMatcher func(from, to uint64) bool

// StepMatcherFlag is a cli.Generic value: "never", "always", "=N" for instruction N,
// or "%N" for every multiple of N.
type StepMatcherFlag struct {
	repr    string
	matcher StepMatcher
}

func MustStepMatcherFlag(pattern string) *StepMatcherFlag {
	out := new(StepMatcherFlag)
	if err := out.Set(pattern); err != nil {
		panic(err)
	}
	return out
}

func (m *StepMatcherFlag) Set(value string) error {
	m.repr = value
	switch {
	case value == "" || value == "never":
		m.matcher = func(from, to uint64) bool { return false }
	case value == "always":
		m.matcher = func(from, to uint64) bool { return true }
	case strings.HasPrefix(value, "="):
		when, err := strconv.ParseUint(value[1:], 0, 64)
		if err != nil {
			return fmt.Errorf("failed to parse step number: %w", err)
		}
		m.matcher = func(from, to uint64) bool {
			return from < when && when <= to
		}
	case strings.HasPrefix(value, "%"):
		when, err := strconv.ParseUint(value[1:], 0, 64)
		if err != nil {
			return fmt.Errorf("failed to parse step interval: %w", err)
		}
		if when == 0 {
			return fmt.Errorf("step interval must not be zero")
		}
		m.matcher = func(from, to uint64) bool {
			return to/when > from/when
		}
	default:
		return fmt.Errorf("unrecognized step matcher: %q", value)
	}
	return nil
}

func (m *StepMatcherFlag) String() string {
	return m.repr
}

func (m *StepMatcherFlag) Matcher() StepMatcher {
	if m.matcher == nil {
		return func(from, to uint64) bool { return false }
	}
	return m.matcher
}

func (m *StepMatcherFlag) Clone() any {
	var out StepMatcherFlag
	if err := out.Set(m.repr); err != nil {
		panic(fmt.Errorf("invalid repr: %w", err))
	}
	return &out
}
