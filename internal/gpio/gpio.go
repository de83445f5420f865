// Package gpio provides light output control with hardware abstraction.
// The chip implementation drives the Linux GPIO character device.
// The simulation implementation keeps all line state in memory.
package gpio

import (
	"errors"
	"fmt"
)

// Backend drives output lines. Discrete lines are plain high/low outputs;
// continuous lines carry a duty cycle in percent (0-100).
type Backend interface {
	// ConfigureDiscrete requests line as an output at the given initial state.
	ConfigureDiscrete(line int, initial bool) error

	// ConfigureContinuous requests line as a PWM output at freqHz with the
	// given initial duty cycle.
	ConfigureContinuous(line int, freqHz, initialPercent float64) error

	WriteDiscrete(line int, on bool) error
	WriteContinuous(line int, percent float64) error
	ReadDiscrete(line int) (bool, error)
	ReadContinuous(line int) (float64, error)

	// Release drives the line low and returns it to the kernel.
	Release(line int) error

	// Mode reports ModeHardware or ModeSimulation.
	Mode() string

	// Close releases any remaining lines and the chip itself.
	Close() error
}

// Backend selection modes.
const (
	ModeAuto       = "auto"
	ModeHardware   = "hardware"
	ModeSimulation = "simulation"
)

// DefaultChip is the Raspberry Pi header GPIO chip.
const DefaultChip = "gpiochip0"

// DefaultFrequency is the PWM frequency used when none is configured.
const DefaultFrequency = 1000.0

var (
	// ErrNotConfigured is returned for operations on a line that was never configured.
	ErrNotConfigured = errors.New("gpio: line not configured")

	// ErrWrongMode is returned when a discrete op targets a PWM line or vice versa.
	ErrWrongMode = errors.New("gpio: line configured for another mode")

	// ErrUnsupported is returned by the hardware backend on non-Linux platforms.
	ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")
)

// Logger is the subset of logging used by Open.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Open selects a backend. ModeAuto probes chip and falls back to simulation
// when the hardware is unavailable; ModeHardware fails instead.
func Open(mode, chip string, logger Logger) (Backend, error) {
	if chip == "" {
		chip = DefaultChip
	}
	switch mode {
	case ModeSimulation:
		logger.Info("gpio running in simulation mode")
		return NewSimBackend(), nil
	case ModeHardware:
		b, err := NewChipBackend(chip)
		if err != nil {
			return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
		}
		logger.Info("gpio running in hardware mode", "chip", chip)
		return b, nil
	case ModeAuto, "":
		if err := probeChip(chip); err != nil {
			logger.Warn("gpio hardware not available, using simulation", "chip", chip, "error", err)
			return NewSimBackend(), nil
		}
		b, err := NewChipBackend(chip)
		if err != nil {
			logger.Warn("gpio chip open failed, using simulation", "chip", chip, "error", err)
			return NewSimBackend(), nil
		}
		logger.Info("gpio hardware detected", "chip", chip)
		return b, nil
	default:
		return nil, fmt.Errorf("gpio: unknown backend mode %q", mode)
	}
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
