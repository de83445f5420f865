//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "light-controller"

// ChipBackend drives outputs on actual hardware using the Linux GPIO character device.
// Continuous lines are driven by a software PWM goroutine per line.
type ChipBackend struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
	pwms  map[int]*softPWM
}

// NewChipBackend opens the named GPIO chip (e.g. "gpiochip0").
func NewChipBackend(name string) (*ChipBackend, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &ChipBackend{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
		pwms:  make(map[int]*softPWM),
	}, nil
}

func probeChip(name string) error {
	return gpiocdev.IsChip(name)
}

// ConfigureDiscrete requests line as an output. Reconfiguring an already
// requested discrete line only updates its value.
func (b *ChipBackend) ConfigureDiscrete(line int, initial bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pwms[line]; ok {
		return fmt.Errorf("%w: %d", ErrWrongMode, line)
	}
	if l, ok := b.lines[line]; ok {
		return l.SetValue(boolValue(initial))
	}
	l, err := b.chip.RequestLine(line, gpiocdev.AsOutput(boolValue(initial)))
	if err != nil {
		return fmt.Errorf("request pin %d: %w", line, err)
	}
	b.lines[line] = l
	return nil
}

// ConfigureContinuous requests line as an output and starts software PWM on it.
func (b *ChipBackend) ConfigureContinuous(line int, freqHz, initialPercent float64) error {
	if freqHz <= 0 {
		return fmt.Errorf("gpio: invalid PWM frequency %v", freqHz)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pwms[line]; ok {
		p.set(initialPercent)
		return nil
	}
	if _, ok := b.lines[line]; ok {
		return fmt.Errorf("%w: %d", ErrWrongMode, line)
	}
	l, err := b.chip.RequestLine(line, gpiocdev.AsOutput(0))
	if err != nil {
		return fmt.Errorf("request PWM pin %d: %w", line, err)
	}
	b.lines[line] = l
	b.pwms[line] = startSoftPWM(l, freqHz, initialPercent)
	return nil
}

// WriteDiscrete drives a discrete line high or low.
func (b *ChipBackend) WriteDiscrete(line int, on bool) error {
	l, err := b.output(line)
	if err != nil {
		return err
	}
	if err := l.SetValue(boolValue(on)); err != nil {
		return fmt.Errorf("write pin %d: %w", line, err)
	}
	return nil
}

// WriteContinuous changes the duty cycle of a PWM line.
func (b *ChipBackend) WriteContinuous(line int, percent float64) error {
	p, err := b.pwm(line)
	if err != nil {
		return err
	}
	if err := p.err(); err != nil {
		return fmt.Errorf("pwm pin %d: %w", line, err)
	}
	p.set(percent)
	return nil
}

// ReadDiscrete reads back the value of a discrete output line.
func (b *ChipBackend) ReadDiscrete(line int) (bool, error) {
	l, err := b.output(line)
	if err != nil {
		return false, err
	}
	v, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", line, err)
	}
	return v == 1, nil
}

// ReadContinuous returns the duty cycle the PWM goroutine is generating.
func (b *ChipBackend) ReadContinuous(line int) (float64, error) {
	p, err := b.pwm(line)
	if err != nil {
		return 0, err
	}
	return p.duty(), nil
}

// Release drives the line low, then reconfigures it to input with pull-down
// (matching Pi boot defaults) before closing it.
func (b *ChipBackend) Release(line int) error {
	b.mu.Lock()
	l, ok := b.lines[line]
	p, isPWM := b.pwms[line]
	delete(b.lines, line)
	delete(b.pwms, line)
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrNotConfigured, line)
	}
	if isPWM {
		p.stop()
	}

	var errs []error
	if err := l.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive pin %d low: %w", line, err))
	}
	if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", line, err))
	}
	if err := l.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", line, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("release errors: %v", errs)
	}
	return nil
}

// Mode returns ModeHardware.
func (b *ChipBackend) Mode() string {
	return ModeHardware
}

// Close releases every remaining line and closes the chip.
func (b *ChipBackend) Close() error {
	b.mu.Lock()
	lines := make([]int, 0, len(b.lines))
	for line := range b.lines {
		lines = append(lines, line)
	}
	b.mu.Unlock()

	var errs []error
	for _, line := range lines {
		if err := b.Release(line); err != nil {
			errs = append(errs, err)
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (b *ChipBackend) output(line int) (*gpiocdev.Line, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pwms[line]; ok {
		return nil, fmt.Errorf("%w: %d", ErrWrongMode, line)
	}
	if l, ok := b.lines[line]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrNotConfigured, line)
}

func (b *ChipBackend) pwm(line int) (*softPWM, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pwms[line]; ok {
		return p, nil
	}
	if _, ok := b.lines[line]; ok {
		return nil, fmt.Errorf("%w: %d", ErrWrongMode, line)
	}
	return nil, fmt.Errorf("%w: %d", ErrNotConfigured, line)
}

func boolValue(on bool) int {
	if on {
		return 1
	}
	return 0
}
