package gpio

import (
	"fmt"
	"sync"
)

// SimBackend keeps line state in memory. It is used when no GPIO hardware is
// present and as the backend in tests.
type SimBackend struct {
	mu       sync.Mutex
	lines    map[int]*simLine
	writeErr map[int]error

	// Released records lines passed to Release, in call order.
	Released []int

	// Closed tracks if Close was called.
	Closed bool
}

type simLine struct {
	pwm     bool
	freq    float64
	on      bool
	percent float64
}

// NewSimBackend creates an empty simulation backend.
func NewSimBackend() *SimBackend {
	return &SimBackend{
		lines:    make(map[int]*simLine),
		writeErr: make(map[int]error),
	}
}

// FailWrites makes every subsequent write and release on line return err.
// Passing nil clears the failure.
func (s *SimBackend) FailWrites(line int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.writeErr, line)
		return
	}
	s.writeErr[line] = err
}

// ConfigureDiscrete records line as a discrete output.
func (s *SimBackend) ConfigureDiscrete(line int, initial bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line] = &simLine{on: initial}
	return nil
}

// ConfigureContinuous records line as a PWM output.
func (s *SimBackend) ConfigureContinuous(line int, freqHz, initialPercent float64) error {
	if freqHz <= 0 {
		return fmt.Errorf("gpio: invalid PWM frequency %v", freqHz)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line] = &simLine{pwm: true, freq: freqHz, percent: clampPercent(initialPercent)}
	return nil
}

// WriteDiscrete sets a discrete line.
func (s *SimBackend) WriteDiscrete(line int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lookup(line, false)
	if err != nil {
		return err
	}
	if err := s.writeErr[line]; err != nil {
		return err
	}
	l.on = on
	return nil
}

// WriteContinuous sets the duty cycle of a PWM line, clamped to [0,100].
func (s *SimBackend) WriteContinuous(line int, percent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lookup(line, true)
	if err != nil {
		return err
	}
	if err := s.writeErr[line]; err != nil {
		return err
	}
	l.percent = clampPercent(percent)
	return nil
}

// ReadDiscrete returns the last written state of a discrete line.
func (s *SimBackend) ReadDiscrete(line int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lookup(line, false)
	if err != nil {
		return false, err
	}
	return l.on, nil
}

// ReadContinuous returns the last written duty cycle of a PWM line.
func (s *SimBackend) ReadContinuous(line int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lookup(line, true)
	if err != nil {
		return 0, err
	}
	return l.percent, nil
}

// Frequency returns the configured PWM frequency of line.
func (s *SimBackend) Frequency(line int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lookup(line, true)
	if err != nil {
		return 0, err
	}
	return l.freq, nil
}

// Release forgets line. The release is recorded even when it fails.
func (s *SimBackend) Release(line int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Released = append(s.Released, line)
	if err := s.writeErr[line]; err != nil {
		return err
	}
	if _, ok := s.lines[line]; !ok {
		return fmt.Errorf("%w: %d", ErrNotConfigured, line)
	}
	delete(s.lines, line)
	return nil
}

// Mode returns ModeSimulation.
func (s *SimBackend) Mode() string {
	return ModeSimulation
}

// Close marks the backend as closed.
func (s *SimBackend) Close() error {
	s.mu.Lock()
	s.Closed = true
	s.mu.Unlock()
	return nil
}

func (s *SimBackend) lookup(line int, pwm bool) (*simLine, error) {
	l, ok := s.lines[line]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotConfigured, line)
	}
	if l.pwm != pwm {
		return nil, fmt.Errorf("%w: %d", ErrWrongMode, line)
	}
	return l, nil
}
