package device

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Fade defaults used when the caller does not specify them.
const (
	DefaultFadeDuration = time.Second
	DefaultFadeSteps    = 50
	MaxFadeSteps        = 1000
)

// Transition tracks one running fade.
type Transition struct {
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Done is closed when the fade has finished, failed, or been superseded.
func (t *Transition) Done() <-chan struct{} {
	return t.done
}

// Err returns nil once the fade has reached its target, ErrSuperseded if
// another write took over, or the backend error that aborted it.
func (t *Transition) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the fade finishes and returns Err.
func (t *Transition) Wait() error {
	<-t.done
	return t.Err()
}

func (t *Transition) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// Fader ramps continuous lights linearly between levels. Each step is a
// short write under the light's lock; no lock is held while sleeping.
type Fader struct {
	reg *Registry

	// mu guards stopped and orders wg.Add against stopAll's wg.Wait.
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	quit    chan struct{}
}

func newFader(reg *Registry) *Fader {
	return &Fader{
		reg:  reg,
		quit: make(chan struct{}),
	}
}

// Start validates the request and launches the ramp in the background. The
// light moves from its current level to target in steps equally spaced
// writes over duration; the last write is exactly target. steps of 0 means
// DefaultFadeSteps and may not exceed MaxFadeSteps. Once the registry has
// been released Start fails with ErrSuperseded.
//
// A later write to the same light (direct or another fade) supersedes the
// ramp: its next step is skipped and the Transition reports ErrSuperseded.
func (f *Fader) Start(id int, target float64, duration time.Duration, steps int) (*Transition, error) {
	if err := validatePercent(target); err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: fade time must be positive", ErrValidation)
	}
	if steps == 0 {
		steps = DefaultFadeSteps
	}
	if steps < 0 || steps > MaxFadeSteps {
		return nil, fmt.Errorf("%w: steps must be between 1 and %d, got %d", ErrValidation, MaxFadeSteps, steps)
	}

	e, err := f.reg.lookup(id)
	if err != nil {
		return nil, err
	}

	if err := f.reserve(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.dev.Kind != KindContinuous {
		e.mu.Unlock()
		f.wg.Done()
		return nil, fmt.Errorf("%w: light %d does not support brightness control", ErrTypeMismatch, id)
	}
	if err := f.reg.syncLocked(e); err != nil {
		e.mu.Unlock()
		f.wg.Done()
		return nil, err
	}
	e.gen++
	gen := e.gen
	from := e.dev.Level
	e.mu.Unlock()

	t := &Transition{done: make(chan struct{})}
	go f.run(id, e, gen, from, target, duration, steps, t)

	f.reg.logger.Info("fade started", "id", id, "from", from, "to", target, "duration", duration.String(), "steps", steps)
	return t, nil
}

func (f *Fader) run(id int, e *entry, gen uint64, from, target float64, duration time.Duration, steps int, t *Transition) {
	defer f.wg.Done()

	stepSize := (target - from) / float64(steps)
	stepDelay := duration / time.Duration(steps)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for i := 0; i <= steps; i++ {
		level := from + stepSize*float64(i)
		if i == steps {
			level = target
		}

		if err := f.step(e, gen, level, i == steps); err != nil {
			if errors.Is(err, ErrSuperseded) {
				f.reg.logger.Debug("fade superseded", "id", id, "step", i)
			} else {
				f.reg.logger.Error("fade aborted", "id", id, "step", i, "error", err)
			}
			t.finish(err)
			return
		}

		if i == steps {
			break
		}
		timer.Reset(stepDelay)
		select {
		case <-timer.C:
		case <-f.quit:
			t.finish(fmt.Errorf("%w: shutting down", ErrSuperseded))
			return
		}
	}
	t.finish(nil)
}

// step writes one ramp level unless a newer write has taken the light.
func (f *Fader) step(e *entry, gen uint64, level float64, last bool) error {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return ErrSuperseded
	}
	err := f.reg.writeLevelLocked(e, level)
	d := e.dev
	e.mu.Unlock()

	if err != nil {
		return err
	}
	if last {
		f.reg.notify(d)
	}
	return nil
}

// reserve counts a new ramp in wg unless stopAll has begun.
func (f *Fader) reserve() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return fmt.Errorf("%w: shutting down", ErrSuperseded)
	}
	f.wg.Add(1)
	return nil
}

// stopAll aborts every running ramp and waits for them to exit. Ramps
// requested afterwards are refused.
func (f *Fader) stopAll() {
	f.mu.Lock()
	if !f.stopped {
		f.stopped = true
		close(f.quit)
	}
	f.mu.Unlock()
	f.wg.Wait()
}
