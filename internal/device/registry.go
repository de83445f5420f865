package device

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sweeney/light-controller/internal/gpio"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier is told about every successful state change.
type Notifier interface {
	DeviceChanged(d Device)
}

// entry is the registry's record of one light. mu serializes backend writes
// and cache updates for the light; gen counts writes so an in-flight fade can
// tell that something newer has taken over.
type entry struct {
	mu  sync.Mutex
	dev Device
	gen uint64
}

// Registry is the single source of truth for what each light is doing.
// The backend is authoritative for current values; the cached Device is
// refreshed from it on every read.
//
// All public methods are safe for concurrent use.
type Registry struct {
	backend gpio.Backend

	mu      sync.RWMutex
	devices map[int]*entry

	fader    *Fader
	logger   Logger
	notifier Notifier
}

// NewRegistry creates an empty registry writing through backend.
func NewRegistry(backend gpio.Backend) *Registry {
	r := &Registry{
		backend: backend,
		devices: make(map[int]*entry),
		logger:  noopLogger{},
	}
	r.fader = newFader(r)
	return r
}

// SetLogger sets the logger for the registry and its fader.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetNotifier registers n to receive state changes. Call before serving requests.
func (r *Registry) SetNotifier(n Notifier) {
	r.notifier = n
}

// Mode reports whether the backend drives hardware or a simulation.
func (r *Registry) Mode() string {
	return r.backend.Mode()
}

// Configure sets up a light on the backend. Configuring an existing id with
// the same kind is a no-op; a different kind fails with ErrConfiguration.
func (r *Registry) Configure(cfg Config) error {
	switch cfg.Kind {
	case KindDiscrete:
	case KindContinuous:
		if cfg.Frequency == 0 {
			cfg.Frequency = gpio.DefaultFrequency
		}
		if cfg.Frequency < 0 || math.IsNaN(cfg.Frequency) {
			return fmt.Errorf("%w: light %d: frequency must be positive", ErrValidation, cfg.ID)
		}
	default:
		return fmt.Errorf("%w: light %d: unknown kind %q", ErrValidation, cfg.ID, cfg.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.devices[cfg.ID]; ok {
		if existing.dev.Kind != cfg.Kind {
			return fmt.Errorf("%w: light %d already configured as %s", ErrConfiguration, cfg.ID, existing.dev.Kind)
		}
		return nil
	}
	for _, e := range r.devices {
		if e.dev.Pin == cfg.Pin {
			return fmt.Errorf("%w: pin %d already used by light %d", ErrConfiguration, cfg.Pin, e.dev.ID)
		}
	}

	var err error
	if cfg.Kind == KindContinuous {
		err = r.backend.ConfigureContinuous(cfg.Pin, cfg.Frequency, 0)
	} else {
		err = r.backend.ConfigureDiscrete(cfg.Pin, false)
	}
	if err != nil {
		return fmt.Errorf("%w: configure light %d on pin %d: %w", ErrBackend, cfg.ID, cfg.Pin, err)
	}

	dev := Device{
		ID:   cfg.ID,
		Name: cfg.Name,
		Pin:  cfg.Pin,
		Kind: cfg.Kind,
	}
	if cfg.Kind == KindContinuous {
		dev.Frequency = cfg.Frequency
	}
	r.devices[cfg.ID] = &entry{dev: dev}
	r.logger.Info("light configured", "id", cfg.ID, "name", cfg.Name, "pin", cfg.Pin, "kind", string(cfg.Kind))
	return nil
}

// Lookup returns the cached snapshot of a light without touching the backend.
func (r *Registry) Lookup(id int) (Device, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Device{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dev, nil
}

// State returns a snapshot of a light after re-reading it from the backend.
func (r *Registry) State(id int) (Device, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Device{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := r.syncLocked(e); err != nil {
		return e.dev, err
	}
	return e.dev, nil
}

// List returns every light ordered by id, each re-read from the backend.
// Lights whose read fails are returned with their cached state and the
// failures are joined into the error.
func (r *Registry) List() ([]Device, error) {
	var errs []error
	ids := r.ids()
	devices := make([]Device, 0, len(ids))
	for _, id := range ids {
		d, err := r.State(id)
		if err != nil {
			errs = append(errs, err)
		}
		devices = append(devices, d)
	}
	return devices, errors.Join(errs...)
}

// SetDiscrete turns a light on or off. Continuous lights go to 100 or 0.
func (r *Registry) SetDiscrete(id int, on bool) (Device, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Device{}, err
	}

	e.mu.Lock()
	e.gen++
	err = r.setOnLocked(e, on)
	d := e.dev
	e.mu.Unlock()

	if err != nil {
		return d, err
	}
	r.notify(d)
	return d, nil
}

// SetLevel sets the brightness of a continuous light. percent must be in [0,100].
func (r *Registry) SetLevel(id int, percent float64) (Device, error) {
	if err := validatePercent(percent); err != nil {
		return Device{}, err
	}
	e, err := r.lookup(id)
	if err != nil {
		return Device{}, err
	}

	e.mu.Lock()
	if e.dev.Kind != KindContinuous {
		e.mu.Unlock()
		return Device{}, fmt.Errorf("%w: light %d does not support brightness control", ErrTypeMismatch, id)
	}
	e.gen++
	err = r.writeLevelLocked(e, percent)
	d := e.dev
	e.mu.Unlock()

	if err != nil {
		return d, err
	}
	r.notify(d)
	return d, nil
}

// Toggle flips a light and returns its new state. A continuous light goes to
// 100 if it was at 0, otherwise to 0. The read and the write happen under
// the light's lock.
func (r *Registry) Toggle(id int) (bool, error) {
	e, err := r.lookup(id)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	e.gen++
	if err := r.syncLocked(e); err != nil {
		e.mu.Unlock()
		return false, err
	}
	err = r.setOnLocked(e, !e.dev.State)
	d := e.dev
	e.mu.Unlock()

	if err != nil {
		return d.State, err
	}
	r.notify(d)
	return d.State, nil
}

// AllOn turns every light on. Failures do not stop the remaining lights;
// they are joined into the returned error.
func (r *Registry) AllOn() error {
	return r.setAll(true)
}

// AllOff turns every light off, with the same failure policy as AllOn.
func (r *Registry) AllOff() error {
	return r.setAll(false)
}

func (r *Registry) setAll(on bool) error {
	var errs []error
	for _, id := range r.ids() {
		if _, err := r.SetDiscrete(id, on); err != nil {
			r.logger.Error("set light failed", "id", id, "on", on, "error", err)
			errs = append(errs, err)
		}
	}
	state := "OFF"
	if on {
		state = "ON"
	}
	r.logger.Info("all lights switched", "state", state, "failures", len(errs))
	return errors.Join(errs...)
}

// Fade starts a linear transition of a continuous light to target percent.
// See Fader.Start.
func (r *Registry) Fade(id int, target float64, duration time.Duration, steps int) (*Transition, error) {
	return r.fader.Start(id, target, duration, steps)
}

// Release stops running fades and releases every light on the backend.
// Backend errors are logged and do not prevent the remaining releases.
func (r *Registry) Release() {
	r.fader.stopAll()

	for _, id := range r.ids() {
		e, err := r.lookup(id)
		if err != nil {
			continue
		}
		e.mu.Lock()
		pin := e.dev.Pin
		e.gen++
		e.mu.Unlock()

		if err := r.backend.Release(pin); err != nil {
			r.logger.Warn("release failed", "id", id, "pin", pin, "error", err)
			continue
		}
		r.logger.Debug("light released", "id", id, "pin", pin)
	}
	r.logger.Info("gpio cleanup completed", "mode", r.backend.Mode())
}

func (r *Registry) lookup(id int) (*entry, error) {
	r.mu.RLock()
	e, ok := r.devices[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: light %d", ErrNotFound, id)
	}
	return e, nil
}

func (r *Registry) ids() []int {
	r.mu.RLock()
	ids := make([]int, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// syncLocked refreshes e.dev from the backend. e.mu must be held.
func (r *Registry) syncLocked(e *entry) error {
	if e.dev.Kind == KindContinuous {
		level, err := r.backend.ReadContinuous(e.dev.Pin)
		if err != nil {
			return fmt.Errorf("%w: read light %d: %w", ErrBackend, e.dev.ID, err)
		}
		e.dev.Level = level
		e.dev.State = level > 0
		return nil
	}
	on, err := r.backend.ReadDiscrete(e.dev.Pin)
	if err != nil {
		return fmt.Errorf("%w: read light %d: %w", ErrBackend, e.dev.ID, err)
	}
	e.dev.State = on
	return nil
}

// setOnLocked applies boolean semantics to either kind. e.mu must be held.
func (r *Registry) setOnLocked(e *entry, on bool) error {
	if e.dev.Kind == KindContinuous {
		level := 0.0
		if on {
			level = 100
		}
		return r.writeLevelLocked(e, level)
	}
	if err := r.backend.WriteDiscrete(e.dev.Pin, on); err != nil {
		return fmt.Errorf("%w: write light %d: %w", ErrBackend, e.dev.ID, err)
	}
	e.dev.State = on
	return nil
}

// writeLevelLocked writes a continuous level, then updates the cache. e.mu must be held.
func (r *Registry) writeLevelLocked(e *entry, level float64) error {
	if err := r.backend.WriteContinuous(e.dev.Pin, level); err != nil {
		return fmt.Errorf("%w: write light %d: %w", ErrBackend, e.dev.ID, err)
	}
	e.dev.Level = level
	e.dev.State = level > 0
	return nil
}

func (r *Registry) notify(d Device) {
	if r.notifier != nil {
		r.notifier.DeviceChanged(d)
	}
}

func validatePercent(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return fmt.Errorf("%w: brightness must be between 0 and 100, got %v", ErrValidation, p)
	}
	return nil
}
