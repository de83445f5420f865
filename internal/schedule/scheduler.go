package schedule

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/light-controller/internal/device"
)

// DefaultPollInterval is how often the evaluator checks for due timers.
const DefaultPollInterval = 10 * time.Second

// Devices is the part of the device registry the scheduler drives.
type Devices interface {
	Lookup(id int) (device.Device, error)
	SetDiscrete(id int, on bool) (device.Device, error)
	SetLevel(id int, percent float64) (device.Device, error)
}

// Logger defines the logging interface used by the Scheduler.
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

// Notifier is told about every timer the evaluator executes.
type Notifier interface {
	TimerFired(f Firing)
}

// Scheduler owns the timer set. The evaluator takes the lock only to pick
// due timers; light writes happen after it is released, so API calls never
// wait on hardware.
type Scheduler struct {
	devices Devices
	now     func() time.Time

	mu     sync.Mutex
	timers map[string]*Timer

	logger   Logger
	notifier Notifier
}

// NewScheduler creates an empty scheduler. now is the clock used by Create
// and Run; pass time.Now outside tests.
func NewScheduler(devices Devices, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		devices: devices,
		now:     now,
		timers:  make(map[string]*Timer),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetNotifier registers n to receive firings. Call before Run.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// Create validates req and adds an active timer.
//
// A time that is not strictly in the future is rejected for once timers.
// Recurring timers are moved forward by one calendar day instead, whatever
// their repeat class, so "07:00 daily" entered at 08:00 first fires
// tomorrow. The repeat rules only apply from the first firing on.
func (s *Scheduler) Create(req CreateRequest) (Timer, error) {
	now := s.now()

	action, err := parseAction(req.Action)
	if err != nil {
		return Timer{}, err
	}
	repeat, err := parseRepeat(req.Repeat)
	if err != nil {
		return Timer{}, err
	}
	next, err := ParseTime(req.Time, now)
	if err != nil {
		return Timer{}, err
	}

	dev, err := s.devices.Lookup(req.DeviceID)
	if err != nil {
		return Timer{}, err
	}

	var level *float64
	if action == ActionBrightness {
		if dev.Kind != device.KindContinuous {
			return Timer{}, fmt.Errorf("%w: light %d does not support brightness control", device.ErrTypeMismatch, dev.ID)
		}
		l := DefaultLevel
		if req.Level != nil {
			l = *req.Level
		}
		if math.IsNaN(l) || l < 0 || l > 100 {
			return Timer{}, fmt.Errorf("%w: brightness must be between 0 and 100, got %v", device.ErrValidation, l)
		}
		level = &l
	}

	if !next.After(now) {
		if repeat == RepeatOnce {
			return Timer{}, fmt.Errorf("%w: time must be in the future", device.ErrValidation)
		}
		next = next.AddDate(0, 0, 1)
	}

	t := &Timer{
		ID:         uuid.New().String(),
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		Action:     action,
		Level:      level,
		Next:       next,
		Repeat:     repeat,
		Active:     true,
		CreatedAt:  now,
	}

	s.mu.Lock()
	s.timers[t.ID] = t
	s.mu.Unlock()

	s.logger.Info("timer created", "timer_id", t.ID, "light_id", t.DeviceID, "light", t.DeviceName,
		"action", string(t.Action), "at", t.Next.Format(time.RFC3339), "repeat", string(t.Repeat))
	return copyTimer(t), nil
}

// List returns every timer ordered by next fire time, then creation time.
func (s *Scheduler) List() []Timer {
	s.mu.Lock()
	out := make([]Timer, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, copyTimer(t))
	}
	s.mu.Unlock()

	sortTimers(out)
	return out
}

// Get returns one timer.
func (s *Scheduler) Get(id string) (Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return Timer{}, fmt.Errorf("%w: timer %s", device.ErrNotFound, id)
	}
	return copyTimer(t), nil
}

// Toggle flips a timer between active and inactive. Its next fire time is kept.
func (s *Scheduler) Toggle(id string) (Timer, error) {
	s.mu.Lock()
	t, ok := s.timers[id]
	if !ok {
		s.mu.Unlock()
		return Timer{}, fmt.Errorf("%w: timer %s", device.ErrNotFound, id)
	}
	t.Active = !t.Active
	out := copyTimer(t)
	s.mu.Unlock()

	s.logger.Info("timer toggled", "timer_id", id, "active", out.Active)
	return out, nil
}

// Delete removes a timer.
func (s *Scheduler) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: timer %s", device.ErrNotFound, id)
	}
	s.logger.Info("timer deleted", "timer_id", id)
	return nil
}

// ActiveCount returns the number of active timers.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.Active {
			n++
		}
	}
	return n
}

// Tick runs one evaluation pass at now. Every active timer whose next fire
// time is at or before now is executed once. Once timers are removed;
// recurring timers are advanced past now before any light is touched.
// Actions run in next-fire order and a failing action does not stop the
// others. The returned report lists every executed timer.
func (s *Scheduler) Tick(now time.Time) []Firing {
	s.mu.Lock()
	var due []Timer
	for id, t := range s.timers {
		if !t.Active || t.Next.After(now) {
			continue
		}
		due = append(due, copyTimer(t))
		if t.Repeat == RepeatOnce {
			delete(s.timers, id)
			continue
		}
		t.Next = rollForward(t.Next, t.Repeat, now)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return nil
	}
	sortTimers(due)

	firings := make([]Firing, 0, len(due))
	for _, t := range due {
		f := Firing{Timer: t, At: now, Err: s.execute(t)}
		if f.Err != nil {
			s.logger.Error("timer action failed", "timer_id", t.ID, "light_id", t.DeviceID, "action", string(t.Action), "error", f.Err)
		} else {
			s.logger.Info("timer executed", "timer_id", t.ID, "light_id", t.DeviceID, "light", t.DeviceName, "action", string(t.Action))
		}
		if s.notifier != nil {
			s.notifier.TimerFired(f)
		}
		firings = append(firings, f)
	}
	return firings
}

// execute applies one timer's action. A panic in the device layer is
// returned as an error so the remaining timers in the pass still run.
func (s *Scheduler) execute(t Timer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("timer %s panicked: %v", t.ID, r)
		}
	}()

	switch t.Action {
	case ActionOn:
		_, err = s.devices.SetDiscrete(t.DeviceID, true)
	case ActionOff:
		_, err = s.devices.SetDiscrete(t.DeviceID, false)
	case ActionBrightness:
		level := DefaultLevel
		if t.Level != nil {
			level = *t.Level
		}
		_, err = s.devices.SetLevel(t.DeviceID, level)
	default:
		err = fmt.Errorf("%w: unknown action %q", device.ErrValidation, t.Action)
	}
	return err
}

// Run evaluates timers on every tick until ctx is done. A panicking pass is
// logged and the loop carries on.
func (s *Scheduler) Run(ctx context.Context, tick <-chan time.Time) {
	s.logger.Info("timer evaluator started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("timer evaluator stopped")
			return
		case <-tick:
			s.safeTick()
		}
	}
}

func (s *Scheduler) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("timer evaluation panicked", "panic", fmt.Sprint(r))
		}
	}()
	s.Tick(s.now())
}

func copyTimer(t *Timer) Timer {
	out := *t
	if t.Level != nil {
		l := *t.Level
		out.Level = &l
	}
	return out
}

func sortTimers(ts []Timer) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].Next.Equal(ts[j].Next) {
			return ts[i].Next.Before(ts[j].Next)
		}
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.Before(ts[j].CreatedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}
