// Package schedule holds deferred light actions and fires them when due.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/light-controller/internal/device"
)

// Action is what a timer does to its light.
type Action string

const (
	ActionOn         Action = "on"
	ActionOff        Action = "off"
	ActionBrightness Action = "brightness"
)

// Repeat is a timer's recurrence rule.
type Repeat string

const (
	RepeatOnce     Repeat = "once"
	RepeatDaily    Repeat = "daily"
	RepeatWeekdays Repeat = "weekdays"
	RepeatWeekends Repeat = "weekends"
)

// DefaultLevel is the brightness used when a brightness timer gives none.
const DefaultLevel = 100.0

func parseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionOn, ActionOff, ActionBrightness:
		return a, nil
	}
	return "", fmt.Errorf("%w: invalid action %q, must be on, off, or brightness", device.ErrValidation, s)
}

func parseRepeat(s string) (Repeat, error) {
	if strings.TrimSpace(s) == "" {
		return RepeatOnce, nil
	}
	switch r := Repeat(strings.ToLower(strings.TrimSpace(s))); r {
	case RepeatOnce, RepeatDaily, RepeatWeekdays, RepeatWeekends:
		return r, nil
	}
	return "", fmt.Errorf("%w: invalid repeat %q, must be once, daily, weekdays, or weekends", device.ErrValidation, s)
}

// Timer is a snapshot of one scheduled action.
type Timer struct {
	ID         string    `json:"id"`
	DeviceID   int       `json:"light_id"`
	DeviceName string    `json:"light_name"`
	Action     Action    `json:"action"`
	Level      *float64  `json:"brightness"`
	Next       time.Time `json:"time"`
	Repeat     Repeat    `json:"repeat"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Recurring reports whether the timer survives firing.
func (t Timer) Recurring() bool {
	return t.Repeat != RepeatOnce
}

// CreateRequest carries user input for Scheduler.Create. Time is either an
// ISO-8601 timestamp or a wall-clock HH:MM[:SS] for today.
type CreateRequest struct {
	DeviceID int      `json:"light_id"`
	Action   string   `json:"action"`
	Time     string   `json:"time"`
	Level    *float64 `json:"brightness,omitempty"`
	Repeat   string   `json:"repeat,omitempty"`
}

// Firing reports the outcome of one timer executed by a Tick.
type Firing struct {
	Timer Timer     `json:"timer"`
	At    time.Time `json:"at"`
	Err   error     `json:"-"`
}
