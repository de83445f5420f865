// Package device owns the configured lights: their descriptors, cached state,
// and every write made to them through the output backend.
package device

import "strings"

// Kind distinguishes on/off lights from dimmable ones.
type Kind string

const (
	// KindDiscrete is a binary on/off output.
	KindDiscrete Kind = "discrete"
	// KindContinuous is a PWM output with a level in [0,100].
	KindContinuous Kind = "continuous"
)

// ParseKind converts a configuration literal to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(s)) {
	case KindDiscrete:
		return KindDiscrete, true
	case KindContinuous:
		return KindContinuous, true
	}
	return "", false
}

// Config describes a light at configuration time.
type Config struct {
	ID        int
	Name      string
	Pin       int
	Kind      Kind
	Frequency float64 // PWM Hz; continuous only
}

// Device is a point-in-time snapshot of a light. It is a value type and safe
// to use after the registry lock is released.
//
// For continuous lights State is always Level > 0.
type Device struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Pin       int     `json:"pin"`
	Kind      Kind    `json:"type"`
	State     bool    `json:"state"`
	Level     float64 `json:"brightness"`
	Frequency float64 `json:"frequency,omitempty"`
}

// StateString returns "ON" or "OFF".
func (d Device) StateString() string {
	if d.State {
		return "ON"
	}
	return "OFF"
}
