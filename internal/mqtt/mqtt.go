// Package mqtt publishes light, timer and system events with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/light-controller/internal/device"
	"github.com/sweeney/light-controller/internal/schedule"
)

// DefaultTopicPrefix is the root of every topic published by this process.
const DefaultTopicPrefix = "home/lights"

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

// Light is the retained state topic of one light.
func (t Topics) Light(id int) string {
	return fmt.Sprintf("%s/light/%d/state", t.prefix(), id)
}

// Timers is the topic timer firings are reported on.
func (t Topics) Timers() string {
	return t.prefix() + "/timers/fired"
}

// System is the topic for lifecycle events (startup, shutdown, heartbeat).
func (t Topics) System() string {
	return t.prefix() + "/system"
}

func (t Topics) prefix() string {
	p := strings.TrimRight(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishLight sends the current state of a light. Returns error if
	// publishing fails (should not fail the light operation).
	PublishLight(d device.Device, at time.Time) error

	// PublishTimer reports a timer that was executed.
	PublishTimer(f schedule.Firing) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Logger defines the logging interface used by this package.
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

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// LightPayload is the message published on a light's state topic.
type LightPayload struct {
	Light LightPayloadInner `json:"light"`
}

// LightPayloadInner contains the light state details.
type LightPayloadInner struct {
	Timestamp  string   `json:"timestamp"`
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	State      string   `json:"state"`
	Brightness *float64 `json:"brightness,omitempty"`
}

// FormatLightPayload creates the JSON payload for a light state change.
// Brightness is only present for continuous lights.
func FormatLightPayload(d device.Device, at time.Time) ([]byte, error) {
	inner := LightPayloadInner{
		Timestamp: at.UTC().Format(time.RFC3339),
		ID:        d.ID,
		Name:      d.Name,
		Type:      string(d.Kind),
		State:     d.StateString(),
	}
	if d.Kind == device.KindContinuous {
		level := d.Level
		inner.Brightness = &level
	}
	return json.Marshal(LightPayload{Light: inner})
}

// TimerPayload is the message published when a timer fires.
type TimerPayload struct {
	Timer TimerPayloadInner `json:"timer"`
}

// TimerPayloadInner contains the timer firing details.
type TimerPayloadInner struct {
	Timestamp  string   `json:"timestamp"`
	ID         string   `json:"id"`
	LightID    int      `json:"light_id"`
	LightName  string   `json:"light_name"`
	Action     string   `json:"action"`
	Brightness *float64 `json:"brightness,omitempty"`
	Repeat     string   `json:"repeat"`
	Scheduled  string   `json:"scheduled"`
	Result     string   `json:"result"`
	Error      string   `json:"error,omitempty"`
}

// FormatTimerPayload creates the JSON payload for a timer firing.
func FormatTimerPayload(f schedule.Firing) ([]byte, error) {
	inner := TimerPayloadInner{
		Timestamp:  f.At.UTC().Format(time.RFC3339),
		ID:         f.Timer.ID,
		LightID:    f.Timer.DeviceID,
		LightName:  f.Timer.DeviceName,
		Action:     string(f.Timer.Action),
		Brightness: f.Timer.Level,
		Repeat:     string(f.Timer.Repeat),
		Scheduled:  f.Timer.Next.UTC().Format(time.RFC3339),
		Result:     "OK",
	}
	if f.Err != nil {
		inner.Result = "ERROR"
		inner.Error = f.Err.Error()
	}
	return json.Marshal(TimerPayload{Timer: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
