package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/light-controller/internal/device"
	"github.com/sweeney/light-controller/internal/schedule"
)

// FakePublisher records published events for test assertions. It is safe
// for concurrent use since fades publish from their own goroutines.
type FakePublisher struct {
	mu sync.Mutex

	// Lights contains every light state that was published.
	Lights []device.Device

	// LightPayloads contains the JSON payloads for light states.
	LightPayloads [][]byte

	// Firings contains every timer firing that was published.
	Firings []schedule.Firing

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishLight and PublishTimer.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishLight records the light state.
func (f *FakePublisher) PublishLight(d device.Device, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatLightPayload(d, at)
	if err != nil {
		return err
	}
	f.Lights = append(f.Lights, d)
	f.LightPayloads = append(f.LightPayloads, payload)
	return nil
}

// PublishTimer records the firing.
func (f *FakePublisher) PublishTimer(fr schedule.Firing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Firings = append(f.Firings, fr)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// LightCount returns how many light states were recorded.
func (f *FakePublisher) LightCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Lights)
}

// SystemEventNames returns the Event field of every recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lights = nil
	f.LightPayloads = nil
	f.Firings = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
