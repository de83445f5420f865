package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/light-controller/internal/device"
	"github.com/sweeney/light-controller/internal/schedule"
)

func TestTopics(t *testing.T) {
	tests := []struct {
		prefix     string
		wantLight  string
		wantTimers string
		wantSystem string
	}{
		{"", "home/lights/light/3/state", "home/lights/timers/fired", "home/lights/system"},
		{"house/ground/", "house/ground/light/3/state", "house/ground/timers/fired", "house/ground/system"},
	}

	for _, tt := range tests {
		topics := Topics{Prefix: tt.prefix}
		if got := topics.Light(3); got != tt.wantLight {
			t.Errorf("Light(%q): got %s, want %s", tt.prefix, got, tt.wantLight)
		}
		if got := topics.Timers(); got != tt.wantTimers {
			t.Errorf("Timers(%q): got %s, want %s", tt.prefix, got, tt.wantTimers)
		}
		if got := topics.System(); got != tt.wantSystem {
			t.Errorf("System(%q): got %s, want %s", tt.prefix, got, tt.wantSystem)
		}
	}
}

func TestFormatLightPayloadContinuous(t *testing.T) {
	d := device.Device{ID: 1, Name: "Living Room", Pin: 18, Kind: device.KindContinuous, State: true, Level: 42.5}
	at := time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

	payload, err := FormatLightPayload(d, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"light":{"timestamp":"2026-02-02T22:18:12Z","id":1,"name":"Living Room","type":"continuous","state":"ON","brightness":42.5}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatLightPayloadDiscreteOmitsBrightness(t *testing.T) {
	d := device.Device{ID: 4, Name: "Porch", Kind: device.KindDiscrete}

	payload, err := FormatLightPayload(d, time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, exists := parsed["light"]["brightness"]; exists {
		t.Error("discrete light should not carry brightness")
	}
	if parsed["light"]["state"] != "OFF" {
		t.Errorf("unexpected state: %v", parsed["light"]["state"])
	}
}

func TestFormatLightPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	at := time.Date(2026, 2, 2, 17, 0, 0, 0, loc)

	payload, err := FormatLightPayload(device.Device{ID: 1, Kind: device.KindDiscrete}, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed LightPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Light.Timestamp != "2026-02-02T22:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Light.Timestamp)
	}
}

func TestFormatTimerPayload(t *testing.T) {
	level := 30.0
	f := schedule.Firing{
		Timer: schedule.Timer{
			ID:         "7d4f",
			DeviceID:   2,
			DeviceName: "Kitchen",
			Action:     schedule.ActionBrightness,
			Level:      &level,
			Next:       time.Date(2026, 2, 10, 7, 0, 0, 0, time.UTC),
			Repeat:     schedule.RepeatWeekdays,
		},
		At: time.Date(2026, 2, 10, 7, 0, 4, 0, time.UTC),
	}

	payload, err := FormatTimerPayload(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"timer":{"timestamp":"2026-02-10T07:00:04Z","id":"7d4f","light_id":2,"light_name":"Kitchen","action":"brightness","brightness":30,"repeat":"weekdays","scheduled":"2026-02-10T07:00:00Z","result":"OK"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatTimerPayloadError(t *testing.T) {
	f := schedule.Firing{
		Timer: schedule.Timer{ID: "abc", DeviceID: 9, Action: schedule.ActionOff, Repeat: schedule.RepeatOnce},
		At:    time.Now(),
		Err:   errors.New("backend failure: write light 9: busy"),
	}

	payload, err := FormatTimerPayload(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed TimerPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Timer.Result != "ERROR" {
		t.Errorf("expected ERROR result, got %s", parsed.Timer.Result)
	}
	if parsed.Timer.Error != "backend failure: write light 9: busy" {
		t.Errorf("unexpected error text: %s", parsed.Timer.Error)
	}
	if parsed.Timer.Brightness != nil {
		t.Error("off timer should not carry brightness")
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"system":{"event":"STARTUP","lights":4}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFakePublisherRecords(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishLight(device.Device{ID: 1, Kind: device.KindDiscrete, State: true}, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishTimer(schedule.Firing{Timer: schedule.Timer{ID: "x"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.LightCount() != 1 || len(f.LightPayloads) != 1 {
		t.Errorf("expected 1 light state, got %d", f.LightCount())
	}
	if len(f.Firings) != 1 || f.Firings[0].Timer.ID != "x" {
		t.Errorf("unexpected firings: %+v", f.Firings)
	}
	if names := f.SystemEventNames(); len(names) != 1 || names[0] != "STARTUP" {
		t.Errorf("unexpected system events: %v", names)
	}
	if !f.SystemEvents[0].Retained {
		t.Error("retained flag not recorded")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")
	f.PublishSystemError = errors.New("simulated system error")

	if err := f.PublishLight(device.Device{ID: 1}, time.Now()); err == nil {
		t.Error("expected error from PublishLight")
	}
	if err := f.PublishTimer(schedule.Firing{}); err == nil {
		t.Error("expected error from PublishTimer")
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected error from PublishSystem")
	}
	if f.LightCount() != 0 || len(f.Firings) != 0 || len(f.SystemEvents) != 0 {
		t.Error("nothing should be recorded on error")
	}
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = true
	f.PublishLight(device.Device{ID: 1}, time.Now())

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed || f.Connected || f.LightCount() != 0 {
		t.Error("Reset should clear all recorded state")
	}
}

func TestNotifierForwardsEvents(t *testing.T) {
	f := NewFakePublisher()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := NewNotifier(f, func() time.Time { return at })
	defer n.Close()

	n.DeviceChanged(device.Device{ID: 3, Name: "Bedroom", Kind: device.KindContinuous, Level: 10, State: true})
	n.TimerFired(schedule.Firing{Timer: schedule.Timer{ID: "t1"}, At: at})
	n.Flush()

	if f.LightCount() != 1 {
		t.Fatalf("expected 1 light state, got %d", f.LightCount())
	}
	var parsed LightPayload
	if err := json.Unmarshal(f.LightPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Light.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("notifier should stamp with its clock, got %s", parsed.Light.Timestamp)
	}
	if len(f.Firings) != 1 {
		t.Errorf("expected 1 firing, got %d", len(f.Firings))
	}
}

func TestNotifierSwallowsPublishErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker gone")
	n := NewNotifier(f, nil)

	// Must not panic or propagate.
	n.DeviceChanged(device.Device{ID: 1})
	n.TimerFired(schedule.Firing{})
	n.Close()
}

// stalledPublisher blocks PublishLight until release is closed, like a
// broker that stopped acknowledging.
type stalledPublisher struct {
	*FakePublisher
	release chan struct{}
}

func (s *stalledPublisher) PublishLight(d device.Device, at time.Time) error {
	<-s.release
	return s.FakePublisher.PublishLight(d, at)
}

func TestNotifierDoesNotBlockOnStalledBroker(t *testing.T) {
	pub := &stalledPublisher{FakePublisher: NewFakePublisher(), release: make(chan struct{})}
	n := NewNotifier(pub, nil)

	returned := make(chan struct{})
	go func() {
		for id := 1; id <= 4; id++ {
			n.DeviceChanged(device.Device{ID: id})
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("DeviceChanged blocked on a stalled publisher")
	}

	close(pub.release)
	n.Close()
	if pub.LightCount() != 4 {
		t.Fatalf("expected 4 light states after release, got %d", pub.LightCount())
	}
	for i, d := range pub.Lights {
		if d.ID != i+1 {
			t.Errorf("light %d published out of order: got id %d", i, d.ID)
		}
	}
}

func TestNotifierDropsWhenQueueFull(t *testing.T) {
	pub := &stalledPublisher{FakePublisher: NewFakePublisher(), release: make(chan struct{})}
	n := NewNotifier(pub, nil)

	// One event is held by the worker, DefaultQueueSize more fill the queue.
	total := DefaultQueueSize + 10
	for id := 1; id <= total; id++ {
		n.DeviceChanged(device.Device{ID: id})
	}

	close(pub.release)
	n.Close()
	if got := pub.LightCount(); got >= total || got < DefaultQueueSize {
		t.Errorf("expected between %d and %d published states, got %d", DefaultQueueSize, total-1, got)
	}
}

func TestNotifierDropsAfterClose(t *testing.T) {
	f := NewFakePublisher()
	n := NewNotifier(f, nil)
	n.Close()

	n.DeviceChanged(device.Device{ID: 1})
	n.Flush()
	n.Close()

	if f.LightCount() != 0 {
		t.Errorf("expected no publish after Close, got %d", f.LightCount())
	}
}
