package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/light-controller/internal/device"
	"github.com/sweeney/light-controller/internal/gpio"
	"github.com/sweeney/light-controller/internal/schedule"
	"github.com/sweeney/light-controller/internal/status"
)

const (
	dimmerID = 1
	porchID  = 2
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv     *Server
	reg     *device.Registry
	sim     *gpio.SimBackend
	sched   *schedule.Scheduler
	tracker *status.Tracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sim := gpio.NewSimBackend()
	reg := device.NewRegistry(sim)
	require.NoError(t, reg.Configure(device.Config{ID: dimmerID, Name: "Living Room", Pin: 18, Kind: device.KindContinuous}))
	require.NoError(t, reg.Configure(device.Config{ID: porchID, Name: "Porch", Pin: 17, Kind: device.KindDiscrete}))
	t.Cleanup(reg.Release)

	sched := schedule.NewScheduler(reg, func() time.Time { return testNow })
	tracker := status.NewTracker(testNow.Add(-time.Hour), reg.Mode(), status.Config{
		Backend:  "simulation",
		PollMs:   10000,
		Broker:   "tcp://192.168.1.200:1883",
		HTTPAddr: ":5000",
	})
	srv := New(Options{Addr: ":0"}, reg, sched, tracker)
	return &testEnv{srv: srv, reg: reg, sim: sim, sched: sched, tracker: tracker}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	}
	return rec, out
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.reg.SetDiscrete(porchID, true)
	require.NoError(t, err)
	env.tracker.SetMQTTConnected(true)

	rec, body := env.do(t, http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "simulation", body["gpio_mode"])
	assert.EqualValues(t, 2, body["total_lights"])
	assert.EqualValues(t, 1, body["lights_on"])
	assert.EqualValues(t, 0, body["total_timers"])

	mqtt := body["mqtt"].(map[string]any)
	assert.Equal(t, true, mqtt["connected"])
	assert.Equal(t, "tcp://192.168.1.200:1883", mqtt["broker"])
	assert.NotNil(t, body["config"])
}

type fixedConnection bool

func (c fixedConnection) IsConnected() bool { return bool(c) }

func TestStatusReportsLiveMQTTConnection(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.SetMQTTConnected(true)
	env.srv.SetConnectionStatus(fixedConnection(false))

	_, body := env.do(t, http.MethodGet, "/api/status", "")

	mqtt := body["mqtt"].(map[string]any)
	assert.Equal(t, false, mqtt["connected"])
	assert.False(t, env.tracker.Snapshot().MQTTConnected)
}

func TestStatusReflectsTimers(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.sched.Create(schedule.CreateRequest{DeviceID: porchID, Action: "on", Time: "18:00"})
	require.NoError(t, err)
	tm, err := env.sched.Create(schedule.CreateRequest{DeviceID: porchID, Action: "off", Time: "23:00"})
	require.NoError(t, err)
	_, err = env.sched.Toggle(tm.ID)
	require.NoError(t, err)

	_, body := env.do(t, http.MethodGet, "/api/status", "")

	assert.EqualValues(t, 2, body["total_timers"])
	assert.EqualValues(t, 1, body["active_timers"])
}

func TestListLights(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/lights", "")

	require.Equal(t, http.StatusOK, rec.Code)
	lights := body["lights"].([]any)
	require.Len(t, lights, 2)
	first := lights[0].(map[string]any)
	assert.EqualValues(t, dimmerID, first["id"])
	assert.Equal(t, "continuous", first["type"])
	assert.Equal(t, "Porch", lights[1].(map[string]any)["name"])
}

func TestGetLight(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/lights/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	light := body["light"].(map[string]any)
	assert.Equal(t, "Porch", light["name"])
	assert.Equal(t, false, light["state"])
}

func TestGetLightErrors(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/lights/99", "/api/lights/abc"} {
		rec, body := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, false, body["success"], path)
		assert.NotEmpty(t, body["error"], path)
	}
}

func TestToggleLight(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/lights/2/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Light Porch turned ON", body["message"])
	on, err := env.sim.ReadDiscrete(17)
	require.NoError(t, err)
	assert.True(t, on)

	_, body = env.do(t, http.MethodPost, "/api/lights/2/toggle", "")
	assert.Equal(t, "Light Porch turned OFF", body["message"])
}

func TestSetLight(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/lights/1/set", `{"state": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	light := body["light"].(map[string]any)
	assert.Equal(t, true, light["state"])
	assert.EqualValues(t, 100, light["brightness"])
}

func TestSetLightValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"missing state", `{}`},
		{"malformed", `{"state":`},
		{"wrong type", `{"state": "yes"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, "/api/lights/2/set", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestSetBrightness(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/lights/1/brightness", `{"brightness": 37.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Light Living Room brightness set to 37.5%", body["message"])

	level, err := env.sim.ReadContinuous(18)
	require.NoError(t, err)
	assert.InDelta(t, 37.5, level, 0.001)
}

func TestSetBrightnessErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"out of range", "/api/lights/1/brightness", `{"brightness": 150}`, http.StatusBadRequest},
		{"negative", "/api/lights/1/brightness", `{"brightness": -1}`, http.StatusBadRequest},
		{"missing", "/api/lights/1/brightness", `{}`, http.StatusBadRequest},
		{"discrete light", "/api/lights/2/brightness", `{"brightness": 50}`, http.StatusBadRequest},
		{"unknown light", "/api/lights/9/brightness", `{"brightness": 50}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestFadeReachesTarget(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/lights/1/fade", `{"brightness": 80, "fade_time": 0.05, "steps": 5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Fading light Living Room to 80% over 0.05s", body["message"])

	require.Eventually(t, func() bool {
		d, err := env.reg.State(dimmerID)
		return err == nil && d.Level > 79.999
	}, time.Second, 5*time.Millisecond)
}

func TestFadeZeroTimeUsesDefault(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/lights/1/fade", `{"brightness": 20, "fade_time": 0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Fading light Living Room to 20% over 1s", body["message"])
}

func TestFadeValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"negative fade time", "/api/lights/1/fade", `{"brightness": 50, "fade_time": -1}`, http.StatusBadRequest},
		{"fade time too long", "/api/lights/1/fade", `{"brightness": 50, "fade_time": 7200}`, http.StatusBadRequest},
		{"negative steps", "/api/lights/1/fade", `{"brightness": 50, "steps": -2}`, http.StatusBadRequest},
		{"too many steps", "/api/lights/1/fade", `{"brightness": 50, "fade_time": 1, "steps": 1000000000}`, http.StatusBadRequest},
		{"target out of range", "/api/lights/1/fade", `{"brightness": 101}`, http.StatusBadRequest},
		{"missing brightness", "/api/lights/1/fade", `{"fade_time": 2}`, http.StatusBadRequest},
		{"discrete light", "/api/lights/2/fade", `{"brightness": 50}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAllOnAllOff(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/lights/all/on", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "All lights turned ON", body["message"])
	for _, l := range body["lights"].([]any) {
		assert.Equal(t, true, l.(map[string]any)["state"])
	}

	_, body = env.do(t, http.MethodPost, "/api/lights/all/off", "")
	assert.Equal(t, "All lights turned OFF", body["message"])
	for _, l := range body["lights"].([]any) {
		assert.Equal(t, false, l.(map[string]any)["state"])
	}
}

func TestAllOnReportsBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.sim.FailWrites(17, errors.New("line busy"))

	rec, body := env.do(t, http.MethodPost, "/api/lights/all/on", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "line busy")
	// The dimmer is still switched even though the porch failed.
	d, err := env.reg.State(dimmerID)
	require.NoError(t, err)
	assert.True(t, d.State)
}

func TestCreateTimer(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/timers",
		`{"light_id": "2", "action": "on", "time": "2026-03-02T18:30:00Z", "repeat": "daily"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Timer set for Porch to on at 18:30", body["message"])
	timer := body["timer"].(map[string]any)
	assert.NotEmpty(t, timer["id"])
	assert.Equal(t, "daily", timer["repeat"])
	assert.Equal(t, true, timer["active"])
	assert.Len(t, env.sched.List(), 1)
}

func TestCreateTimerErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    string
		want    int
		message string
	}{
		{"missing light", `{"action": "on", "time": "18:00"}`, http.StatusBadRequest, "Missing required field: light_id"},
		{"missing action", `{"light_id": 2, "time": "18:00"}`, http.StatusBadRequest, "Missing required field: action"},
		{"missing time", `{"light_id": 2, "action": "on"}`, http.StatusBadRequest, "Missing required field: time"},
		{"bad action", `{"light_id": 2, "action": "blink", "time": "18:00"}`, http.StatusBadRequest, ""},
		{"bad time", `{"light_id": 2, "action": "on", "time": "soon"}`, http.StatusBadRequest, ""},
		{"past once", `{"light_id": 2, "action": "on", "time": "08:00"}`, http.StatusBadRequest, ""},
		{"brightness on discrete", `{"light_id": 2, "action": "brightness", "time": "18:00"}`, http.StatusBadRequest, ""},
		{"unknown light", `{"light_id": 42, "action": "on", "time": "18:00"}`, http.StatusNotFound, ""},
		{"empty body", ``, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, "/api/timers", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, body["error"])
			}
		})
	}
	assert.Empty(t, env.sched.List())
}

func TestTimerLifecycle(t *testing.T) {
	env := newTestEnv(t)
	tm, err := env.sched.Create(schedule.CreateRequest{DeviceID: dimmerID, Action: "brightness", Time: "21:00"})
	require.NoError(t, err)
	path := "/api/timers/" + tm.ID

	rec, body := env.do(t, http.MethodGet, "/api/timers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["timers"], 1)

	rec, body = env.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 100, body["timer"].(map[string]any)["brightness"])

	_, body = env.do(t, http.MethodPost, path+"/toggle", "")
	assert.Equal(t, "Timer deactivated", body["message"])
	_, body = env.do(t, http.MethodPost, path+"/toggle", "")
	assert.Equal(t, "Timer activated", body["message"])

	rec, body = env.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Timer deleted successfully", body["message"])

	rec, _ = env.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = env.do(t, http.MethodPost, path+"/toggle", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexPage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.sched.Create(schedule.CreateRequest{DeviceID: porchID, Action: "on", Time: "19:15"})
	require.NoError(t, err)

	for _, path := range []string{"/", "/index.html"} {
		rec, _ := env.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
		page := rec.Body.String()
		assert.Contains(t, page, "Living Room")
		assert.Contains(t, page, "Porch")
		assert.Contains(t, page, "2026-03-02 19:15")
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = env.do(t, http.MethodGet, "/api/lights/1/toggle", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/lights", nil)
	req.Header.Set("Origin", "http://panel.local")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://panel.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRestrictedOrigins(t *testing.T) {
	env := newTestEnv(t)
	srv := New(Options{CORSOrigins: []string{"http://panel.local"}}, env.reg, env.sched, env.tracker)

	req := httptest.NewRequest(http.MethodGet, "/api/lights", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	big := `{"state": true, "pad": "` + strings.Repeat("x", maxRequestBodySize) + `"}`

	rec, body := env.do(t, http.MethodPost, "/api/lights/2/set", big)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "too large")
}

type panickingLights struct{ Lights }

func (panickingLights) List() ([]device.Device, error) { panic("boom") }

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t)
	srv := New(Options{}, panickingLights{Lights: env.reg}, env.sched, env.tracker)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lights", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{device.ErrNotFound, http.StatusNotFound},
		{device.ErrValidation, http.StatusBadRequest},
		{device.ErrTypeMismatch, http.StatusBadRequest},
		{device.ErrSuperseded, http.StatusConflict},
		{device.ErrBackend, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestFlexInt(t *testing.T) {
	var v struct {
		A flexInt `json:"a"`
		B flexInt `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 3, "b": "7"}`), &v))
	assert.Equal(t, flexInt(3), v.A)
	assert.Equal(t, flexInt(7), v.B)

	assert.Error(t, json.Unmarshal([]byte(`{"a": "x"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a": true}`), &v))
}
