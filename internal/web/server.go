// Package web serves the light-controller JSON API and status page.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/light-controller/internal/device"
	"github.com/sweeney/light-controller/internal/schedule"
	"github.com/sweeney/light-controller/internal/status"
)

// Lights is the device registry as seen by the HTTP layer.
type Lights interface {
	List() ([]device.Device, error)
	State(id int) (device.Device, error)
	SetDiscrete(id int, on bool) (device.Device, error)
	SetLevel(id int, percent float64) (device.Device, error)
	Toggle(id int) (bool, error)
	AllOn() error
	AllOff() error
	Fade(id int, target float64, duration time.Duration, steps int) (*device.Transition, error)
}

// Timers is the scheduler as seen by the HTTP layer.
type Timers interface {
	Create(req schedule.CreateRequest) (schedule.Timer, error)
	List() []schedule.Timer
	Get(id string) (schedule.Timer, error)
	Toggle(id string) (schedule.Timer, error)
	Delete(id string) error
	ActiveCount() int
}

// ConnectionStatus reports whether the MQTT publisher is connected.
type ConnectionStatus interface {
	IsConnected() bool
}

// Logger defines the logging interface used by the Server.
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

// Options configures a Server.
type Options struct {
	Addr        string
	CORSOrigins []string // empty allows all origins
}

// Server serves the API and status page over HTTP.
type Server struct {
	httpServer  *http.Server
	lights      Lights
	timers      Timers
	tracker     *status.Tracker
	mqtt        ConnectionStatus
	corsOrigins []string
	logger      Logger
}

// New creates a Server backed by the given registry, scheduler and tracker.
func New(opts Options, lights Lights, timers Timers, tracker *status.Tracker) *Server {
	s := &Server{
		lights:      lights,
		timers:      timers,
		tracker:     tracker,
		corsOrigins: opts.CORSOrigins,
		logger:      noopLogger{},
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetLogger sets the logger for request logging and panics.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// SetConnectionStatus makes status responses report live MQTT connectivity.
func (s *Server) SetConnectionStatus(c ConnectionStatus) {
	s.mqtt = c
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/lights", func(r chi.Router) {
			r.Get("/", s.handleListLights)
			r.Post("/all/on", s.handleAllOn)
			r.Post("/all/off", s.handleAllOff)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetLight)
				r.Post("/toggle", s.handleToggleLight)
				r.Post("/set", s.handleSetLight)
				r.Post("/brightness", s.handleSetBrightness)
				r.Post("/fade", s.handleFade)
			})
		})

		r.Route("/timers", func(r chi.Router) {
			r.Get("/", s.handleListTimers)
			r.Post("/", s.handleCreateTimer)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTimer)
				r.Delete("/", s.handleDeleteTimer)
				r.Post("/toggle", s.handleToggleTimer)
			})
		})
	})

	return r
}

// refreshStatus pushes current light and timer counts into the tracker and
// returns a snapshot together with the lights it read.
func (s *Server) refreshStatus() (status.Snapshot, []device.Device) {
	devices, err := s.lights.List()
	if err != nil {
		s.logger.Warn("light read failed while building status", "error", err)
	}
	on := 0
	for _, d := range devices {
		if d.State {
			on++
		}
	}
	if s.mqtt != nil {
		s.tracker.SetMQTTConnected(s.mqtt.IsConnected())
	}
	s.tracker.Update(status.Counts{
		Lights:       len(devices),
		LightsOn:     on,
		Timers:       len(s.timers.List()),
		ActiveTimers: s.timers.ActiveCount(),
	})
	return s.tracker.Snapshot(), devices
}

type statusResponse struct {
	Success bool   `json:"success"`
	State   string `json:"status"`
	status.StatusInner
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap, _ := s.refreshStatus()
	writeJSON(w, http.StatusOK, statusResponse{
		Success:     true,
		State:       "running",
		StatusInner: status.Build(snap, true),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	snap, devices := s.refreshStatus()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, devices, s.timers.List()); err != nil {
		s.logger.Error("render status page failed", "error", err)
	}
}
