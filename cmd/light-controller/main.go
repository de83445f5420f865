// Command light-controller drives GPIO lights, runs their timers and serves
// the HTTP control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/light-controller/internal/config"
	"github.com/sweeney/light-controller/internal/device"
	"github.com/sweeney/light-controller/internal/gpio"
	"github.com/sweeney/light-controller/internal/logging"
	"github.com/sweeney/light-controller/internal/mqtt"
	"github.com/sweeney/light-controller/internal/schedule"
	"github.com/sweeney/light-controller/internal/status"
	"github.com/sweeney/light-controller/internal/web"
)

var version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (empty uses built-in defaults)")
	backend := flag.String("backend", "", "Override backend mode: auto, hardware or simulation")
	httpAddr := flag.String("http", "", "Override HTTP listen address")
	printState := flag.Bool("print-state", false, "Print current light state and exit")

	flag.Parse()

	if err := run(*configPath, *backend, *httpAddr, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath, backendMode, httpAddr string, printState bool) error {
	cfg, err := loadConfig(configPath, backendMode, httpAddr)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging, version)

	// Initialize GPIO
	backend, err := gpio.Open(cfg.Backend.Mode, cfg.Backend.Chip, logger.With("component", "gpio"))
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer backend.Close()

	registry := device.NewRegistry(backend)
	registry.SetLogger(logger.With("component", "device"))
	if err := configureDevices(registry, cfg.Devices); err != nil {
		return err
	}
	defer registry.Release()

	// Print state mode
	if printState {
		return printLights(os.Stdout, registry)
	}

	scheduler := schedule.NewScheduler(registry, time.Now)
	scheduler.SetLogger(logger.With("component", "schedule"))

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	broker := ""
	if cfg.MQTT.Enabled {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger.With("component", "mqtt"))
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer rp.Close()

		notifier := mqtt.NewNotifier(rp, time.Now)
		notifier.SetLogger(logger.With("component", "mqtt"))
		defer notifier.Close()
		registry.SetNotifier(notifier)
		scheduler.SetNotifier(notifier)

		publisher, mqttStatus, broker = rp, rp, cfg.MQTT.Broker
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), backend.Mode(), status.Config{
		Backend:     cfg.Backend.Mode,
		Chip:        cfg.Backend.Chip,
		PollMs:      cfg.Scheduler.PollInterval.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	refreshCounts(tracker, registry, scheduler, logger)

	// Publish startup event with full status snapshot
	if publisher != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			logger.Warn("failed to publish startup event", "error", err)
		} else {
			logger.Info("published startup event")
		}
	}

	// Start HTTP API
	if cfg.HTTP.Addr != "" {
		srv := web.New(web.Options{Addr: cfg.HTTP.Addr, CORSOrigins: cfg.HTTP.CORSOrigins}, registry, scheduler, tracker)
		srv.SetLogger(logger.With("component", "web"))
		if mqttStatus != nil {
			srv.SetConnectionStatus(mqttStatus)
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown", "error", err)
			}
		}()
		logger.Info("http api listening", "addr", cfg.HTTP.Addr)
	}

	// Start timer evaluation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pollTicker := time.NewTicker(cfg.Scheduler.PollInterval)
	defer pollTicker.Stop()
	go scheduler.Run(ctx, pollTicker.C)

	var heartbeat <-chan time.Time
	if publisher != nil && cfg.MQTT.Heartbeat > 0 {
		hb := time.NewTicker(cfg.MQTT.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	logger.Info("started",
		"mode", backend.Mode(),
		"lights", len(cfg.Devices),
		"poll", cfg.Scheduler.PollInterval.String(),
		"mqtt", cfg.MQTT.Enabled,
		"heartbeat", cfg.MQTT.Heartbeat.String(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(publisher, mqttStatus, tracker, registry, scheduler, logger, time.Now, heartbeat, sigCh)
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(path, backendMode, httpAddr string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if backendMode == "" && httpAddr == "" {
		return cfg, nil
	}
	if backendMode != "" {
		cfg.Backend.Mode = backendMode
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func configureDevices(registry *device.Registry, devices []config.DeviceConfig) error {
	for _, d := range devices {
		kind, ok := device.ParseKind(d.Kind)
		if !ok {
			return fmt.Errorf("light %d: unknown kind %q", d.ID, d.Kind)
		}
		err := registry.Configure(device.Config{
			ID:        d.ID,
			Name:      d.Name,
			Pin:       d.Pin,
			Kind:      kind,
			Frequency: d.Frequency,
		})
		if err != nil {
			return fmt.Errorf("configure light %d: %w", d.ID, err)
		}
	}
	return nil
}

type lightLister interface {
	List() ([]device.Device, error)
}

type timerCounter interface {
	List() []schedule.Timer
	ActiveCount() int
}

func printLights(w io.Writer, lights lightLister) error {
	list, err := lights.List()
	if err != nil {
		return fmt.Errorf("read lights: %w", err)
	}
	for _, d := range list {
		if d.Kind == device.KindContinuous {
			fmt.Fprintf(w, "%d %s: %s (%g%%)\n", d.ID, d.Name, d.StateString(), d.Level)
			continue
		}
		fmt.Fprintf(w, "%d %s: %s\n", d.ID, d.Name, d.StateString())
	}
	return nil
}

func refreshCounts(tracker *status.Tracker, lights lightLister, timers timerCounter, logger *logging.Logger) {
	list, err := lights.List()
	if err != nil {
		logger.Warn("light read failed while refreshing status", "error", err)
	}
	on := 0
	for _, d := range list {
		if d.State {
			on++
		}
	}
	tracker.Update(status.Counts{
		Lights:       len(list),
		LightsOn:     on,
		Timers:       len(timers.List()),
		ActiveTimers: timers.ActiveCount(),
	})
}

// runLoop blocks until a signal arrives, publishing a HEARTBEAT system event
// on every heartbeat tick. publisher may be nil when MQTT is disabled.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, lights lightLister, timers timerCounter, logger *logging.Logger, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	snapshot := func(event, reason string) []byte {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		refreshCounts(tracker, lights, timers, logger)
		return status.FormatStatusEvent(tracker.Snapshot(), event, reason)
	}

	for {
		select {
		case s := <-sig:
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			logger.Info("shutting down", "signal", signalName)
			if publisher == nil {
				return nil
			}
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: snapshot("SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				logger.Warn("failed to publish shutdown event", "error", err)
			} else {
				logger.Info("published shutdown event")
			}
			return nil

		case <-heartbeat:
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "HEARTBEAT",
				RawPayload: snapshot("HEARTBEAT", ""),
			}
			snap := tracker.Snapshot()
			logger.Info("heartbeat",
				"uptime_s", int64(snap.Uptime().Seconds()),
				"lights_on", snap.Counts.LightsOn,
				"active_timers", snap.Counts.ActiveTimers,
			)
			if publisher == nil {
				continue
			}
			if err := publisher.PublishSystem(event); err != nil {
				logger.Warn("heartbeat publish error", "error", err)
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
