package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	GPIOMode      string       `json:"gpio_mode"`
	Timestamp     string       `json:"timestamp"`
	StartTime     string       `json:"start_time"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	TotalLights   int          `json:"total_lights"`
	LightsOn      int          `json:"lights_on"`
	TotalTimers   int          `json:"total_timers"`
	ActiveTimers  int          `json:"active_timers"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        *ConfigJSON  `json:"config,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string `json:"backend"`
	Chip        string `json:"chip,omitempty"`
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	HTTPAddr    string `json:"http_addr"`
}

// Build converts a snapshot to its JSON shape. Config is only included when
// withConfig is set (startup event and the web endpoint).
func Build(snap Snapshot, withConfig bool) StatusInner {
	inner := StatusInner{
		GPIOMode:      snap.Mode,
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		TotalLights:   snap.Counts.Lights,
		LightsOn:      snap.Counts.LightsOn,
		TotalTimers:   snap.Counts.Timers,
		ActiveTimers:  snap.Counts.ActiveTimers,
		MQTT: MQTTStatus{
			Enabled:   snap.Config.Broker != "",
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	if withConfig {
		inner.Config = &ConfigJSON{
			Backend:     snap.Config.Backend,
			Chip:        snap.Config.Chip,
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			HTTPAddr:    snap.Config.HTTPAddr,
		}
	}
	return inner
}

// FormatJSON returns indented JSON status for human output (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: Build(snap, true)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// Only STARTUP carries the config block.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := Build(snap, event == "STARTUP")
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
