package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/light-controller/internal/device"
	"github.com/sweeney/light-controller/internal/schedule"
	"github.com/sweeney/light-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"percent": formatPercent,
	"dimmable": func(d device.Device) bool {
		return d.Kind == device.KindContinuous
	},
	"deref": func(f *float64) float64 {
		if f == nil {
			return 0
		}
		return *f
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Light Controller</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.inactive { color: #aaa; text-decoration: line-through; }
.connected { color: green; }
.disconnected { color: red; }
.mode { color: #555; font-size: 0.8em; }
</style>
</head>
<body>
<h1>Light Controller <span class="mode">({{.Mode}})</span></h1>

<h2>Lights</h2>
<table>
<tr><th>ID</th><th>Name</th><th>Pin</th><th>Type</th><th>State</th></tr>
{{range .Lights}}<tr>
<td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Pin}}</td><td>{{.Kind}}</td>
<td class="{{if .State}}on{{else}}off{{end}}">{{.StateString}}{{if dimmable .}} ({{percent .Level}}%){{end}}</td>
</tr>{{else}}<tr><td colspan="5">No lights configured</td></tr>{{end}}
</table>

<h2>Timers</h2>
<table>
<tr><th>Light</th><th>Action</th><th>Next</th><th>Repeat</th></tr>
{{range .Timers}}<tr class="{{if not .Active}}inactive{{end}}">
<td>{{.DeviceName}}</td>
<td>{{.Action}}{{if .Level}} {{percent (deref .Level)}}%{{end}}</td>
<td>{{.Next.Format "2006-01-02 15:04"}}</td>
<td>{{.Repeat}}</td>
</tr>{{else}}<tr><td colspan="4">No timers</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td>{{if .Config.Broker}}<span class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</span>{{else}}disabled{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Lights on</th><td>{{.Counts.LightsOn}} / {{.Counts.Lights}}</td></tr>
<tr><th>Active timers</th><td>{{.Counts.ActiveTimers}} / {{.Counts.Timers}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/api/status">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, lights []device.Device, timers []schedule.Timer) error {
	// Snapshot has an Uptime method but the template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Lights []device.Device
		Timers []schedule.Timer
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Lights:   lights,
		Timers:   timers,
	}
	return indexTmpl.Execute(w, data)
}
