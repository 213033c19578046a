package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/powerctl/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"hex": func(v uint16) string {
		return fmt.Sprintf("0x%04x", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .Config.LocalName}}{{.Config.LocalName}}{{else}}powerctl{{end}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{if .Config.LocalName}}{{.Config.LocalName}}{{else}}powerctl{{end}}</h1>

<h2>Power</h2>
<table>
<tr><th>State</th><td id="power-state" class="{{if eq .State "CONNECTED"}}on{{else if eq .State ""}}unknown{{else}}off{{end}}">{{stateOrUnknown .State}}</td></tr>
<tr><th>Pairing</th><td>{{if .PendingPairing}}pending{{else}}no{{end}}</td></tr>
<tr><th>Advertising</th><td>{{if .Advertising}}yes{{else}}no{{end}}</td></tr>
<tr><th>Peer</th><td class="{{if .Peer}}connected{{else}}disconnected{{end}}">{{if .Peer}}{{.Peer}}{{else}}none{{end}}</td></tr>
</table>

<h2>Control Points</h2>
<table>
{{range $i, $v := .Controls}}<tr><th>{{$i}}</th><td class="{{if $v}}on{{else}}off{{end}}">{{hex $v}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counters</h2>
<table>
<tr><th>Transitions</th><td>{{.Counts.Transitions}}</td></tr>
<tr><th>Writes</th><td>{{.Counts.Writes}}</td></tr>
<tr><th>Connects</th><td>{{.Counts.Connects}}</td></tr>
<tr><th>Disconnects</th><td>{{.Counts.Disconnects}}</td></tr>
<tr><th>Key events</th><td>{{.Pipeline.KeyEvents}}</td></tr>
<tr><th>Dropped events</th><td>{{.Pipeline.Dropped}}</td></tr>
<tr><th>Pool</th><td>{{.Pipeline.PoolInUse}}/{{.Pipeline.PoolCapacity}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms x {{.Config.DebounceTicks}}</td></tr>
<tr><th>System on</th><td>{{.Config.SystemOnMs}}ms</td></tr>
<tr><th>Pairing</th><td>{{.Config.PairingMs}}ms</td></tr>
<tr><th>Power off</th><td>{{.Config.PowerOffMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if .Config.Heartbeat}}{{.Config.Heartbeat}}{{else}}disabled{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.DryRun}}<tr><th>Dry run</th><td>yes</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
