package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/hud-worker/internal/mqtt"
	"github.com/sweeney/hud-worker/internal/status"
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
	"level": mqtt.FormatValue,
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>HUD Worker</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.enabled { color: #888; }
.disabled { color: green; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>HUD Worker<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Levels</h2>
<table>
<tr><th>Volume</th><td id="volume">{{if .Levels.VolumeOK}}{{level .Levels.Volume}}{{if .Levels.Muted}} (muted){{end}}{{else}}UNKNOWN{{end}}</td></tr>
<tr><th>Brightness</th><td id="brightness">{{if .Levels.BrightnessOK}}{{level .Levels.Brightness}}{{else}}UNKNOWN{{end}}</td></tr>
<tr><th>Brightness source</th><td>{{stateOrUnknown .Levels.Strategy}}</td></tr>
<tr><th>Displays</th><td>{{.Levels.Displays}}</td></tr>
</table>

<h2>Native OSD</h2>
<table>
<tr><th>State</th><td class="{{stateOrUnknown .OSD.State}}">{{stateOrUnknown .OSD.State}}</td></tr>
<tr><th>Monitoring</th><td>{{if .OSD.Monitoring}}yes{{else}}no{{end}}</td></tr>
<tr><th>Respawns killed</th><td>{{.OSD.Respawns}}</td></tr>
<tr><th>Escalations</th><td>{{.OSD.Escalations}}</td></tr>
<tr><th>Reassertions</th><td>{{.OSD.Reasserts}}</td></tr>
<tr><th>Errors</th><td>{{.OSD.Errors}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Volume</th><td id="count-volume">{{.Counts.Volume}}</td></tr>
<tr><th>Brightness</th><td id="count-brightness">{{.Counts.Brightness}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Margin</th><td>{{.Config.Margin}}</td></tr>
<tr><th>Monitor</th><td>{{.Config.MonitorMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var els = { volume: document.getElementById("volume"), brightness: document.getElementById("brightness") };
  var counts = { volume: document.getElementById("count-volume"), brightness: document.getElementById("count-brightness") };

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/events");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(function() { setDot("pending", "reconnecting"); connect(); }, 5000);
    };
    ws.onmessage = function(m) {
      try {
        var msg = JSON.parse(m.data);
        if (msg.type === "change" && els[msg.data.type]) {
          els[msg.data.type].textContent = msg.data.value;
          counts[msg.data.type].textContent = String(Number(counts[msg.data.type].textContent) + 1);
        }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
