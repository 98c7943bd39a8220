package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/scale-sensor/internal/status"
)

// humanDuration renders d as "1d 2h 3m 4s", dropping leading zero units.
func humanDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	units := []struct {
		suffix string
		size   int64
	}{{"d", 86400}, {"h", 3600}, {"m", 60}, {"s", 1}}

	var parts []string
	for _, u := range units {
		n := secs / u.size
		secs %= u.size
		if n == 0 && len(parts) == 0 && u.size > 1 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
	}
	return strings.Join(parts, " ")
}

var pageFuncs = template.FuncMap{
	"since": humanDuration,
	"grams": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"stage": func(s string) string {
		if s == "" {
			return "IDLE"
		}
		return s
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}

var pageTmpl = template.Must(template.New("page").Funcs(pageFuncs).Parse(pageHTML))

const pageHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>Scale Sensor</title>
<style>
:root { --ok: #2e7d32; --warn: #ef6c00; --bad: #c62828; --line: #e0e0e0; }
body { font: 14px/1.4 ui-monospace, Menlo, monospace; margin: 0 auto; padding: 1em; max-width: 34em; }
header { display: flex; align-items: baseline; justify-content: space-between; }
#reading { font-size: 2.6em; font-weight: 700; margin: .3em 0; }
#link { font-size: .8em; color: var(--warn); }
#link.live { color: var(--ok); }
#link.down { color: var(--bad); }
section { border-top: 1px solid var(--line); padding: .4em 0; }
dl { display: grid; grid-template-columns: 12em 1fr; margin: 0; }
dt { color: #666; }
dd { margin: 0; }
.ok { color: var(--ok); }
.warn { color: var(--warn); }
.bad { color: var(--bad); }
.actions form { display: inline-block; margin-right: 1em; }
</style>
</head>
<body>
<header><h1>Scale Sensor</h1><span id="link">connecting</span></header>
<div id="reading">{{grams .Scale.Weight}} g</div>

<section>
<dl>
<dt>Settled</dt><dd id="settled" class="{{if .Scale.Settled}}ok{{else}}warn{{end}}">{{yesno .Scale.Settled}}</dd>
<dt>Rate of change</dt><dd id="roc">{{grams .Scale.RoC}} g/s</dd>
<dt>Ready</dt><dd>{{yesno .Ready}}</dd>
</dl>
</section>

<section>
<dl>
<dt>Calibration</dt><dd id="stage">{{stage .Scale.CalStage}}</dd>
<dt>Factor</dt><dd id="factor">{{printf "%.4f" .Scale.CalFactor}}</dd>
<dt>Last tare</dt><dd>{{grams .Scale.TareWeight}} g</dd>
<dt>Samples/s</dt><dd id="sps">{{.Scale.SPS}}</dd>
<dt>Read timeouts</dt><dd>{{.Scale.Timeouts}}</dd>
</dl>
<div class="actions">
<form method="post" action="/tare"><button>Tare</button></form>
<form method="post" action="/calibrate"><input type="number" name="weight" step="0.1" min="0.1" placeholder="grams"> <button>Calibrate</button></form>
</div>
</section>

<section>
<dl>
<dt>MQTT</dt><dd class="{{if .MQTTConnected}}ok{{else}}bad{{end}}">{{if .MQTTConnected}}up{{else}}down{{end}} {{.Config.Broker}}</dd>
{{with .Network}}<dt>Network</dt><dd>{{.Status}} {{.Type}}{{if .SSID}} {{.SSID}}{{end}}</dd>
<dt>Address</dt><dd>{{.IP}}</dd>{{end}}
</dl>
</section>

<section>
<dl>
<dt>Weights published</dt><dd>{{.Counts.Published}}</dd>
<dt>Tares</dt><dd>{{.Counts.Tares}}</dd>
<dt>Calibrations</dt><dd>{{.Counts.Calibrations}} ({{.Counts.CalibrationErrors}} failed)</dd>
</dl>
</section>

<section>
<dl>
<dt>Up</dt><dd>{{since .Uptime}} since {{.StartTime.UTC.Format "2006-01-02 15:04:05"}} UTC</dd>
<dt>Intervals</dt><dd>read {{.Config.ReadMs}}ms, publish {{.Config.PublishMs}}ms, heartbeat {{if .Config.HeartbeatMs}}{{.Config.HeartbeatMs}}ms{{else}}off{{end}}</dd>
<dt>Listening</dt><dd>{{.Config.HTTPAddr}}{{if .Config.Simulated}} (simulated){{end}}</dd>
</dl>
<a href="/index.json">index.json</a>
</section>

<script>
var link = document.getElementById("link");
function put(id, v) { document.getElementById(id).textContent = v; }
function dial() {
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onopen = function () { link.className = "live"; link.textContent = "live"; };
  ws.onclose = function () {
    link.className = "down"; link.textContent = "offline";
    setTimeout(dial, 5000);
  };
  ws.onmessage = function (ev) {
    var msg;
    try { msg = JSON.parse(ev.data); } catch (e) { return; }
    if (msg.type !== "status") return;
    var s = msg.data.status;
    put("reading", s.weight.toFixed(2) + " g");
    put("roc", s.roc.toFixed(2) + " g/s");
    put("settled", s.settled ? "yes" : "no");
    document.getElementById("settled").className = s.settled ? "ok" : "warn";
    put("stage", s.scale.cal_stage);
    put("factor", s.scale.cal_factor.toFixed(4));
    put("sps", s.scale.sps);
  };
}
dial();
</script>
</body>
</html>
`

type page struct {
	status.Snapshot
	Uptime time.Duration
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return pageTmpl.Execute(w, page{Snapshot: snap, Uptime: snap.Uptime()})
}
