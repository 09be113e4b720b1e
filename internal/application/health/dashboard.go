package health

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
)

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"ping": func(v interface{}) string {
		if p, ok := v.(*int64); ok && p != nil {
			return fmt.Sprintf("%d ms", *p)
		}
		return "--"
	},
	"good": func(s string) bool {
		return s == "connected" || s == "reachable" || s == "loaded"
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>FIT Atlas · API Status</title>
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <style>
    :root { --teal: #007473; --dark: #173E35; --bg: #F8F9FA; --muted: #64748b; }
    body { background: var(--bg); color: var(--dark); font-family: sans-serif; margin: 0; padding: 40px; }
    h1 { font-size: 42px; font-weight: 900; letter-spacing: -2px; margin: 0 0 10px; }
    .issue { color: #B91C1C; }
    .grid { display: grid; grid-template-columns: repeat(3, 1fr); gap: 20px; margin-top: 30px; }
    .card { background: white; border-radius: 20px; padding: 30px; box-shadow: 0 20px 60px -20px rgba(0,116,115,0.15); }
    .label { text-transform: uppercase; font-size: 11px; font-weight: 900; letter-spacing: 2px; color: #94a3b8; margin-bottom: 16px; }
    .row { display: flex; justify-content: space-between; padding: 6px 0; font-weight: 700; font-size: 14px; }
    .ok { color: var(--teal); }
    .err { color: #EF4444; }
    footer { margin-top: 30px; color: var(--muted); font-weight: 700; }
    @media (max-width: 900px) { .grid { grid-template-columns: 1fr; } }
  </style>
</head>
<body>
  {{if eq .Status "ok"}}<h1>All Systems Operational</h1>{{else}}<h1 class="issue">System Issues Detected</h1>{{end}}
  <div>Query service for the feed-in tariff installation catalogue.</div>
  <div class="grid">
    <div class="card">
      <div class="label">Traffic</div>
      <div class="row"><span>Requests</span><span>{{.Traffic.TotalRequests}}</span></div>
      <div class="row"><span>Successful</span><span class="ok">{{.Traffic.SuccessCount}}</span></div>
      <div class="row"><span>Failed</span><span class="err">{{.Traffic.FailedCount}}</span></div>
      <div class="row"><span>Success Rate</span><span>{{.Traffic.SuccessRate}}%</span></div>
      <div class="row"><span>Avg Latency</span><span>{{.Traffic.AvgResponseTime}}ms</span></div>
    </div>
    <div class="card">
      <div class="label">Catalogue</div>
      {{with .Catalogue}}
      <div class="row"><span>Source</span><span>{{.Source}}</span></div>
      <div class="row"><span>Refreshes</span><span>{{.Refreshes}}</span></div>
      {{with .Snapshot}}<div class="row"><span>Assets</span><span>{{.Assets}}</span></div>{{end}}
      {{with .LastBuild}}<div class="row"><span>Rejected rows</span><span>{{.Rejected}}</span></div>{{end}}
      {{if .LastError}}<div class="row"><span>Last error</span><span class="err">{{.LastError}}</span></div>{{end}}
      {{else}}<div class="row"><span>Status</span><span class="err">not configured</span></div>{{end}}
    </div>
    <div class="card">
      <div class="label">Connectivity</div>
      {{range .Deps}}<div class="row"><span>{{.Name}}</span><span class="{{if good .Status}}ok{{else}}err{{end}}">{{.Status}} · {{ping .PingMs}}</span></div>{{end}}
    </div>
  </div>
  <footer>Uptime {{.Runtime.UptimeSeconds}}s · {{.Runtime.Platform}} · {{.Runtime.GoVersion}} · <a href="/health/json">/health/json</a> · <a href="/health/errors">/health/errors</a> · <a href="/metrics">/metrics</a></footer>
</body>
</html>`))

type namedDep struct {
	Name string
	DepStatus
}

// RenderDashboardHTML returns the status page for GET /.
func RenderDashboardHTML(h CollectResult) (string, error) {
	deps := make([]namedDep, 0, len(h.Dependencies))
	for name, d := range h.Dependencies {
		deps = append(deps, namedDep{Name: name, DepStatus: d})
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })

	var buf bytes.Buffer
	err := dashboardTmpl.Execute(&buf, struct {
		CollectResult
		Deps []namedDep
	}{h, deps})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
