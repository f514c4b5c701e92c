package report

import (
	"html/template"
	"io"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/anstrom/portstrom/internal/scanning"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Scan Report for {{ .Target.Address }}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { border-bottom: 2px solid #444; }
.meta { color: #666; }
.success { color: #1a7f37; }
.failed { color: #cf222e; }
.warning { color: #9a6700; }
</style>
</head>
<body>
<h1>Scan Report for {{ .Target.Address }}</h1>
<p class="meta">Scan {{ .ScanID | default "n/a" }}{{ with .ResolvedAddress }} &middot; resolved to {{ . }}{{ end }} &middot; rate {{ .Target.Rate }} pps{{ if not .StartedAt.IsZero }} &middot; started {{ .StartedAt | date "2006-01-02 15:04:05 MST" }}{{ end }}{{ if .Duration }} &middot; took {{ .Duration }}{{ end }}</p>

<h2>Open Ports</h2>
{{- if .Ports }}
<ul>
{{- range .Ports }}
<li>Port {{ .Port }}: {{ .Service }} {{ .Version }}{{ if ne .OS "Unknown" }} ({{ .OS }}){{ end }}</li>
{{- end }}
</ul>
{{- else }}
<p>No open ports found.</p>
{{- end }}

<h2>Web Port Findings</h2>
{{- range .Web }}
<h3>Port {{ .Port }}</h3>
{{- if or .Subdomains .Directories }}
<ul>
{{- range .Subdomains }}
<li>Subdomain: {{ . }}</li>
{{- end }}
{{- range .Directories }}
<li>Directory: {{ . }}</li>
{{- end }}
</ul>
{{- else }}
<p>Nothing reported.</p>
{{- end }}
{{- else }}
<p>No web ports probed.</p>
{{- end }}

<h2>Status</h2>
<ul>
{{- range .Stages }}
<li>{{ .Name }}: <span class="{{ .State }}">{{ .State | upper }}</span> ({{ .Outcome }}){{ with .Message }} &mdash; {{ . }}{{ end }}
{{- if .Warnings }}
<ul>
{{- range .Warnings }}
<li class="warning">{{ . }}</li>
{{- end }}
</ul>
{{- end }}
</li>
{{- end }}
</ul>
</body>
</html>
`

var reportTemplate = template.Must(template.New("report").Funcs(sprig.FuncMap()).Parse(htmlTemplate))

type htmlStage struct {
	Name     scanning.Stage
	State    string
	Outcome  string
	Message  string
	Warnings []string
}

type htmlView struct {
	Target          scanning.ScanTarget
	ScanID          string
	ResolvedAddress string
	StartedAt       time.Time
	Duration        time.Duration
	Ports           []scanning.ServiceRecord
	Web             []scanning.WebFinding
	Stages          []htmlStage
}

func newHTMLView(r *ScanReport) htmlView {
	view := htmlView{
		Target:          r.Target,
		ScanID:          r.ScanID,
		ResolvedAddress: r.ResolvedAddress,
		StartedAt:       r.StartedAt,
		Duration:        r.Duration().Round(time.Millisecond),
	}

	for _, port := range r.OpenPorts.Ports() {
		view.Ports = append(view.Ports, r.Service(port))
	}
	for _, port := range r.WebPorts() {
		view.Web = append(view.Web, r.WebFindings[port])
	}
	for _, stage := range scanning.Stages {
		s, ok := r.Status(stage)
		if !ok {
			view.Stages = append(view.Stages, htmlStage{Name: stage, State: "unknown", Outcome: "not run"})
			continue
		}
		view.Stages = append(view.Stages, htmlStage{
			Name:     stage,
			State:    string(s.State),
			Outcome:  string(s.Outcome),
			Message:  s.Message,
			Warnings: s.Warnings,
		})
	}
	return view
}

func writeHTML(w io.Writer, r *ScanReport) error {
	return reportTemplate.Execute(w, newHTMLView(r))
}
