package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portstrom/internal/errors"
	"github.com/anstrom/portstrom/internal/scanning"
)

func sampleReport() *ScanReport {
	meta := Meta{
		ScanID:          "0b7c7d4e-5a43-4a39-9c62-2f8d3b2e6b51",
		ResolvedAddress: "10.0.0.1",
		StartedAt:       time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		CompletedAt:     time.Date(2024, 5, 1, 10, 2, 30, 500, time.UTC),
	}
	target := scanning.ScanTarget{Address: "scanme.example", Rate: 1000}
	ports := scanning.NewPortSet(80, 22, 443, 8080)

	services := map[int]scanning.ServiceRecord{
		22: {Port: 22, Service: "ssh", Version: "OpenSSH 9.0", OS: "Linux"},
		80: {Port: 80, Service: "http", Version: "nginx 1.18.0", OS: "Linux"},
	}
	web := map[int]scanning.WebFinding{
		80:  {Port: 80, Subdomains: []string{"[subdomain] api.scanme.example"}, Directories: []string{"[directory] /admin"}},
		443: {Port: 443},
	}
	statuses := map[scanning.Stage]scanning.StageStatus{
		scanning.StagePortScan:    scanning.Succeeded(scanning.OutcomeCompleted, nil),
		scanning.StageFingerprint: scanning.Succeeded(scanning.OutcomeCompleted, []string{"[PARSE_ANOMALY] nmap output line 9: malformed port line: \"9/tcp\""}),
		scanning.StageWebProbe:    scanning.Failed(scanning.OutcomeToolError, "port 443: connection refused"),
	}
	return Build(meta, target, ports, services, web, statuses)
}

func TestBuild(t *testing.T) {
	r := sampleReport()

	assert.Equal(t, []int{80, 22, 443, 8080}, r.OpenPorts.Ports())
	assert.Len(t, r.Services, 2)
	assert.Len(t, r.WebFindings, 2)
	assert.Len(t, r.StageStatus, 3)
	assert.Equal(t, 2*time.Minute+30*time.Second+500, r.Duration())

	// nil slices become empty so JSON shows [] rather than null
	assert.NotNil(t, r.WebFindings[443].Subdomains)
	assert.NotNil(t, r.WebFindings[443].Directories)
}

func TestBuildEnforcesInvariants(t *testing.T) {
	ports := scanning.NewPortSet(22, 80)
	services := map[int]scanning.ServiceRecord{
		22:   {Service: "ssh", Version: "x", OS: "y"},
		3306: scanning.NewServiceRecord(3306),
	}
	web := map[int]scanning.WebFinding{
		80:   scanning.NewWebFinding(80),
		443:  scanning.NewWebFinding(443),
		8080: scanning.NewWebFinding(8080),
	}

	r := Build(Meta{}, scanning.ScanTarget{Address: "10.0.0.1", Rate: 1}, ports, services, web, nil)

	require.Len(t, r.Services, 1)
	assert.Equal(t, 22, r.Services[22].Port)
	require.Len(t, r.WebFindings, 1)
	assert.Contains(t, r.WebFindings, 80)
	for port := range r.WebFindings {
		assert.True(t, scanning.IsWebPort(port))
		assert.True(t, r.OpenPorts.Contains(port))
	}
	assert.NotNil(t, r.StageStatus)
}

func TestBuildCopiesInputs(t *testing.T) {
	ports := scanning.NewPortSet(80)
	web := map[int]scanning.WebFinding{80: {Port: 80, Subdomains: []string{"a"}, Directories: []string{}}}
	warnings := []string{"w1"}
	statuses := map[scanning.Stage]scanning.StageStatus{
		scanning.StagePortScan: scanning.Succeeded(scanning.OutcomeCompleted, warnings),
	}

	r := Build(Meta{}, scanning.ScanTarget{Address: "h", Rate: 1}, ports, nil, web, statuses)

	ports.Add(443)
	web[80].Subdomains[0] = "changed"
	warnings[0] = "changed"

	assert.False(t, r.OpenPorts.Contains(443))
	assert.Equal(t, []string{"a"}, r.WebFindings[80].Subdomains)
	assert.Equal(t, []string{"w1"}, r.StageStatus[scanning.StagePortScan].Warnings)
}

func TestServiceDefaultsToUnknown(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, scanning.NewServiceRecord(443), r.Service(443))
	assert.Equal(t, "ssh", r.Service(22).Service)
	assert.Equal(t, []int{80, 22}, r.ServicePorts())
	assert.Equal(t, []int{80, 443}, r.WebPorts())
}

func TestFormatResolution(t *testing.T) {
	tests := []struct {
		path     string
		explicit Format
		want     Format
		ok       bool
	}{
		{"report.json", "", FormatJSON, true},
		{"REPORT.JSON", "", FormatJSON, true},
		{"out/report.Csv", "", FormatCSV, true},
		{"report.html", "", FormatHTML, true},
		{"report.htm", "", "", false},
		{"report.txt", "", "", false},
		{"report", "", "", false},
		{"report.txt", FormatJSON, FormatJSON, true},
		{"report.json", "HTML", FormatHTML, true},
		{"report.json", "xml", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path+"/"+string(tt.explicit), func(t *testing.T) {
			got, _, ok := ResolveFormat(tt.path, tt.explicit)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderJSONRoundTrip(t *testing.T) {
	r := sampleReport()
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, Render(r, path, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n    \"scan_id\"")

	decoded, err := ReadJSON(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestRenderJSONWithFailedFingerprint(t *testing.T) {
	statuses := map[scanning.Stage]scanning.StageStatus{
		scanning.StagePortScan:    scanning.Succeeded(scanning.OutcomeCompleted, nil),
		scanning.StageFingerprint: scanning.Failed(scanning.OutcomeToolError, "exit status 1"),
		scanning.StageWebProbe:    scanning.Succeeded(scanning.OutcomeSkipped, nil),
	}
	r := Build(NewMeta(), scanning.ScanTarget{Address: "10.0.0.1", Rate: 1000},
		scanning.NewPortSet(22), map[int]scanning.ServiceRecord{}, map[int]scanning.WebFinding{}, statuses)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, Render(r, path, FormatJSON))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"services": {}`)

	decoded, err := ReadJSON(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Empty(t, decoded.Services)
	assert.Equal(t, scanning.StateFailed, decoded.StageStatus[scanning.StageFingerprint].State)
}

func TestRenderCSV(t *testing.T) {
	r := sampleReport()
	path := filepath.Join(t.TempDir(), "report.CSV")
	require.NoError(t, Render(r, path, ""))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1+len(r.Services))
	assert.Equal(t, []string{"Target", "Port", "Service", "Version", "OS"}, rows[0])
	assert.Equal(t, []string{"scanme.example", "80", "http", "nginx 1.18.0", "Linux"}, rows[1])
	assert.Equal(t, []string{"scanme.example", "22", "ssh", "OpenSSH 9.0", "Linux"}, rows[2])
}

func TestRenderCSVSanitizesFormulas(t *testing.T) {
	r := Build(Meta{}, scanning.ScanTarget{Address: "10.0.0.1", Rate: 1}, scanning.NewPortSet(25),
		map[int]scanning.ServiceRecord{25: {Service: "smtp", Version: "=HYPERLINK(\"x\")", OS: "Unknown"}}, nil, nil)

	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, r))
	assert.Contains(t, buf.String(), `'=HYPERLINK`)
}

func TestRenderHTML(t *testing.T) {
	r := sampleReport()
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, Render(r, path, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "<title>Scan Report for scanme.example</title>")
	assert.Contains(t, html, "<li>Port 22: ssh OpenSSH 9.0 (Linux)</li>")
	// open but not fingerprinted
	assert.Contains(t, html, "<li>Port 443: Unknown Unknown</li>")
	assert.Contains(t, html, "<li>Port 8080: Unknown Unknown</li>")
	assert.Contains(t, html, "<h3>Port 80</h3>")
	assert.Contains(t, html, "Subdomain: [subdomain] api.scanme.example")
	assert.Contains(t, html, "Directory: [directory] /admin")
	assert.Contains(t, html, "web-probe: <span class=\"failed\">FAILED</span> (tool_error)")
	assert.Contains(t, html, "malformed port line")
	assert.NotContains(t, html, "<script")
	assert.NotContains(t, html, "<link")
}

func TestRenderHTMLEscapesToolOutput(t *testing.T) {
	r := Build(Meta{}, scanning.ScanTarget{Address: "10.0.0.1", Rate: 1}, scanning.NewPortSet(80), nil,
		map[int]scanning.WebFinding{80: {Subdomains: []string{"<script>alert(1)</script> subdomain"}}}, nil)

	var buf bytes.Buffer
	require.NoError(t, writeHTML(&buf, r))
	assert.NotContains(t, buf.String(), "<script>alert(1)</script>")
	assert.Contains(t, buf.String(), "&lt;script&gt;")
}

func TestRenderErrors(t *testing.T) {
	r := sampleReport()

	t.Run("unsupported extension writes nothing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.txt")
		err := Render(r, path, "")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeUnsupportedFormat))
		assert.NoFileExists(t, path)
	})

	t.Run("unsupported explicit format", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.json")
		err := Render(r, path, "yaml")
		assert.True(t, errors.IsCode(err, errors.CodeUnsupportedFormat))
		assert.NoFileExists(t, path)
	})

	t.Run("missing path", func(t *testing.T) {
		err := Render(r, "", FormatJSON)
		assert.True(t, errors.IsCode(err, errors.CodeOutputMissing))
	})

	t.Run("unwritable destination", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing-dir", "report.json")
		err := Render(r, path, "")
		assert.True(t, errors.IsCode(err, errors.CodeFileCreate))
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.json")
		require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 1<<16)), 0o644))
		require.NoError(t, Render(r, path, ""))
		_, err := ReadJSON(mustOpen(t, path))
		assert.NoError(t, err)
	})
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "scanme.example (10.0.0.1): 4 open port(s)")
	assert.Contains(t, out, "OpenSSH 9.0")
	assert.Contains(t, out, "1 subdomain(s), 1 dir(s)")
	assert.Contains(t, out, "tool_error")
	assert.Contains(t, out, "1 warning(s)")
}

func TestStageDetailTruncatesByRune(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"short", "exit status 1", "exit status 1"},
		{"exact width", strings.Repeat("x", maxDetailRunes), strings.Repeat("x", maxDetailRunes)},
		{"multibyte", strings.Repeat("é", 70), strings.Repeat("é", maxDetailRunes-3) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stageDetail(scanning.Failed(scanning.OutcomeToolError, tt.message))
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
