package report

import (
	"time"

	"github.com/anstrom/portstrom/internal/scanning"
)

// Build merges stage outputs into a report. It copies every input so later
// changes by the caller do not leak into the report, and it drops service
// and web entries for ports that were not discovered open. Web entries are
// further limited to the web ports.
func Build(
	meta Meta,
	target scanning.ScanTarget,
	ports *scanning.PortSet,
	services map[int]scanning.ServiceRecord,
	web map[int]scanning.WebFinding,
	statuses map[scanning.Stage]scanning.StageStatus,
) *ScanReport {
	open := scanning.NewPortSet(ports.Ports()...)

	r := &ScanReport{
		ScanID:          meta.ScanID,
		Target:          target,
		ResolvedAddress: meta.ResolvedAddress,
		StartedAt:       normalizeTime(meta.StartedAt),
		CompletedAt:     normalizeTime(meta.CompletedAt),
		OpenPorts:       open,
		Services:        make(map[int]scanning.ServiceRecord, len(services)),
		WebFindings:     make(map[int]scanning.WebFinding, len(web)),
		StageStatus:     make(map[scanning.Stage]scanning.StageStatus, len(statuses)),
	}

	for port, rec := range services {
		if !open.Contains(port) {
			continue
		}
		rec.Port = port
		r.Services[port] = rec
	}

	for port, finding := range web {
		if !open.Contains(port) || !scanning.IsWebPort(port) {
			continue
		}
		r.WebFindings[port] = scanning.WebFinding{
			Port:        port,
			Subdomains:  copyStrings(finding.Subdomains),
			Directories: copyStrings(finding.Directories),
		}
	}

	for stage, status := range statuses {
		if len(status.Warnings) > 0 {
			status.Warnings = append([]string(nil), status.Warnings...)
		} else {
			status.Warnings = nil
		}
		r.StageStatus[stage] = status
	}

	return r
}

// copyStrings returns a copy of s that is never nil.
func copyStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// normalizeTime drops the monotonic reading and location so the report
// compares equal after a JSON round trip.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.Round(0).UTC()
}
