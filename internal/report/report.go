// Package report assembles stage results into a ScanReport and renders it
// as JSON, CSV, HTML or a console table.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/portstrom/internal/scanning"
)

// ScanReport is the aggregated result of one run. Build is the only
// constructor; callers must not mutate a built report.
type ScanReport struct {
	ScanID          string                                  `json:"scan_id"`
	Target          scanning.ScanTarget                     `json:"target"`
	ResolvedAddress string                                  `json:"resolved_address,omitempty"`
	StartedAt       time.Time                               `json:"started_at"`
	CompletedAt     time.Time                               `json:"completed_at"`
	OpenPorts       *scanning.PortSet                       `json:"open_ports"`
	Services        map[int]scanning.ServiceRecord          `json:"services"`
	WebFindings     map[int]scanning.WebFinding             `json:"web_findings"`
	StageStatus     map[scanning.Stage]scanning.StageStatus `json:"stage_status"`
}

// Meta carries run metadata that is not produced by any stage.
type Meta struct {
	ScanID          string
	ResolvedAddress string
	StartedAt       time.Time
	CompletedAt     time.Time
}

// NewMeta starts the metadata for a run with a fresh scan ID.
func NewMeta() Meta {
	return Meta{
		ScanID:    uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// Service returns the record for port, or an all-Unknown record when the
// fingerprinter reported nothing for it.
func (r *ScanReport) Service(port int) scanning.ServiceRecord {
	if rec, ok := r.Services[port]; ok {
		return rec
	}
	return scanning.NewServiceRecord(port)
}

// ServicePorts returns the fingerprinted ports in discovery order.
func (r *ScanReport) ServicePorts() []int {
	var ports []int
	for _, port := range r.OpenPorts.Ports() {
		if _, ok := r.Services[port]; ok {
			ports = append(ports, port)
		}
	}
	return ports
}

// WebPorts returns the probed web ports in discovery order.
func (r *ScanReport) WebPorts() []int {
	var ports []int
	for _, port := range r.OpenPorts.Ports() {
		if _, ok := r.WebFindings[port]; ok {
			ports = append(ports, port)
		}
	}
	return ports
}

// Status returns the status recorded for stage.
func (r *ScanReport) Status(stage scanning.Stage) (scanning.StageStatus, bool) {
	s, ok := r.StageStatus[stage]
	return s, ok
}

// Duration returns the wall-clock time of the run.
func (r *ScanReport) Duration() time.Duration {
	if r.CompletedAt.IsZero() || r.CompletedAt.Before(r.StartedAt) {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
