package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/portstrom/internal/scanning"
)

// maxDetailRunes caps the stage detail column width.
const maxDetailRunes = 60

// PrintSummary writes a human-readable overview of r to w.
func PrintSummary(w io.Writer, r *ScanReport) error {
	fmt.Fprintf(w, "Scan %s of %s", r.ScanID, r.Target.Address)
	if r.ResolvedAddress != "" && r.ResolvedAddress != r.Target.Address {
		fmt.Fprintf(w, " (%s)", r.ResolvedAddress)
	}
	fmt.Fprintf(w, ": %d open port(s) in %s\n\n", r.OpenPorts.Len(), r.Duration().Round(time.Millisecond))

	if r.OpenPorts.Len() > 0 {
		ports := tablewriter.NewWriter(w)
		ports.Header("Port", "Service", "Version", "OS", "Web")

		for _, port := range r.OpenPorts.Ports() {
			rec := r.Service(port)
			if err := ports.Append([]string{
				strconv.Itoa(port),
				rec.Service,
				rec.Version,
				rec.OS,
				webSummary(r, port),
			}); err != nil {
				return err
			}
		}
		if err := ports.Render(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	stages := tablewriter.NewWriter(w)
	stages.Header("Stage", "State", "Outcome", "Detail")
	for _, stage := range scanning.Stages {
		s, ok := r.Status(stage)
		row := []string{string(stage), "-", "not run", ""}
		if ok {
			row = []string{string(stage), string(s.State), string(s.Outcome), stageDetail(s)}
		}
		if err := stages.Append(row); err != nil {
			return err
		}
	}
	return stages.Render()
}

func webSummary(r *ScanReport, port int) string {
	finding, ok := r.WebFindings[port]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d subdomain(s), %d dir(s)", len(finding.Subdomains), len(finding.Directories))
}

// stageDetail condenses the message and warning count into one cell.
func stageDetail(s scanning.StageStatus) string {
	var parts []string
	if s.Message != "" {
		msg := s.Message
		if runes := []rune(msg); len(runes) > maxDetailRunes {
			msg = string(runes[:maxDetailRunes-3]) + "..."
		}
		parts = append(parts, msg)
	}
	if n := len(s.Warnings); n > 0 {
		parts = append(parts, fmt.Sprintf("%d warning(s)", n))
	}
	return strings.Join(parts, "; ")
}
