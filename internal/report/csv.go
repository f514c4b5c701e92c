package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

var csvHeader = []string{"Target", "Port", "Service", "Version", "OS"}

// writeCSV writes one row per fingerprinted port, in discovery order.
// Ports without a service record are not represented.
func writeCSV(w io.Writer, r *ScanReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, port := range r.ServicePorts() {
		rec := r.Services[port]
		row := []string{
			sanitizeCSVField(r.Target.Address),
			strconv.Itoa(port),
			sanitizeCSVField(rec.Service),
			sanitizeCSVField(rec.Version),
			sanitizeCSVField(rec.OS),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// sanitizeCSVField neutralizes values that spreadsheets would evaluate as
// formulas. Tool output is attacker-influenced, e.g. service banners.
func sanitizeCSVField(s string) string {
	if s == "" {
		return s
	}
	if strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
