package report

import (
	"encoding/json"
	"io"
)

const jsonIndent = "    "

func writeJSON(w io.Writer, r *ScanReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", jsonIndent)
	return enc.Encode(r)
}

// ReadJSON decodes a report previously written as JSON.
func ReadJSON(rd io.Reader) (*ScanReport, error) {
	var r ScanReport
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
