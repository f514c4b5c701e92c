package report

import (
	"path/filepath"
	"strings"
)

// Format selects a report serializer.
type Format string

// Supported report formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatCSV, FormatHTML}

// ParseFormat converts a name such as "JSON" or ".json" into a Format.
func ParseFormat(name string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")))
	for _, known := range Formats {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// FormatFromPath sniffs the format from the file extension, ignoring case.
func FormatFromPath(path string) (Format, bool) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", false
	}
	return ParseFormat(ext)
}

// ResolveFormat picks the explicit format when given, otherwise the one
// implied by path. The second return value is the name that failed to
// resolve, for error reporting.
func ResolveFormat(path string, explicit Format) (Format, string, bool) {
	if explicit != "" {
		f, ok := ParseFormat(string(explicit))
		return f, string(explicit), ok
	}
	f, ok := FormatFromPath(path)
	return f, filepath.Ext(path), ok
}
