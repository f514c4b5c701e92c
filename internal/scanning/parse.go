package scanning

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/anstrom/portstrom/internal/errors"
)

const (
	nmapHostHeader    = "Nmap scan report for"
	nmapServiceInfo   = "Service Info:"
	nmapOSDetails     = "OS details:"
	nmapScriptPrefix  = "|"
	serviceInfoOSPart = "OS:"
)

// OS sources, lowest precedence first.
const (
	osFromNone = iota
	osFromServiceInfo
	osFromOSDetails
)

var (
	// portToken matches "<port>/<proto>", as in "80/tcp".
	portToken = regexp.MustCompile(`^(\d+)/([a-z]+)$`)

	// nmapPortLine matches "<port>/<proto> <state> [service [version...]]".
	nmapPortLine = regexp.MustCompile(`^(\d+)/([a-z]+)\s+(\S+)(?:\s+(\S+))?(?:\s+(.+))?$`)

	// looksLikePort catches lines that begin like a port line.
	looksLikePort = regexp.MustCompile(`^\d+/`)
)

func parseWarning(tool string, line int, text, reason string) string {
	return (&errors.ParseError{Tool: tool, Line: line, Text: text, Reason: reason}).Error()
}

// ParseMasscanOutput extracts open ports from masscan line output such as
// "Discovered open port 80/tcp on 10.0.0.1". Lines that mention "open" but
// carry no usable port token are reported as warnings.
func ParseMasscanOutput(lines []string) (*PortSet, []string) {
	ports := NewPortSet()
	var warnings []string

	for i, line := range lines {
		if !strings.Contains(line, "open") {
			continue
		}

		var match []string
		for _, field := range strings.Fields(line) {
			if match = portToken.FindStringSubmatch(field); match != nil {
				break
			}
		}
		if match == nil {
			warnings = append(warnings, parseWarning("masscan", i+1, line, "no port token"))
			continue
		}

		port, err := strconv.Atoi(match[1])
		if err != nil || port < minPort || port > maxPort {
			warnings = append(warnings, parseWarning("masscan", i+1, line, "port out of range"))
			continue
		}
		ports.Add(port)
	}

	return ports, warnings
}

// nmapHost accumulates state for one "Nmap scan report for" block.
type nmapHost struct {
	ports    []int
	os       string
	osSource int
}

func (h *nmapHost) setOS(os string, source int) {
	if os == "" || source < h.osSource {
		return
	}
	h.os = os
	h.osSource = source
}

// ParseNmapOutput parses nmap normal output into service records keyed by
// port. Each open port line binds its own record. The host OS, from
// "OS details:" or else "Service Info: OS:", applies to every record in the
// same host block. When requested is non-empty, open ports outside it are
// reported and skipped. A port reported by more than one host keeps the
// first record.
func ParseNmapOutput(lines []string, requested *PortSet) (map[int]ServiceRecord, []string) {
	records := make(map[int]ServiceRecord)
	var warnings []string
	host := &nmapHost{}

	flush := func() {
		if host.os != "" {
			for _, port := range host.ports {
				rec := records[port]
				rec.OS = host.os
				records[port] = rec
			}
		}
		host = &nmapHost{}
	}

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue

		case strings.HasPrefix(line, nmapHostHeader):
			flush()

		case strings.HasPrefix(line, nmapScriptPrefix):
			continue

		case strings.HasPrefix(line, nmapOSDetails):
			host.setOS(strings.TrimSpace(strings.TrimPrefix(line, nmapOSDetails)), osFromOSDetails)

		case strings.HasPrefix(line, nmapServiceInfo):
			host.setOS(serviceInfoOS(strings.TrimPrefix(line, nmapServiceInfo)), osFromServiceInfo)

		case looksLikePort.MatchString(line):
			match := nmapPortLine.FindStringSubmatch(line)
			if match == nil {
				warnings = append(warnings, parseWarning("nmap", i+1, raw, "malformed port line"))
				continue
			}
			if !strings.Contains(match[3], "open") {
				continue
			}

			port, err := strconv.Atoi(match[1])
			if err != nil || port < minPort || port > maxPort {
				warnings = append(warnings, parseWarning("nmap", i+1, raw, "port out of range"))
				continue
			}
			if requested.Len() > 0 && !requested.Contains(port) {
				warnings = append(warnings, parseWarning("nmap", i+1, raw, "port was not requested"))
				continue
			}
			if _, seen := records[port]; seen {
				warnings = append(warnings, parseWarning("nmap", i+1, raw, "port already reported"))
				continue
			}

			rec := NewServiceRecord(port)
			if match[4] != "" {
				rec.Service = match[4]
			}
			if version := strings.TrimSpace(match[5]); version != "" {
				rec.Version = version
			}
			records[port] = rec
			host.ports = append(host.ports, port)
		}
	}
	flush()

	return records, warnings
}

// serviceInfoOS extracts the OS field from the remainder of a
// "Service Info:" line, e.g. " Host: web01; OS: Linux; CPE: ...".
func serviceInfoOS(rest string) string {
	for _, part := range strings.Split(rest, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, serviceInfoOSPart) {
			return strings.TrimSpace(strings.TrimPrefix(part, serviceInfoOSPart))
		}
	}
	return ""
}

// ProbeMarkers are the substrings used to classify web probe output.
type ProbeMarkers struct {
	Subdomain string
	Directory string
}

// DefaultProbeMarkers are used when none are configured.
var DefaultProbeMarkers = ProbeMarkers{Subdomain: "subdomain", Directory: "directory"}

// ParseProbeOutput classifies web probe output lines for port. A line
// carrying both markers counts as a subdomain; lines with neither are
// dropped.
func ParseProbeOutput(port int, lines []string, markers ProbeMarkers) WebFinding {
	finding := NewWebFinding(port)
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
		case markers.Subdomain != "" && strings.Contains(line, markers.Subdomain):
			finding.Subdomains = append(finding.Subdomains, line)
		case markers.Directory != "" && strings.Contains(line, markers.Directory):
			finding.Directories = append(finding.Directories, line)
		}
	}
	return finding
}
