package scanning

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMasscanOutput(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		want     []int
		warnings int
	}{
		{
			name: "discovered lines",
			lines: []string{
				"Discovered open port 80/tcp on 10.0.0.1",
				"Discovered open port 22/tcp on 10.0.0.1",
			},
			want: []int{80, 22},
		},
		{
			name: "duplicates collapse",
			lines: []string{
				"Discovered open port 443/tcp on 10.0.0.1",
				"Discovered open port 443/tcp on 10.0.0.2",
				"Discovered open port 53/udp on 10.0.0.1",
			},
			want: []int{443, 53},
		},
		{
			name: "banner lines are ignored",
			lines: []string{
				"Starting masscan 1.3.2 (http://bit.ly/14GZzcT) at 2024-05-01 10:00:00 GMT",
				"Initiating SYN Stealth Scan",
				"Scanning 1 hosts [65535 ports/host]",
				"Discovered open port 8080/tcp on 10.0.0.1",
			},
			want: []int{8080},
		},
		{
			name: "malformed open lines are warnings",
			lines: []string{
				"Discovered open port http/tcp on 10.0.0.1",
				"Discovered open port 70000/tcp on 10.0.0.1",
				"open",
				"Discovered open port 25/tcp on 10.0.0.1",
			},
			want:     []int{25},
			warnings: 3,
		},
		{
			name:  "no output",
			lines: nil,
			want:  []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ports, warnings := ParseMasscanOutput(tt.lines)
			assert.Equal(t, tt.want, ports.Ports())
			assert.Len(t, warnings, tt.warnings)
		})
	}
}

func TestParseMasscanOutputIgnoresOrder(t *testing.T) {
	lines := []string{
		"Discovered open port 22/tcp on 10.0.0.1",
		"Discovered open port 80/tcp on 10.0.0.1",
		"Discovered open port 443/tcp on 10.0.0.1",
		"Discovered open port 80/tcp on 10.0.0.1",
	}
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {1, 3, 0, 2}}

	for _, order := range orders {
		shuffled := make([]string, len(order))
		for i, idx := range order {
			shuffled[i] = lines[idx]
		}
		ports, warnings := ParseMasscanOutput(shuffled)
		assert.ElementsMatch(t, []int{22, 80, 443}, ports.Ports())
		assert.Empty(t, warnings)
	}
}

const nmapSingleHost = `Starting Nmap 7.94 ( https://nmap.org ) at 2024-05-01 10:00 UTC
Nmap scan report for scanme.example (10.0.0.5)
Host is up (0.010s latency).
Not shown: 65532 closed tcp ports (reset)

PORT    STATE  SERVICE VERSION
22/tcp  open   ssh     OpenSSH 8.9p1 Ubuntu 3ubuntu0.6 (Ubuntu Linux; protocol 2.0)
| ssh-hostkey:
|   256 aa:bb:cc (ECDSA)
80/tcp  open   http    nginx 1.18.0 (Ubuntu)
|_http-title: Welcome to nginx!
443/tcp closed https
Device type: general purpose
Running: Linux 5.X
OS details: Linux 5.0 - 5.14
Network Distance: 1 hop
Service Info: OS: Linux; CPE: cpe:/o:linux:linux_kernel

TRACEROUTE
HOP RTT     ADDRESS
1   0.50 ms 10.0.0.5

OS and Service detection performed. Please report any incorrect results at https://nmap.org/submit/ .
Nmap done: 1 IP address (1 host up) scanned in 12.34 seconds`

func TestParseNmapOutput(t *testing.T) {
	services, warnings := ParseNmapOutput(strings.Split(nmapSingleHost, "\n"), NewPortSet(22, 80, 443))
	require.Empty(t, warnings)
	require.Len(t, services, 2)

	assert.Equal(t, ServiceRecord{
		Port:    22,
		Service: "ssh",
		Version: "OpenSSH 8.9p1 Ubuntu 3ubuntu0.6 (Ubuntu Linux; protocol 2.0)",
		OS:      "Linux 5.0 - 5.14",
	}, services[22])
	assert.Equal(t, ServiceRecord{
		Port:    80,
		Service: "http",
		Version: "nginx 1.18.0 (Ubuntu)",
		OS:      "Linux 5.0 - 5.14",
	}, services[80])
	assert.NotContains(t, services, 443)
}

func TestParseNmapOutputCases(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		requested []int
		want      map[int]ServiceRecord
		warnings  int
	}{
		{
			name: "service info os fallback",
			output: `Nmap scan report for 10.0.0.7
PORT   STATE SERVICE VERSION
21/tcp open  ftp     vsftpd 3.0.3
Service Info: Host: files; OS: Unix; CPE: cpe:/o:unix`,
			want: map[int]ServiceRecord{
				21: {Port: 21, Service: "ftp", Version: "vsftpd 3.0.3", OS: "Unix"},
			},
		},
		{
			name: "os details wins regardless of order",
			output: `Nmap scan report for 10.0.0.7
Service Info: OS: Windows
OS details: Microsoft Windows Server 2019
445/tcp open microsoft-ds`,
			want: map[int]ServiceRecord{
				445: {Port: 445, Service: "microsoft-ds", Version: Unknown, OS: "Microsoft Windows Server 2019"},
			},
		},
		{
			name: "bare open line keeps defaults",
			output: `Nmap scan report for 10.0.0.7
3306/tcp open`,
			want: map[int]ServiceRecord{
				3306: NewServiceRecord(3306),
			},
		},
		{
			name: "open filtered counts as open",
			output: `Nmap scan report for 10.0.0.7
161/udp open|filtered snmp`,
			want: map[int]ServiceRecord{
				161: {Port: 161, Service: "snmp", Version: Unknown, OS: Unknown},
			},
		},
		{
			name: "os does not leak between hosts",
			output: `Nmap scan report for 10.0.0.1
22/tcp open ssh OpenSSH 9.0
OS details: Linux 6.1
Nmap scan report for 10.0.0.2
80/tcp open http Apache httpd 2.4.57`,
			want: map[int]ServiceRecord{
				22: {Port: 22, Service: "ssh", Version: "OpenSSH 9.0", OS: "Linux 6.1"},
				80: {Port: 80, Service: "http", Version: "Apache httpd 2.4.57", OS: Unknown},
			},
		},
		{
			name: "first host wins on duplicate port",
			output: `Nmap scan report for 10.0.0.1
22/tcp open ssh OpenSSH 9.0
Nmap scan report for 10.0.0.2
22/tcp open ssh Dropbear sshd 2022.83`,
			want: map[int]ServiceRecord{
				22: {Port: 22, Service: "ssh", Version: "OpenSSH 9.0", OS: Unknown},
			},
			warnings: 1,
		},
		{
			name: "unrequested port is a warning",
			output: `Nmap scan report for 10.0.0.1
22/tcp open ssh
8443/tcp open https-alt`,
			requested: []int{22},
			want: map[int]ServiceRecord{
				22: {Port: 22, Service: "ssh", Version: Unknown, OS: Unknown},
			},
			warnings: 1,
		},
		{
			name: "malformed port line is a warning",
			output: `Nmap scan report for 10.0.0.1
8080/tcp
22/tcp open ssh`,
			want: map[int]ServiceRecord{
				22: {Port: 22, Service: "ssh", Version: Unknown, OS: Unknown},
			},
			warnings: 1,
		},
		{
			name: "script output mentioning open is ignored",
			output: `Nmap scan report for 10.0.0.1
80/tcp open http
|_http-open-proxy: Proxy might be redirecting requests
| 443/tcp open https`,
			want: map[int]ServiceRecord{
				80: {Port: 80, Service: "http", Version: Unknown, OS: Unknown},
			},
		},
		{
			name:   "no hosts up",
			output: "Note: Host seems down. If it is really up, but blocking our ping probes, try -Pn\nNmap done: 1 IP address (0 hosts up) scanned in 3.04 seconds",
			want:   map[int]ServiceRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			services, warnings := ParseNmapOutput(strings.Split(tt.output, "\n"), NewPortSet(tt.requested...))
			assert.Equal(t, tt.want, services)
			assert.Len(t, warnings, tt.warnings)
			for port := range services {
				if len(tt.requested) > 0 {
					assert.Contains(t, tt.requested, port)
				}
			}
		})
	}
}

func TestParseNmapOutputWarningText(t *testing.T) {
	_, warnings := ParseNmapOutput([]string{"Nmap scan report for h", "9/tcp"}, nil)
	require.Len(t, warnings, 1)
	assert.Equal(t, `[PARSE_ANOMALY] nmap output line 2: malformed port line: "9/tcp"`, warnings[0])
}

func TestParseProbeOutput(t *testing.T) {
	lines := []string{
		"[subdomain] api.example.com",
		"",
		"[directory] /admin",
		"scanme.example:80",
		"[subdomain] [directory] cdn.example.com/static",
		"  [directory] /backup  ",
	}

	finding := ParseProbeOutput(80, lines, DefaultProbeMarkers)
	assert.Equal(t, 80, finding.Port)
	assert.Equal(t, []string{"[subdomain] api.example.com", "[subdomain] [directory] cdn.example.com/static"}, finding.Subdomains)
	assert.Equal(t, []string{"[directory] /admin", "[directory] /backup"}, finding.Directories)

	custom := ParseProbeOutput(443, lines, ProbeMarkers{Subdomain: "api.", Directory: "/admin"})
	assert.Equal(t, []string{"[subdomain] api.example.com"}, custom.Subdomains)
	assert.Equal(t, []string{"[directory] /admin"}, custom.Directories)

	empty := ParseProbeOutput(443, nil, DefaultProbeMarkers)
	assert.Equal(t, NewWebFinding(443), empty)
}
