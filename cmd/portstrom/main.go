// Command portstrom scans a single target with masscan, nmap and a web
// probe tool and writes a combined report.
package main

import "github.com/anstrom/portstrom/cmd/cli"

// Build information, set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
