// Package scanning wraps the three external tools portstrom drives and
// turns their line output into structured findings.
//
// # Overview
//
// Each pipeline stage has an adapter and a pure parser:
//
//   - PortScanner runs masscan across 1-65535 and ParseMasscanOutput
//     collects the ports from "Discovered open port <port>/<proto>" lines.
//   - Fingerprinter runs nmap with SYN, version, OS and default-script
//     detection over the discovered ports and ParseNmapOutput turns the
//     per-host blocks into ServiceRecords.
//   - WebProber runs the web probe once per open port 80 or 443 and
//     ParseProbeOutput sorts lines into subdomains and directories.
//
// Adapters never return errors. Every outcome, including a missing binary,
// a nonzero exit or a timeout, is recorded in the StageStatus returned
// alongside the (possibly empty) findings.
//
// # Nmap Output Grammar
//
// ParseNmapOutput reads the normal (-oN style) output line by line:
//
//	Nmap scan report for <host>            starts a new host block
//	<port>/<proto> <state> [svc [version]]  binds a record when state has "open"
//	OS details: <os>                        host OS, preferred
//	Service Info: ...; OS: <os>; ...        host OS, fallback
//	| script output                         ignored
//
// The host OS is applied to every record of its block. Lines that begin
// like a port but do not match, ports that were not requested, and ports
// already reported by an earlier host become parse warnings.
//
// # Usage
//
//	runner := toolexec.NewExecRunner()
//	scanner := scanning.NewPortScanner(runner, cfg.Tools.PortScan, logger)
//
//	target, err := scanning.NewScanTarget("10.0.0.5", 1000)
//	if err != nil {
//		return err
//	}
//	ports, status := scanner.Discover(ctx, target)
//	if !status.OK() {
//		logger.Warn("port scan failed", "outcome", status.Outcome)
//	}
//
// # Thread Safety
//
// Adapters hold no mutable state and may be shared between goroutines.
// WebProber fans out per-port invocations itself and merges results under
// a mutex. PortSet is not safe for concurrent mutation.
package scanning
