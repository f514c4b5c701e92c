package scanning

import (
	"context"
	"strconv"
	"strings"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/portstrom/internal/config"
	"github.com/anstrom/portstrom/internal/logging"
	"github.com/anstrom/portstrom/internal/toolexec"
)

// Fingerprinter identifies services, versions and the host OS with nmap.
type Fingerprinter struct {
	runner toolexec.Runner
	tool   config.ToolConfig
	logger *logging.Logger
}

// NewFingerprinter creates a fingerprinter that invokes tool through runner.
func NewFingerprinter(runner toolexec.Runner, tool config.ToolConfig, logger *logging.Logger) *Fingerprinter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Fingerprinter{
		runner: runner,
		tool:   tool,
		logger: logger.WithStage(string(StageFingerprint)),
	}
}

// buildScanOptions returns the nmap options for a SYN, version, OS and
// default-script scan of ports on address.
func (f *Fingerprinter) buildScanOptions(address string, ports []int) []nmap.Option {
	portList := make([]string, len(ports))
	for i, p := range ports {
		portList[i] = strconv.Itoa(p)
	}

	options := []nmap.Option{
		nmap.WithBinaryPath(f.tool.Path),
		nmap.WithSYNScan(),
		nmap.WithServiceInfo(),
		nmap.WithOSDetection(),
		nmap.WithPorts(strings.Join(portList, ",")),
		nmap.WithScripts("default"),
		nmap.WithTimingTemplate(nmap.TimingAggressive),
	}
	if len(f.tool.ExtraArgs) > 0 {
		options = append(options, nmap.WithCustomArguments(f.tool.ExtraArgs...))
	}
	return append(options, nmap.WithTargets(address))
}

// Command builds the nmap invocation. The nmap scanner is only used to
// assemble arguments; execution goes through the runner so the normal text
// output can be parsed.
func (f *Fingerprinter) Command(ctx context.Context, address string, ports []int) (toolexec.Command, error) {
	scanner, err := nmap.NewScanner(ctx, f.buildScanOptions(address, ports)...)
	if err != nil {
		return toolexec.Command{}, err
	}
	return toolexec.Command{Name: f.tool.Path, Args: scanner.Args(), Timeout: f.tool.Timeout}, nil
}

// Fingerprint runs nmap once over every port in ports. An empty set skips
// the invocation entirely. A failed invocation yields an empty mapping.
func (f *Fingerprinter) Fingerprint(ctx context.Context, target ScanTarget, ports *PortSet) (map[int]ServiceRecord, StageStatus) {
	if ports.Len() == 0 {
		f.logger.Info("No open ports, skipping fingerprint")
		return map[int]ServiceRecord{}, Succeeded(OutcomeSkipped, nil)
	}

	cmd, err := f.Command(ctx, target.Address, ports.Ports())
	if err != nil {
		f.logger.Error("Cannot build nmap command", "error", err)
		return map[int]ServiceRecord{}, Failed(OutcomeToolError, err.Error())
	}
	f.logger.Info("Running fingerprint", "command", cmd.String())

	result, err := f.runner.Run(ctx, cmd)
	if err != nil {
		f.logger.Error("Fingerprint failed", "error", err, "stderr", result.StderrTail())
		return map[int]ServiceRecord{}, FailedFromError(err)
	}

	services, warnings := ParseNmapOutput(result.Lines(), ports)
	for _, w := range warnings {
		f.logger.Warn("Skipped nmap output line", "warning", w)
	}

	outcome := OutcomeCompleted
	if len(services) == 0 {
		outcome = OutcomeEmpty
	}
	f.logger.Info("Fingerprint completed",
		"services", len(services),
		"duration", result.Duration)

	return services, Succeeded(outcome, warnings)
}
