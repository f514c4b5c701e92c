package scanning

import (
	"context"
	"strconv"

	"github.com/anstrom/portstrom/internal/config"
	"github.com/anstrom/portstrom/internal/logging"
	"github.com/anstrom/portstrom/internal/toolexec"
)

// fullPortRange is handed to masscan so every TCP port is swept.
const fullPortRange = "-p1-65535"

// PortScanner discovers open ports with masscan.
type PortScanner struct {
	runner toolexec.Runner
	tool   config.ToolConfig
	logger *logging.Logger
}

// NewPortScanner creates a port scanner that invokes tool through runner.
func NewPortScanner(runner toolexec.Runner, tool config.ToolConfig, logger *logging.Logger) *PortScanner {
	if logger == nil {
		logger = logging.Default()
	}
	return &PortScanner{
		runner: runner,
		tool:   tool,
		logger: logger.WithStage(string(StagePortScan)),
	}
}

// Command builds the masscan invocation for target.
func (s *PortScanner) Command(target ScanTarget) toolexec.Command {
	args := []string{
		target.Address,
		fullPortRange,
		"--rate", strconv.Itoa(target.Rate),
		"--open-only",
	}
	args = append(args, s.tool.ExtraArgs...)
	return toolexec.Command{Name: s.tool.Path, Args: args, Timeout: s.tool.Timeout}
}

// Discover sweeps the full port range of target. Any invocation failure
// yields an empty set and a failed status; the stage never returns an error.
func (s *PortScanner) Discover(ctx context.Context, target ScanTarget) (*PortSet, StageStatus) {
	cmd := s.Command(target)
	s.logger.Info("Running port scan", "command", cmd.String(), "rate", target.Rate)

	result, err := s.runner.Run(ctx, cmd)
	if err != nil {
		s.logger.Error("Port scan failed", "error", err, "stderr", result.StderrTail())
		return NewPortSet(), FailedFromError(err)
	}

	ports, warnings := ParseMasscanOutput(result.Lines())
	for _, w := range warnings {
		s.logger.Warn("Skipped masscan output line", "warning", w)
	}

	outcome := OutcomeCompleted
	if ports.Len() == 0 {
		outcome = OutcomeEmpty
	}
	s.logger.Info("Port scan completed",
		"open_ports", ports.Ports(),
		"duration", result.Duration)

	return ports, Succeeded(outcome, warnings)
}
