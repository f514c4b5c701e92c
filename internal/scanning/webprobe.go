package scanning

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/anstrom/portstrom/internal/config"
	"github.com/anstrom/portstrom/internal/logging"
	"github.com/anstrom/portstrom/internal/toolexec"
)

// WebProber runs the web probe tool once per open web port.
type WebProber struct {
	runner      toolexec.Runner
	tool        config.WebProbeConfig
	markers     ProbeMarkers
	concurrency int
	logger      *logging.Logger
}

// NewWebProber creates a web prober. Concurrency below one probes ports
// sequentially.
func NewWebProber(runner toolexec.Runner, tool config.WebProbeConfig, concurrency int, logger *logging.Logger) *WebProber {
	if logger == nil {
		logger = logging.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}

	markers := DefaultProbeMarkers
	if tool.SubdomainMarker != "" {
		markers.Subdomain = tool.SubdomainMarker
	}
	if tool.DirectoryMarker != "" {
		markers.Directory = tool.DirectoryMarker
	}

	return &WebProber{
		runner:      runner,
		tool:        tool,
		markers:     markers,
		concurrency: concurrency,
		logger:      logger.WithStage(string(StageWebProbe)),
	}
}

// Command expands the argument template for host and port.
func (p *WebProber) Command(host string, port int) toolexec.Command {
	replacer := strings.NewReplacer(
		"{hostport}", net.JoinHostPort(host, strconv.Itoa(port)),
		"{host}", host,
		"{port}", strconv.Itoa(port),
	)

	args := make([]string, 0, len(p.tool.Args)+len(p.tool.ExtraArgs))
	for _, arg := range p.tool.Args {
		args = append(args, replacer.Replace(arg))
	}
	args = append(args, p.tool.ExtraArgs...)
	return toolexec.Command{Name: p.tool.Path, Args: args, Timeout: p.tool.Timeout}
}

// Probe runs the web probe against every open web port. A failed port
// still gets an empty finding and does not stop the others; the stage
// fails if any port failed.
func (p *WebProber) Probe(ctx context.Context, target ScanTarget, ports *PortSet) (map[int]WebFinding, StageStatus) {
	var webPorts []int
	for _, port := range ports.Ports() {
		if IsWebPort(port) {
			webPorts = append(webPorts, port)
		}
	}
	if len(webPorts) == 0 {
		p.logger.Info("No open web ports, skipping web probe")
		return map[int]WebFinding{}, Succeeded(OutcomeSkipped, nil)
	}

	var (
		mu       sync.Mutex
		findings = make(map[int]WebFinding, len(webPorts))
		failures = make(map[int]StageStatus)
	)

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, port := range webPorts {
		g.Go(func() error {
			finding, failure := p.probePort(ctx, target.Address, port)

			mu.Lock()
			defer mu.Unlock()
			findings[port] = finding
			if failure != nil {
				failures[port] = *failure
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		var first StageStatus
		messages := make([]string, 0, len(failures))
		for _, port := range webPorts {
			f, ok := failures[port]
			if !ok {
				continue
			}
			if len(messages) == 0 {
				first = f
			}
			messages = append(messages, fmt.Sprintf("port %d: %s", port, f.Message))
		}
		p.logger.Warn("Web probe finished with failures", "failed_ports", len(failures), "ports", len(webPorts))
		return findings, Failed(first.Outcome, strings.Join(messages, "; "))
	}

	outcome := OutcomeEmpty
	for _, f := range findings {
		if len(f.Subdomains) > 0 || len(f.Directories) > 0 {
			outcome = OutcomeCompleted
			break
		}
	}
	p.logger.Info("Web probe completed", "ports", webPorts)
	return findings, Succeeded(outcome, nil)
}

func (p *WebProber) probePort(ctx context.Context, host string, port int) (WebFinding, *StageStatus) {
	cmd := p.Command(host, port)
	logger := p.logger.WithFields("port", port)
	logger.Info("Running web probe", "command", cmd.String())

	result, err := p.runner.Run(ctx, cmd)
	if err != nil {
		logger.Error("Web probe failed", "error", err, "stderr", result.StderrTail())
		status := FailedFromError(err)
		return NewWebFinding(port), &status
	}

	finding := ParseProbeOutput(port, result.Lines(), p.markers)
	logger.Debug("Web probe parsed",
		"subdomains", len(finding.Subdomains),
		"directories", len(finding.Directories))
	return finding, nil
}
