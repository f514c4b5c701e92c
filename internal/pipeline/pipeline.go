// Package pipeline runs the portstrom stages in order: resolve the target,
// sweep ports, then fingerprint services and probe web ports, and finally
// assemble the report.
package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anstrom/portstrom/internal/config"
	"github.com/anstrom/portstrom/internal/logging"
	"github.com/anstrom/portstrom/internal/metrics"
	"github.com/anstrom/portstrom/internal/report"
	"github.com/anstrom/portstrom/internal/resolve"
	"github.com/anstrom/portstrom/internal/scanning"
	"github.com/anstrom/portstrom/internal/toolexec"
)

// Resolver maps a target to the address handed to the port scanner.
type Resolver interface {
	Resolve(ctx context.Context, target string) (string, error)
}

// PortDiscoverer finds open ports on a target.
type PortDiscoverer interface {
	Discover(ctx context.Context, target scanning.ScanTarget) (*scanning.PortSet, scanning.StageStatus)
}

// ServiceFingerprinter identifies services on open ports.
type ServiceFingerprinter interface {
	Fingerprint(ctx context.Context, target scanning.ScanTarget, ports *scanning.PortSet) (map[int]scanning.ServiceRecord, scanning.StageStatus)
}

// WebProber collects web findings for open web ports.
type WebProber interface {
	Probe(ctx context.Context, target scanning.ScanTarget, ports *scanning.PortSet) (map[int]scanning.WebFinding, scanning.StageStatus)
}

// Orchestrator drives one scan from target to report.
type Orchestrator struct {
	resolver      Resolver
	scanner       PortDiscoverer
	fingerprinter ServiceFingerprinter
	prober        WebProber
	parallel      bool
	metrics       *metrics.PrometheusMetrics
	logger        *logging.Logger
}

// New wires the stage adapters from cfg. Every tool invocation goes
// through runner and is counted in m.
func New(cfg *config.Config, runner toolexec.Runner, m *metrics.PrometheusMetrics, logger *logging.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if m == nil {
		m = metrics.GetGlobalMetrics()
	}
	metered := &meteredRunner{next: runner, metrics: m}

	var resolver Resolver
	if cfg.Scan.ResolveHostnames {
		r, err := resolve.New(cfg.Scan.Nameserver, 0, logger)
		if err != nil {
			return nil, err
		}
		resolver = r
	}

	return &Orchestrator{
		resolver:      resolver,
		scanner:       scanning.NewPortScanner(metered, cfg.Tools.PortScan, logger),
		fingerprinter: scanning.NewFingerprinter(metered, cfg.Tools.Fingerprint, logger),
		prober:        scanning.NewWebProber(metered, cfg.Tools.WebProbe, cfg.Scan.WebProbeConcurrency, logger),
		parallel:      cfg.Scan.ParallelStages,
		metrics:       m,
		logger:        logger.WithComponent("pipeline"),
	}, nil
}

// Run scans target and returns the report. Stage failures are recorded in
// the report, not returned. The error is non-nil only when ctx ended
// during the run; the partial report is still returned.
func (o *Orchestrator) Run(ctx context.Context, target scanning.ScanTarget) (*report.ScanReport, error) {
	meta := report.NewMeta()
	logger := o.logger.WithScanID(meta.ScanID).WithTarget(target.Address)
	logger.Info("Starting scan", "rate", target.Rate)

	statuses := make(map[scanning.Stage]scanning.StageStatus, len(scanning.Stages))

	ports := scanning.NewPortSet()
	addr, psStatus, ok := o.resolveTarget(ctx, logger, target.Address)
	// masscan and nmap both see the resolved address; the web probe keeps
	// the name for virtual hosts.
	scanTarget := target
	var psTime time.Duration
	if ok {
		meta.ResolvedAddress = addr
		scanTarget.Address = addr

		start := time.Now()
		ports, psStatus = o.scanner.Discover(ctx, scanTarget)
		psTime = time.Since(start)
		o.metrics.AddOpenPorts(ports.Len())
	}
	o.recordStage(logger, scanning.StagePortScan, psStatus, psTime)
	statuses[scanning.StagePortScan] = psStatus

	var (
		services map[int]scanning.ServiceRecord
		web      map[int]scanning.WebFinding
		fpStatus scanning.StageStatus
		wpStatus scanning.StageStatus
		fpTime   time.Duration
		wpTime   time.Duration
	)

	fingerprint := func() error {
		start := time.Now()
		services, fpStatus = o.fingerprinter.Fingerprint(ctx, scanTarget, ports)
		fpTime = time.Since(start)
		return nil
	}
	probe := func() error {
		start := time.Now()
		web, wpStatus = o.prober.Probe(ctx, target, ports)
		wpTime = time.Since(start)
		return nil
	}

	if o.parallel {
		var g errgroup.Group
		g.Go(fingerprint)
		g.Go(probe)
		_ = g.Wait()
	} else {
		_ = fingerprint()
		_ = probe()
	}

	o.recordStage(logger, scanning.StageFingerprint, fpStatus, fpTime)
	o.recordStage(logger, scanning.StageWebProbe, wpStatus, wpTime)
	statuses[scanning.StageFingerprint] = fpStatus
	statuses[scanning.StageWebProbe] = wpStatus

	o.metrics.AddServices(len(services))
	for _, f := range web {
		o.metrics.AddWebFindings("subdomain", len(f.Subdomains))
		o.metrics.AddWebFindings("directory", len(f.Directories))
	}

	meta.CompletedAt = time.Now()
	r := report.Build(meta, target, ports, services, web, statuses)
	logger.Info("Scan finished",
		"open_ports", r.OpenPorts.Len(),
		"services", len(r.Services),
		"web_findings", len(r.WebFindings),
		"duration", r.Duration())

	return r, ctx.Err()
}

// resolveTarget returns the address to scan. When resolution fails the
// returned status is the port-scan failure to record.
func (o *Orchestrator) resolveTarget(ctx context.Context, logger *logging.Logger, address string) (string, scanning.StageStatus, bool) {
	if o.resolver == nil {
		return address, scanning.StageStatus{}, true
	}
	addr, err := o.resolver.Resolve(ctx, address)
	if err != nil {
		logger.WithError(err).Error("Cannot resolve target")
		return "", scanning.Failed(scanning.OutcomeUnresolved, err.Error()), false
	}
	if addr != address {
		logger.Info("Resolved target", "address", addr)
	}
	return addr, scanning.StageStatus{}, true
}

func (o *Orchestrator) recordStage(logger *logging.Logger, stage scanning.Stage, status scanning.StageStatus, elapsed time.Duration) {
	o.metrics.RecordStage(string(stage), string(status.State), string(status.Outcome), elapsed)
	o.metrics.AddParseWarnings(string(stage), len(status.Warnings))

	fields := []any{"state", status.State, "outcome", status.Outcome, "duration", elapsed}
	if n := len(status.Warnings); n > 0 {
		fields = append(fields, "warnings", n)
	}
	if status.OK() {
		logger.InfoStage("Stage finished", string(stage), fields...)
		return
	}
	logger.Warn("Stage failed", append([]any{"stage", stage, "message", status.Message}, fields...)...)
}

// Publish renders r to path and records the outcome.
func (o *Orchestrator) Publish(r *report.ScanReport, path string, format report.Format) error {
	logger := o.logger.WithScanID(r.ScanID)
	resolved, _, _ := report.ResolveFormat(path, format)
	label := string(resolved)
	if label == "" {
		label = "unsupported"
	}

	if err := report.Render(r, path, format); err != nil {
		o.metrics.IncrementReportsRendered(label, "error")
		logger.WithError(err).Error("Report not written", "path", path)
		return err
	}

	o.metrics.IncrementReportsRendered(label, "success")
	logger.Info("Report written", "path", path, "format", label)
	return nil
}
