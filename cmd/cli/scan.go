package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anstrom/portstrom/internal/config"
	"github.com/anstrom/portstrom/internal/errors"
	"github.com/anstrom/portstrom/internal/logging"
	"github.com/anstrom/portstrom/internal/metrics"
	"github.com/anstrom/portstrom/internal/pipeline"
	"github.com/anstrom/portstrom/internal/report"
	"github.com/anstrom/portstrom/internal/scanning"
)

// scanRequest carries the per-run values that do not live in the config.
type scanRequest struct {
	target string
	output string
	format string
}

// runScan executes the pipeline for one target and publishes the result.
// Stage and render failures are logged and only fail the command in
// strict mode; an interrupt always does.
func runScan(cmd *cobra.Command, cfg *config.Config, req scanRequest, logger *logging.Logger) error {
	target, err := scanning.NewScanTarget(req.target, cfg.Scan.Rate)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.GetGlobalMetrics()
	orchestrator, err := pipeline.New(cfg, newRunner(), m, logger)
	if err != nil {
		return err
	}

	r, runErr := orchestrator.Run(ctx, target)

	var publishErr error
	if req.output == "" {
		logger.Warn("No output path given, printing summary only")
		if err := report.PrintSummary(cmd.OutOrStdout(), r); err != nil {
			logger.Error("Failed to print summary", "error", err)
		}
	} else {
		publishErr = orchestrator.Publish(r, req.output, report.Format(req.format))
	}

	if cfg.Output.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			logger.Error("Failed to write metrics", "path", cfg.Output.MetricsFile, "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("scan interrupted: %w", runErr)
	}
	return strictFailure(cfg.Output.Strict, r, publishErr)
}

// strictFailure returns the error that should fail the command. Outside
// strict mode nothing does.
func strictFailure(strict bool, r *report.ScanReport, publishErr error) error {
	if !strict {
		return nil
	}

	var missing []error
	for _, stage := range scanning.Stages {
		if s, ok := r.Status(stage); ok && s.Outcome == scanning.OutcomeToolAbsent {
			missing = append(missing, fmt.Errorf("%s: %s", stage, s.Message))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tool missing: %w", stderrors.Join(missing...))
	}
	if errors.IsFatal(publishErr) {
		return publishErr
	}
	return nil
}
