package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/anstrom/portstrom/internal/errors"
	"github.com/anstrom/portstrom/internal/metrics"
	"github.com/anstrom/portstrom/internal/toolexec"
)

// meteredRunner counts tool invocations by binary and result.
type meteredRunner struct {
	next    toolexec.Runner
	metrics *metrics.PrometheusMetrics
}

func (m *meteredRunner) Run(ctx context.Context, cmd toolexec.Command) (*toolexec.Result, error) {
	result, err := m.next.Run(ctx, cmd)
	m.metrics.IncrementToolInvocations(filepath.Base(cmd.Name), invocationResult(err))
	return result, err
}

func invocationResult(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(errors.GetCode(err)))
}
