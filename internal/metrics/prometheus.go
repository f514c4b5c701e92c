// Package metrics provides Prometheus-based metrics collection for portstrom.
// A one-shot CLI has no scrape endpoint, so the registry is exported in the
// node_exporter textfile format at the end of a run.
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all portstrom metrics
	namespace = "portstrom"

	// Subsystems
	subsystemStage  = "stage"
	subsystemTool   = "tool"
	subsystemReport = "report"
	subsystemSystem = "system"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Stage metrics
	stagesTotal   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	parseWarnings *prometheus.CounterVec

	// Finding metrics
	portsDiscovered     prometheus.Counter
	servicesIdentified  prometheus.Counter
	webFindingsRecorded *prometheus.CounterVec

	// Tool metrics
	toolInvocations *prometheus.CounterVec

	// Report metrics
	reportsRendered *prometheus.CounterVec

	// System metrics
	goroutines prometheus.Gauge
	uptime     prometheus.Gauge

	startTime time.Time
	mu        sync.Mutex
	registry  *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initStageMetrics()
	pm.initFindingMetrics()
	pm.initToolMetrics()
	pm.initSystemMetrics()
	pm.registerMetrics()

	registry.MustRegister(collectors.NewGoCollector())

	return pm
}

// initStageMetrics initializes pipeline stage metrics
func (pm *PrometheusMetrics) initStageMetrics() {
	pm.stagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStage,
			Name:      "runs_total",
			Help:      "Total number of pipeline stage runs by stage, state and outcome",
		},
		[]string{"stage", "state", "outcome"},
	)

	pm.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemStage,
			Name:      "duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0, 1800.0},
		},
		[]string{"stage"},
	)

	pm.parseWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStage,
			Name:      "parse_warnings_total",
			Help:      "Tool output lines that did not match the expected grammar",
		},
		[]string{"stage"},
	)
}

// initFindingMetrics initializes counters for parsed findings
func (pm *PrometheusMetrics) initFindingMetrics() {
	pm.portsDiscovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStage,
			Name:      "open_ports_total",
			Help:      "Open ports reported by the port scanner",
		},
	)

	pm.servicesIdentified = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStage,
			Name:      "services_total",
			Help:      "Service records produced by the fingerprinter",
		},
	)

	pm.webFindingsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStage,
			Name:      "web_findings_total",
			Help:      "Web probe findings by kind",
		},
		[]string{"kind"},
	)
}

// initToolMetrics initializes tool invocation and report metrics
func (pm *PrometheusMetrics) initToolMetrics() {
	pm.toolInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemTool,
			Name:      "invocations_total",
			Help:      "External tool invocations by tool and result",
		},
		[]string{"tool", "result"},
	)

	pm.reportsRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemReport,
			Name:      "rendered_total",
			Help:      "Reports rendered by format and status",
		},
		[]string{"format", "status"},
	)
}

// initSystemMetrics initializes system-related metrics
func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.stagesTotal,
		pm.stageDuration,
		pm.parseWarnings,
		pm.portsDiscovered,
		pm.servicesIdentified,
		pm.webFindingsRecorded,
		pm.toolInvocations,
		pm.reportsRendered,
		pm.goroutines,
		pm.uptime,
	)
}

// GetRegistry returns the Prometheus registry
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// RecordStage records the outcome and duration of a pipeline stage
func (pm *PrometheusMetrics) RecordStage(stage, state, outcome string, duration time.Duration) {
	pm.stagesTotal.WithLabelValues(stage, state, outcome).Inc()
	pm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// AddParseWarnings adds to the parse warning counter for a stage
func (pm *PrometheusMetrics) AddParseWarnings(stage string, count int) {
	if count > 0 {
		pm.parseWarnings.WithLabelValues(stage).Add(float64(count))
	}
}

// AddOpenPorts adds to the discovered open ports counter
func (pm *PrometheusMetrics) AddOpenPorts(count int) {
	pm.portsDiscovered.Add(float64(count))
}

// AddServices adds to the identified services counter
func (pm *PrometheusMetrics) AddServices(count int) {
	pm.servicesIdentified.Add(float64(count))
}

// AddWebFindings adds to the web findings counter for a kind
func (pm *PrometheusMetrics) AddWebFindings(kind string, count int) {
	pm.webFindingsRecorded.WithLabelValues(kind).Add(float64(count))
}

// IncrementToolInvocations increments the invocation counter for a tool
func (pm *PrometheusMetrics) IncrementToolInvocations(tool, result string) {
	pm.toolInvocations.WithLabelValues(tool, result).Inc()
}

// IncrementReportsRendered increments the rendered reports counter
func (pm *PrometheusMetrics) IncrementReportsRendered(format, status string) {
	pm.reportsRendered.WithLabelValues(format, status).Inc()
}

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())
}

// WriteTextfile refreshes system metrics and writes the registry to path in
// the Prometheus text exposition format.
func (pm *PrometheusMetrics) WriteTextfile(path string) error {
	pm.UpdateSystemMetrics()
	return prometheus.WriteToTextfile(path, pm.registry)
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
