// Package cli provides the portstrom command line: flag and config handling,
// logging setup, and the scan command that drives the pipeline.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/portstrom/internal/config"
	"github.com/anstrom/portstrom/internal/logging"
	"github.com/anstrom/portstrom/internal/toolexec"
)

const (
	envPrefix         = "PORTSTROM"
	defaultConfigFile = "config.yaml"
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// newRunner creates the runner used for external tools. Tests replace it.
var newRunner = func() toolexec.Runner {
	return toolexec.NewExecRunner()
}

// options holds the raw flag values for one invocation.
type options struct {
	configFile string
	verbose    bool
}

// NewRootCommand builds the portstrom command.
func NewRootCommand() *cobra.Command {
	cmd, _, _ := newCommand()
	return cmd
}

// newCommand builds the command along with the viper instance and options
// its flags are bound to.
func newCommand() (*cobra.Command, *viper.Viper, *options) {
	opts := &options{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "portstrom <target>",
		Short: "Port, service and web reconnaissance for a single host",
		Long: `Portstrom sweeps a target with masscan, fingerprints the open ports with
nmap, probes web ports with a configurable tool, and writes the combined
report as JSON, CSV or HTML.

Without --output a summary is printed to stdout and nothing is written.`,
		Example: `  portstrom 10.0.0.5
  portstrom scanme.example.org --rate 5000 --output report.html
  portstrom 192.168.1.0/24 --output results.dat --format json --strict`,
		Args:          cobra.ExactArgs(1),
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, opts)
			if err != nil {
				return err
			}
			logger := initLogging(cfg, opts.verbose)
			return runScan(cmd, cfg, scanRequest{
				target: args[0],
				output: v.GetString("output.path"),
				format: v.GetString("output.format"),
			}, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", defaultConfigFile, "config file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.Int("rate", config.DefaultRate, "masscan packet rate")
	flags.StringP("output", "o", "", "report file; the extension selects the format")
	flags.String("format", "", "report format (json, csv, html); overrides the extension")
	flags.Bool("strict", false, "exit nonzero when a tool is missing or the report cannot be written")
	flags.String("metrics-file", "", "write Prometheus metrics to this file after the run")

	bindings := map[string]string{
		"scan.rate":           "rate",
		"output.path":         "output",
		"output.format":       "format",
		"output.strict":       "strict",
		"output.metrics_file": "metrics-file",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", flag, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return cmd, v, opts
}

// Execute runs the root command and exits nonzero on failure.
// This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the YAML config and applies flag and environment
// overrides on top. The report format is left to the render step so an
// unknown name is reported like any other unsupported format.
func loadConfig(v *viper.Viper, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	if v.IsSet("scan.rate") {
		cfg.Scan.Rate = v.GetInt("scan.rate")
	}
	if v.IsSet("output.strict") {
		cfg.Output.Strict = v.GetBool("output.strict")
	}
	if v.IsSet("output.metrics_file") {
		cfg.Output.MetricsFile = v.GetString("output.metrics_file")
	}
	if !v.IsSet("output.format") {
		v.Set("output.format", cfg.Output.Format)
	}
	if opts.verbose {
		cfg.Logging.Level = string(logging.LevelDebug)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging installs the configured logger as the default. Failures fall
// back to stderr so a bad log path never blocks a scan.
func initLogging(cfg *config.Config, verbose bool) *logging.Logger {
	logConfig := logging.Config{
		Level:     logging.LogLevel(cfg.Logging.Level),
		Format:    logging.LogFormat(cfg.Logging.Format),
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.Level == "debug",
		Rotation: logging.RotationConfig{
			Enabled:    cfg.Logging.Rotation.Enabled,
			MaxSizeMB:  cfg.Logging.Rotation.MaxSizeMB,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			MaxAgeDays: cfg.Logging.Rotation.MaxAgeDays,
			Compress:   cfg.Logging.Rotation.Compress,
		},
	}

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logger.Debug("Structured logging initialized", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	}
	return logger
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}
