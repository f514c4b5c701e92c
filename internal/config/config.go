// Package config loads, validates and saves the portstrom configuration:
// external tool locations, scan tuning, report output and logging.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/portstrom/internal/errors"
)

const (
	// DefaultRate is the masscan packet rate used when none is given.
	DefaultRate = 1000

	defaultWebProbeConcurrency = 2
)

// Config represents the complete portstrom configuration.
type Config struct {
	// External tool configuration
	Tools ToolsConfig `yaml:"tools" json:"tools"`

	// Scanning configuration
	Scan ScanConfig `yaml:"scan" json:"scan"`

	// Report output configuration
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ToolConfig describes how to invoke one external binary.
type ToolConfig struct {
	// Binary name or absolute path
	Path string `yaml:"path" json:"path" validate:"required"`

	// Extra arguments appended after the built-in ones
	ExtraArgs []string `yaml:"extra_args,omitempty" json:"extra_args,omitempty"`

	// Maximum run time; zero waits indefinitely
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
}

// WebProbeConfig extends ToolConfig with the argument template and the
// markers used to classify output lines.
type WebProbeConfig struct {
	ToolConfig `yaml:",inline"`

	// Argument template; {host}, {port} and {hostport} are substituted
	Args []string `yaml:"args" json:"args" validate:"required,min=1"`

	// Substring marking a subdomain finding
	SubdomainMarker string `yaml:"subdomain_marker" json:"subdomain_marker" validate:"required"`

	// Substring marking a directory finding
	DirectoryMarker string `yaml:"directory_marker" json:"directory_marker" validate:"required"`
}

// ToolsConfig groups the three pipeline tools.
type ToolsConfig struct {
	PortScan    ToolConfig     `yaml:"port_scan" json:"port_scan"`
	Fingerprint ToolConfig     `yaml:"fingerprint" json:"fingerprint"`
	WebProbe    WebProbeConfig `yaml:"web_probe" json:"web_probe"`
}

// ScanConfig holds scanning-related settings.
type ScanConfig struct {
	// Default masscan packet rate
	Rate int `yaml:"rate" json:"rate" validate:"gt=0"`

	// Run fingerprint and web-probe stages concurrently
	ParallelStages bool `yaml:"parallel_stages" json:"parallel_stages"`

	// Maximum concurrent web-probe invocations
	WebProbeConcurrency int `yaml:"web_probe_concurrency" json:"web_probe_concurrency" validate:"gte=1"`

	// Resolve hostname targets to IPv4 before port scanning
	ResolveHostnames bool `yaml:"resolve_hostnames" json:"resolve_hostnames"`

	// Nameserver for resolution (host:port); empty uses /etc/resolv.conf
	Nameserver string `yaml:"nameserver" json:"nameserver" validate:"omitempty,hostname_port"`
}

// OutputConfig holds report output settings.
type OutputConfig struct {
	// Explicit report format; empty selects by file extension
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=json csv html"`

	// Exit nonzero on missing tools and report errors
	Strict bool `yaml:"strict" json:"strict"`

	// Prometheus textfile written after each run
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output" validate:"required"`

	// Log file rotation
	Rotation RotationConfig `yaml:"rotation" json:"rotation"`
}

// RotationConfig holds log rotation settings.
type RotationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb" json:"max_size_mb" validate:"gte=0"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups" validate:"gte=0"`
	MaxAgeDays int  `yaml:"max_age_days" json:"max_age_days" validate:"gte=0"`
	Compress   bool `yaml:"compress" json:"compress"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Tools: ToolsConfig{
			PortScan: ToolConfig{
				Path: "masscan",
			},
			Fingerprint: ToolConfig{
				Path: "nmap",
			},
			WebProbe: WebProbeConfig{
				ToolConfig: ToolConfig{
					Path: "naabu",
				},
				Args:            []string{"-host", "{hostport}"},
				SubdomainMarker: "subdomain",
				DirectoryMarker: "directory",
			},
		},
		Scan: ScanConfig{
			Rate:                DefaultRate,
			ParallelStages:      true,
			WebProbeConcurrency: defaultWebProbeConcurrency,
			ResolveHostnames:    true,
		},
		Output: OutputConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			Rotation: RotationConfig{
				Enabled:    false,
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			},
		},
	}
}

// Load loads configuration from a file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// JSON is a subset of YAML, so one decoder covers both
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse config %s", filepath.Base(path)), err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("failed %q validation", fe.Tag()), fe.Namespace(), fe.Value())
	}
	return errors.WrapConfigError(errors.CodeValidation, "validation failed", err)
}
