// Package config loads and validates the tool configuration and
// per-run specs. Tool configuration is YAML; run specs may be written
// in CUE, YAML, or JSON and are checked against an embedded CUE schema.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/proofrun/proofrun/pkg/bundle"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

// Config is the tool-level configuration.
type Config struct {
	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures trace export.
	Tracing TracingConfig `yaml:"tracing"`

	// Engine configures the configuration-management engine.
	Engine EngineConfig `yaml:"engine"`

	// Generator configures the upstream artifact producer.
	Generator GeneratorConfig `yaml:"generator"`

	// Runs configures run directory placement and stage behavior.
	Runs RunsConfig `yaml:"runs"`

	// Inventory sets defaults applied to resolved targets.
	Inventory InventoryConfig `yaml:"inventory"`

	// Policy configures the artifact gate.
	Policy PolicyConfig `yaml:"policy"`

	// Upload configures optional bundle shipping.
	Upload bundle.UploadConfig `yaml:"upload"`

	// SSH configures remote engine execution.
	SSH SSHConfig `yaml:"ssh"`
}

// LoggingConfig mirrors the telemetry logging options.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
	Output string `yaml:"output"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// TracingConfig configures trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
}

// EngineConfig selects the engine binary.
type EngineConfig struct {
	Binary string `yaml:"binary"`
}

// GeneratorConfig points at the artifact-producing model endpoint.
type GeneratorConfig struct {
	BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RunsConfig governs run directories and stage execution.
type RunsConfig struct {
	// BaseDir is where run directories are created.
	BaseDir string `yaml:"base_dir"`

	// Depth is the default verification depth.
	Depth string `yaml:"depth" validate:"omitempty,oneof=none syntax all"`

	// StageTimeouts bounds each stage, keyed by stage name.
	StageTimeouts map[string]time.Duration `yaml:"stage_timeouts"`
}

// InventoryConfig sets connection defaults for resolved hosts.
type InventoryConfig struct {
	DefaultUser    string `yaml:"default_user"`
	PrivateKeyFile string `yaml:"private_key_file"`
}

// PolicyConfig configures the artifact gate.
type PolicyConfig struct {
	// RulePaths are extra rule files or directories beyond the
	// built-ins.
	RulePaths []string `yaml:"rule_paths"`

	// Watch reloads rules on file changes.
	Watch bool `yaml:"watch"`
}

// SSHConfig configures running the engine on a remote control host.
type SSHConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host" validate:"required_if=Enabled true"`
	Port           int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	User           string `yaml:"user" validate:"required_if=Enabled true"`
	PrivateKeyFile string `yaml:"private_key_file"`
	KnownHostsFile string `yaml:"known_hosts_file"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9090",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "stdout",
			SamplingRate: 1.0,
		},
		Engine: EngineConfig{
			Binary: "ansible-playbook",
		},
		Generator: GeneratorConfig{
			APIKeyEnv: "PROOFRUN_API_KEY",
			Timeout:   2 * time.Minute,
		},
		Runs: RunsConfig{
			BaseDir: ".",
			Depth:   "all",
		},
		SSH: SSHConfig{
			Port: 22,
		},
	}
}

// Load reads a YAML configuration file, layered over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies struct-level validation rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Upload.Enabled() {
		if err := c.Upload.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}

// Telemetry maps the configuration onto the telemetry stack's config.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = "proofrun"
	tc.ServiceVersion = version
	tc.Logging.Level = c.Logging.Level
	tc.Logging.Format = c.Logging.Format
	tc.Logging.Output = c.Logging.Output
	tc.Metrics.Enabled = c.Metrics.Enabled
	tc.Metrics.ListenAddress = c.Metrics.ListenAddress
	tc.Tracing.Enabled = c.Tracing.Enabled
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Tracing.SamplingRate
	return tc
}
