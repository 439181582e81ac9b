package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Config represents a canv register configuration file (YAML or TOML).
// All values are optional and act as defaults for canv register flags.
// CLI flags always override config values.
type Config struct {
	Server     string        `yaml:"server" toml:"server"`
	References []string      `yaml:"references" toml:"references"`
	OutDir     string        `yaml:"out_dir" toml:"out_dir"`
	InFlight   int           `yaml:"in_flight" toml:"in_flight"`
	LogLevel   string        `yaml:"log_level" toml:"log_level"`
	ServerLog  string        `yaml:"server_log" toml:"server_log"`
	Timeouts   TimeoutConfig `yaml:"timeouts" toml:"timeouts"`
	Storage    StorageConfig `yaml:"storage" toml:"storage"`
	Adapter    AdapterConfig `yaml:"adapter" toml:"adapter"`
	Metrics    MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// TimeoutConfig holds wait budgets. Zero values mean the built-in defaults.
type TimeoutConfig struct {
	Receive         Duration `yaml:"receive" toml:"receive"`
	StartupAttempts int      `yaml:"startup_attempts" toml:"startup_attempts"`
	StartupInterval Duration `yaml:"startup_interval" toml:"startup_interval"`
	IdleTimeouts    int      `yaml:"idle_timeouts" toml:"idle_timeouts"`
}

// StorageConfig holds run report storage defaults from the config file.
// An empty backend disables the run report.
type StorageConfig struct {
	Dataset     string `yaml:"dataset" toml:"dataset"`
	Backend     string `yaml:"backend" toml:"backend"`
	Path        string `yaml:"path" toml:"path"`
	Region      string `yaml:"region" toml:"region"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style" toml:"s3_path_style"`
}

// AdapterConfig holds notification adapter defaults from the config file.
type AdapterConfig struct {
	Type          string            `yaml:"type" toml:"type"`
	URL           string            `yaml:"url" toml:"url"`
	Channel       string            `yaml:"channel,omitempty" toml:"channel"`
	Headers       map[string]string `yaml:"headers,omitempty" toml:"headers"`
	Timeout       Duration          `yaml:"timeout,omitempty" toml:"timeout"`
	Retries       *int              `yaml:"retries,omitempty" toml:"retries"`
	RetryInterval Duration          `yaml:"retry_interval,omitempty" toml:"retry_interval"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	// Listen is the address serving /metrics, e.g. ":9464". Empty disables it.
	Listen string `yaml:"listen" toml:"listen"`
}

// Accepted enumerations.
var (
	ServerLogLevels = []string{"debug", "info", "warning", "error"}
	StorageBackends = []string{"fs", "s3"}
	AdapterTypes    = []string{"webhook", "redis"}
)

// Validate checks enumerations and ranges of the values that are set.
// Unset values are left for the command's defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.InFlight < 0 || c.InFlight > 14 {
		errs = append(errs, fmt.Errorf("in_flight must be in [1, 14], got %d", c.InFlight))
	}
	if c.ServerLog != "" && !slices.Contains(ServerLogLevels, c.ServerLog) {
		errs = append(errs, fmt.Errorf("server_log must be one of %v, got %q", ServerLogLevels, c.ServerLog))
	}
	if c.Storage.Backend != "" && !slices.Contains(StorageBackends, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend must be one of %v, got %q", StorageBackends, c.Storage.Backend))
	}
	if c.Adapter.Type != "" && !slices.Contains(AdapterTypes, c.Adapter.Type) {
		errs = append(errs, fmt.Errorf("adapter.type must be one of %v, got %q", AdapterTypes, c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, errors.New("adapter.retries must be >= 0"))
	}
	if c.Timeouts.StartupAttempts < 0 || c.Timeouts.IdleTimeouts < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// Duration wraps time.Duration for string parsing (e.g. "10s", "5m") in
// both YAML and TOML files.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

// UnmarshalText parses a duration string; BurntSushi/toml decodes through it.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

func (d *Duration) parse(s string) error {
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
