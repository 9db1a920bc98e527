// Package config loads the YAML toggles that govern the container's
// ambient behavior: monitoring, the snapshot layer's debounce window,
// and the diagnostics engine's cadence. Grounded on
// internal/config/di_config.go (LoadDIConfig/DefaultDIConfig/env
// overrides), narrowed to the toggles this system actually has a
// component for — there is no pool_size or Components map here because
// nothing in this system pools instances or drives a component loader.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/corewire/di/internal/diagnostics"
)

// Config mirrors the documented runtime knobs.
type Config struct {
	Monitoring struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"monitoring"`

	Optimization struct {
		Enabled     bool `yaml:"enabled"`
		DebounceMS  int  `yaml:"debounce_ms"`
	} `yaml:"optimization"`

	Diagnostics struct {
		BatchIntervalS        int   `yaml:"batch_interval_s"`
		MaxBatchSize          int   `yaml:"max_batch_size"`
		HealthIntervalS       int   `yaml:"health_interval_s"`
		OptimizationIntervalS int   `yaml:"optimization_interval_s"`
		OptimizationThreshold int64 `yaml:"optimization_threshold"`
	} `yaml:"diagnostics"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in defaults: monitoring on, optimization off
// with a 100ms debounce, a 2s batch interval, batches of 50, 30s health
// and optimization intervals, an optimization threshold of 10, and log
// level "all". The values are the same in debug and release builds.
func Default() *Config {
	c := &Config{}
	c.Monitoring.Enabled = true
	c.Optimization.Enabled = false
	c.Optimization.DebounceMS = 100
	c.Diagnostics.BatchIntervalS = 2
	c.Diagnostics.MaxBatchSize = 50
	c.Diagnostics.HealthIntervalS = 30
	c.Diagnostics.OptimizationIntervalS = 30
	c.Diagnostics.OptimizationThreshold = 10
	c.LogLevel = "all"
	return c
}

// Load reads YAML configuration from path, falling back to Default()
// if path is empty or the file does not exist (a missing config file is
// not an error). Any other read error, and a parse error, is returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv applies DICONTAINER_* overrides on top of cfg, the same
// shape as LoadDIConfigFromEnv.
func LoadFromEnv(cfg *Config) *Config {
	if val := os.Getenv("DICONTAINER_MONITORING_ENABLED"); val != "" {
		cfg.Monitoring.Enabled = strings.EqualFold(val, "true")
	}
	if val := os.Getenv("DICONTAINER_OPTIMIZATION_ENABLED"); val != "" {
		cfg.Optimization.Enabled = strings.EqualFold(val, "true")
	}
	if val := os.Getenv("DICONTAINER_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	return cfg
}

// Path resolves the configuration file location, checking
// DICONTAINER_CONFIG_PATH first and a short list of common locations,
// same pattern as GetConfigPath.
func Path() string {
	if p := os.Getenv("DICONTAINER_CONFIG_PATH"); p != "" {
		return p
	}
	for _, p := range []string{"./dicontainer.yaml", "./dicontainer.yml", "./config/dicontainer.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DebounceDuration converts the configured debounce window to a
// time.Duration, for internal/snapshot.
func (c *Config) DebounceDuration() time.Duration {
	return time.Duration(c.Optimization.DebounceMS) * time.Millisecond
}

func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.Diagnostics.BatchIntervalS) * time.Second
}

func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Diagnostics.HealthIntervalS) * time.Second
}

func (c *Config) OptimizationInterval() time.Duration {
	return time.Duration(c.Diagnostics.OptimizationIntervalS) * time.Second
}

// DiagnosticsLogLevel maps the configured string to a diagnostics.LogLevel,
// defaulting to LogAll for an unrecognized value.
func (c *Config) DiagnosticsLogLevel() diagnostics.LogLevel {
	switch strings.ToLower(c.LogLevel) {
	case "off":
		return diagnostics.LogOff
	case "errors":
		return diagnostics.LogErrors
	case "registration":
		return diagnostics.LogRegistration
	case "optimization":
		return diagnostics.LogOptimization
	default:
		return diagnostics.LogAll
	}
}

// Validate checks the loaded values are sane, the same defensive shape
// as DIConfig.Validate.
func (c *Config) Validate() error {
	if c.Diagnostics.MaxBatchSize <= 0 {
		return fmt.Errorf("config: diagnostics.max_batch_size must be positive")
	}
	if c.Diagnostics.OptimizationThreshold < 0 {
		return fmt.Errorf("config: diagnostics.optimization_threshold must not be negative")
	}
	validLevels := map[string]bool{"off": true, "errors": true, "registration": true, "optimization": true, "all": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return nil
}
