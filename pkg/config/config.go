// Package config loads the webapp configuration file and environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/webapp/pkg/engine"
	"github.com/entrhq/webapp/pkg/logging"
	"github.com/entrhq/webapp/pkg/session"
)

// Supported engines.
const (
	EnginePlaywright = "playwright"
	EngineChromedp   = "chromedp"
	EngineRod        = "rod"
)

// Environment variables read by ApplyEnv.
const (
	EnvEngine      = "WEBAPP_ENGINE"
	EnvHeadless    = "WEBAPP_HEADLESS"
	EnvBrowserPath = "WEBAPP_BROWSER_PATH"
)

// Config represents the configuration for browser sessions
type Config struct {
	// Engine selects the automation library: playwright, chromedp or rod
	Engine string `yaml:"engine" json:"engine"`

	Headless    bool     `yaml:"headless" json:"headless"`
	BrowserPath string   `yaml:"browser_path" json:"browser_path"`
	Args        []string `yaml:"args" json:"args"`
	SlowMo      float64  `yaml:"slow_mo" json:"slow_mo"` // milliseconds

	Viewport ViewportConfig `yaml:"viewport" json:"viewport"`

	// Readiness polling for GotoPage and Close
	ReadyTimeout  time.Duration `yaml:"ready_timeout" json:"ready_timeout"`
	ReadyInterval time.Duration `yaml:"ready_interval" json:"ready_interval"`

	// AllowedURLs restricts navigation to matching glob patterns. Empty allows all.
	AllowedURLs []string `yaml:"allowed_urls" json:"allowed_urls"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// ViewportConfig is the initial page size
type ViewportConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
	// Directory overrides ~/.webapp/logs
	Directory string `yaml:"directory" json:"directory"`
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr" json:"addr"`
}

// TracingConfig defines span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Engine:        EnginePlaywright,
		Headless:      session.DefaultHeadless,
		ReadyTimeout:  session.DefaultReadyTimeout,
		ReadyInterval: session.DefaultReadyInterval,
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
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
	return cfg, nil
}

// ApplyEnv overrides fields from WEBAPP_* variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvEngine)); v != "" {
		c.Engine = v
	}
	if v := strings.TrimSpace(getenv(EnvHeadless)); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvHeadless, v, err)
		}
		c.Headless = headless
	}
	if v := strings.TrimSpace(getenv(EnvBrowserPath)); v != "" {
		c.BrowserPath = v
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Engine {
	case EnginePlaywright, EngineChromedp, EngineRod:
	default:
		return fmt.Errorf("invalid engine: %s (must be 'playwright', 'chromedp', or 'rod')", c.Engine)
	}

	if c.SlowMo < 0 {
		return fmt.Errorf("slow_mo cannot be negative")
	}

	if c.Viewport.Width < 0 || c.Viewport.Height < 0 {
		return fmt.Errorf("viewport dimensions cannot be negative")
	}

	if c.ReadyTimeout < 0 {
		return fmt.Errorf("ready_timeout cannot be negative")
	}

	if c.ReadyInterval < 0 {
		return fmt.Errorf("ready_interval cannot be negative")
	}

	if _, err := session.NewURLPolicy(c.AllowedURLs...); err != nil {
		return err
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	if _, err := logging.ParseVerbosity(c.Logging.Verbosity); err != nil {
		return err
	}

	return nil
}

// LaunchOptions returns the engine launch settings.
func (c *Config) LaunchOptions() engine.LaunchOptions {
	return engine.LaunchOptions{
		Headless:       c.Headless,
		ExecutablePath: c.BrowserPath,
		Args:           append([]string(nil), c.Args...),
		SlowMo:         c.SlowMo,
		Viewport: engine.Viewport{
			Width:  c.Viewport.Width,
			Height: c.Viewport.Height,
		},
	}
}

// SessionOptions translates the configuration into session options.
func (c *Config) SessionOptions() ([]session.Option, error) {
	policy, err := session.NewURLPolicy(c.AllowedURLs...)
	if err != nil {
		return nil, err
	}
	return []session.Option{
		session.WithEngineName(c.Engine),
		session.WithHeadless(c.Headless),
		session.WithLaunchOptions(c.LaunchOptions()),
		session.WithReadyTimeout(c.ReadyTimeout),
		session.WithReadyInterval(c.ReadyInterval),
		session.WithURLPolicy(policy),
	}, nil
}
