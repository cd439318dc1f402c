package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/entrhq/webapp/pkg/config"
	"github.com/entrhq/webapp/pkg/engine"
	"github.com/entrhq/webapp/pkg/engine/cdpdriver"
	"github.com/entrhq/webapp/pkg/engine/pwdriver"
	"github.com/entrhq/webapp/pkg/engine/roddriver"
	"github.com/entrhq/webapp/pkg/logging"
	"github.com/entrhq/webapp/pkg/metrics"
	"github.com/entrhq/webapp/pkg/registry"
	"github.com/entrhq/webapp/pkg/session"
	"github.com/entrhq/webapp/pkg/sites/github"
	"github.com/entrhq/webapp/pkg/tracing"
)

const (
	serviceName     = "webapp"
	teardownTimeout = 30 * time.Second
)

// CLI holds the command line state shared by every subcommand
type CLI struct {
	// Flag values, applied over the config file and environment when set
	configPath  string
	engineName  string
	headless    bool
	browserPath string
	logDir      string
	metricsAddr string
	trace       bool
	hold        bool

	cfg           *config.Config
	logger        *logging.Logger
	metrics       *metrics.Metrics
	metricsServer *http.Server
	tracer        *tracing.TracerProvider
	registry      *registry.Registry
	launcher      engine.Launcher
	github        *github.Factory

	// newLauncher is replaced in tests
	newLauncher func(name string) (engine.Launcher, error)
}

func newCLI() *CLI {
	return &CLI{
		registry:    registry.Default(),
		newLauncher: defaultLauncher,
	}
}

// defaultLauncher maps an engine name to its driver
func defaultLauncher(name string) (engine.Launcher, error) {
	switch name {
	case config.EnginePlaywright:
		return pwdriver.NewLauncher(), nil
	case config.EngineChromedp:
		return cdpdriver.NewLauncher(), nil
	case config.EngineRod:
		return roddriver.NewLauncher(), nil
	default:
		return nil, fmt.Errorf("unknown engine: %s", name)
	}
}

// rootCommand creates the root cobra command
func (c *CLI) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "webapp",
		Short: "Browser session automation",
		Long: `webapp launches a browser through playwright, chromedp or rod and runs
navigation workflows in it.

Examples:
  webapp open https://example.com
  webapp --headless=false github homepage
  WEBAPP_GITHUB_PASSWORD=... webapp github login --username octocat`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Path to configuration file (YAML)")
	flags.StringVarP(&c.engineName, "engine", "e", config.EnginePlaywright, "Automation engine: playwright, chromedp or rod")
	flags.BoolVar(&c.headless, "headless", session.DefaultHeadless, "Run the browser without a window")
	flags.StringVar(&c.browserPath, "browser-path", "", "Browser executable to launch")
	flags.StringVar(&c.logDir, "log-dir", "", "Directory for log files (default ~/.webapp/logs)")
	flags.StringVar(&c.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.BoolVar(&c.trace, "trace", false, "Print trace spans to stderr")
	flags.BoolVar(&c.hold, "hold", false, "Keep the browser open until interrupted")

	rootCmd.AddCommand(c.openCommand())
	rootCmd.AddCommand(c.githubCommand())

	return rootCmd
}

// resolveConfig layers flags over environment over file over defaults
func (c *CLI) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine = c.engineName
	}
	if flags.Changed("headless") {
		cfg.Headless = c.headless
	}
	if flags.Changed("browser-path") {
		cfg.BrowserPath = c.browserPath
	}
	if flags.Changed("log-dir") {
		cfg.Logging.Directory = c.logDir
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = c.metricsAddr
	}
	if flags.Changed("trace") {
		cfg.Tracing.Enabled = c.trace
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup prepares logging, metrics, tracing and the engine for a command
func (c *CLI) setup(cmd *cobra.Command) error {
	cfg, err := c.resolveConfig(cmd)
	if err != nil {
		return err
	}
	c.cfg = cfg

	if cfg.Logging.Directory != "" {
		logging.SetDirectory(cfg.Logging.Directory)
	}
	// On error the logger falls back to stderr and we keep going
	c.logger, _ = logging.NewLogger("webapp")
	level, _ := logging.ParseVerbosity(cfg.Logging.Verbosity)
	c.logger.SetLevel(level)
	c.registry.SetLogger(c.logger.With("registry"))

	if cfg.Metrics.Addr != "" {
		c.startMetrics(cfg.Metrics.Addr)
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.NewTracerProvider(serviceName, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
		c.tracer = tp
	}

	c.launcher, err = c.newLauncher(cfg.Engine)
	if err != nil {
		return err
	}
	c.github = github.NewFactory(c.newSession)

	c.logger.Infof("webapp %s starting (engine=%s, headless=%t)", version, cfg.Engine, cfg.Headless)
	return nil
}

func (c *CLI) startMetrics(addr string) {
	reg := prometheus.NewRegistry()
	c.metrics = metrics.MustNewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	c.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := c.metricsServer
	logger := c.logger
	go func() {
		logger.Infof("serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server stopped: %v", err)
		}
	}()
}

// newSession builds an uninitialized session from the resolved configuration
func (c *CLI) newSession() *session.Session {
	// Validate already compiled the allow-list, so this cannot fail here
	opts, _ := c.cfg.SessionOptions()
	opts = append(opts,
		session.WithRegistry(c.registry),
		session.WithLogger(c.logger.With("session")),
		session.WithMetrics(c.metrics),
	)
	return session.New(c.launcher, opts...)
}

// waitIfHolding blocks until ctx is canceled when --hold is set
func (c *CLI) waitIfHolding(cmd *cobra.Command) {
	if !c.hold {
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Browser is open. Press Ctrl+C to exit.")
	<-cmd.Context().Done()
}

// teardown closes every session and stops the services setup started
func (c *CLI) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	var errs error
	if err := c.registry.CloseAll(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close sessions: %w", err))
	}

	if stopper, ok := c.launcher.(interface{ Stop() error }); ok {
		if err := stopper.Stop(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop engine: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}

	if c.tracer != nil {
		if err := c.tracer.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flush traces: %w", err))
		}
	}

	if c.logger != nil {
		if errs != nil {
			c.logger.Errorf("shutdown errors: %v", errs)
		}
		c.logger.Infof("webapp stopped")
		if err := c.logger.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
