package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webapp/pkg/config"
	"github.com/entrhq/webapp/pkg/engine"
	"github.com/entrhq/webapp/pkg/engine/cdpdriver"
	"github.com/entrhq/webapp/pkg/engine/enginetest"
	"github.com/entrhq/webapp/pkg/engine/pwdriver"
	"github.com/entrhq/webapp/pkg/engine/roddriver"
	"github.com/entrhq/webapp/pkg/registry"
	"github.com/entrhq/webapp/pkg/sites/github"
)

// logDir is shared because the log directory is fixed once per process
var logDir string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "webapp-cli-test")
	if err != nil {
		panic(err)
	}
	logDir = dir
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testCLI struct {
	*CLI
	launcher *enginetest.Launcher
	engines  []string
	stdout   bytes.Buffer
	stderr   bytes.Buffer
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	for _, key := range []string{config.EnvEngine, config.EnvHeadless, config.EnvBrowserPath, EnvGitHubPassword} {
		t.Setenv(key, "")
	}

	tc := &testCLI{CLI: newCLI(), launcher: &enginetest.Launcher{}}
	tc.registry = registry.New()
	tc.newLauncher = func(name string) (engine.Launcher, error) {
		tc.engines = append(tc.engines, name)
		return tc.launcher, nil
	}
	return tc
}

func (tc *testCLI) run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := tc.rootCommand()
	cmd.SetOut(&tc.stdout)
	cmd.SetErr(&tc.stderr)
	cmd.SetArgs(append([]string{"--log-dir", logDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, tc.teardown())
	return err
}

func TestOpenCommand(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run(t, "open", "https://example.com"))

	assert.Equal(t, "https://example.com\n", tc.stdout.String())
	assert.Equal(t, []string{config.EnginePlaywright}, tc.engines)
	require.Len(t, tc.launcher.Launches(), 1)
	assert.True(t, tc.launcher.Launches()[0].Headless)

	// teardown closed the session
	for _, b := range tc.launcher.Browsers() {
		assert.Equal(t, 1, b.CloseCount())
	}
}

func TestOpenCommand_URLNotAllowed(t *testing.T) {
	tc := newTestCLI(t)
	path := filepath.Join(t.TempDir(), "webapp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allowed_urls: [\"https://github.com/*\"]\n"), 0o600))

	err := tc.run(t, "--config", path, "open", "https://example.com")

	assert.ErrorContains(t, err, "url not allowed")
	assert.Zero(t, tc.launcher.Count(engine.OpGoto))
}

func TestOpenCommand_RequiresURL(t *testing.T) {
	tc := newTestCLI(t)
	assert.Error(t, tc.run(t, "open"))
}

func TestGitHubHomepage(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run(t, "--headless=false", "github", "homepage"))

	assert.Equal(t, github.HomepageURL+"\n", tc.stdout.String())
	assert.False(t, tc.launcher.Launches()[0].Headless)
}

func TestGitHubLogin(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run(t, "github", "login", "--username", "octocat", "--password", "hunter2"))

	assert.Equal(t, github.LoginURL+"\n", tc.stdout.String())
	assert.Equal(t, 2, tc.launcher.Count(engine.OpFill))
	assert.Equal(t, 1, tc.launcher.Count(engine.OpClick))
}

func TestGitHubLogin_PasswordFromEnv(t *testing.T) {
	tc := newTestCLI(t)
	t.Setenv(EnvGitHubPassword, "from-env")

	require.NoError(t, tc.run(t, "github", "login", "-u", "octocat"))

	var filled []string
	for _, call := range tc.launcher.Calls() {
		if call.Op == engine.OpFill {
			filled = append(filled, call.Args[1])
		}
	}
	assert.Equal(t, []string{"octocat", "from-env"}, filled)
}

func TestGitHubLogin_MissingCredentials(t *testing.T) {
	tc := newTestCLI(t)
	err := tc.run(t, "github", "login", "--username", "octocat")
	assert.ErrorContains(t, err, "password is required")

	tc = newTestCLI(t)
	err = tc.run(t, "github", "login", "--password", "hunter2")
	assert.ErrorContains(t, err, "username")

	assert.Empty(t, tc.launcher.Calls())
}

func TestConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webapp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: rod\nheadless: false\n"), 0o600))

	tc := newTestCLI(t)
	require.NoError(t, tc.run(t, "--config", path, "open", "about:blank"))
	assert.Equal(t, []string{config.EngineRod}, tc.engines)
	assert.False(t, tc.cfg.Headless)

	tc = newTestCLI(t)
	t.Setenv(config.EnvEngine, config.EngineChromedp)
	require.NoError(t, tc.run(t, "--config", path, "open", "about:blank"))
	assert.Equal(t, []string{config.EngineChromedp}, tc.engines)

	tc = newTestCLI(t)
	t.Setenv(config.EnvEngine, config.EngineChromedp)
	require.NoError(t, tc.run(t, "--config", path, "--engine", "playwright", "--headless", "open", "about:blank"))
	assert.Equal(t, []string{config.EnginePlaywright}, tc.engines)
	assert.True(t, tc.cfg.Headless)
}

func TestInvalidEngine(t *testing.T) {
	tc := newTestCLI(t)

	err := tc.run(t, "--engine", "selenium", "open", "https://example.com")

	assert.ErrorContains(t, err, "invalid engine")
	assert.Empty(t, tc.engines)
}

func TestMetricsServer(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run(t, "--metrics-addr", "127.0.0.1:0", "open", "https://example.com"))

	require.NotNil(t, tc.metrics)
	require.NotNil(t, tc.metricsServer)
}

func TestTraceFlag(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run(t, "--trace", "open", "https://example.com"))

	assert.Contains(t, tc.stderr.String(), "session.goto")
}

func TestDefaultLauncher(t *testing.T) {
	l, err := defaultLauncher(config.EnginePlaywright)
	require.NoError(t, err)
	assert.IsType(t, &pwdriver.Launcher{}, l)

	l, err = defaultLauncher(config.EngineChromedp)
	require.NoError(t, err)
	assert.IsType(t, &cdpdriver.Launcher{}, l)

	l, err = defaultLauncher(config.EngineRod)
	require.NoError(t, err)
	assert.IsType(t, &roddriver.Launcher{}, l)

	_, err = defaultLauncher("selenium")
	assert.Error(t, err)
}
