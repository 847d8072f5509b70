package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microbs-io/microbs/internal/config"
	"github.com/microbs-io/microbs/internal/orchestrator"
	"github.com/microbs-io/microbs/internal/plugins"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFile), []byte(content), 0o600))
	return dir
}

func TestUnknownCommandShowsHelp(t *testing.T) {
	out, err := execute(t, "bogus")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")

	out, err = execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Available Commands:")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "microbs v"+version)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "version", "-L", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--log-level")
}

func TestMutatingCommandsRequireConfig(t *testing.T) {
	dir := t.TempDir()
	for _, c := range []string{"setup", "rollout", "stabilize", "destroy"} {
		_, err := execute(t, c, "-c", dir)
		var cerr *config.Error
		require.True(t, errors.As(err, &cerr), c)
		assert.Contains(t, err.Error(), "no configuration file at specified path")
	}
	_, err := os.Stat(filepath.Join(dir, config.StateFile))
	assert.True(t, os.IsNotExist(err), "state must not be created without config")
}

func TestMissingRequiredKeys(t *testing.T) {
	dir := writeConfig(t, "deployment:\n  app: shop\n")
	_, err := execute(t, "setup", "-c", dir)
	var cerr *config.Error
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, err.Error(), "deployment.name")
}

func TestSetupReportsEveryMissingPlugin(t *testing.T) {
	dir := writeConfig(t, `
deployment:
  name: demo
  plugins:
    kubernetes: minikube
    observability: elastic
    alerts: slack
`)
	_, err := execute(t, "setup", "-c", dir)
	var rerr *plugins.ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, []string{"minikube", "elastic"}, rerr.Names)
	assert.Contains(t, err.Error(), "microbs plugins install minikube elastic")
}

func TestSetupReportsMissingApp(t *testing.T) {
	dir := writeConfig(t, "deployment:\n  name: demo\n  app: shop\n  plugins:\n    kubernetes: kind\n")
	_, err := execute(t, "setup", "-c", dir)
	var rerr *plugins.ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "app", rerr.Kind)
}

func TestRolloutRejectsTwoVariants(t *testing.T) {
	dir := writeConfig(t, "deployment:\n  name: demo\n  plugins:\n    kubernetes: kind\n")
	_, err := execute(t, "rollout", "a", "b", "-c", dir)
	assert.ErrorIs(t, err, orchestrator.ErrTooManyVariants)
}

func TestInitWritesReferenceConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "microbs")
	_, err := execute(t, "init", "-c", dir)
	require.NoError(t, err)

	paths, err := config.ResolvePaths(dir)
	require.NoError(t, err)
	cfg, err := config.Load(paths)
	require.NoError(t, err)
	assert.Equal(t, "microbs", cfg.String("deployment.name"))
	assert.NoError(t, cfg.Require(config.Required...))

	// A second run leaves the file alone.
	require.NoError(t, os.WriteFile(paths.Config, []byte("deployment:\n  name: mine\n"), 0o600))
	_, err = execute(t, "init", "-c", dir)
	require.NoError(t, err)
	b, err := os.ReadFile(paths.Config)
	require.NoError(t, err)
	assert.Contains(t, string(b), "mine")
}

func TestPluginsList(t *testing.T) {
	dir := writeConfig(t, "deployment:\n  plugins:\n    kubernetes: kind\n")
	out, err := execute(t, "plugins", "list", "-c", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "kind       kubernetes (configured)")
	assert.Contains(t, out, "otlp       observability\n")
	assert.Contains(t, out, "slack      alerts\n")
}

func TestAppsSubcommands(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "apps", "shop"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "apps", "bank"), 0o755))

	out, err := execute(t, "apps", "list", "-c", dir)
	require.NoError(t, err)
	assert.Equal(t, "bank\nshop\n", out)

	_, err = execute(t, "apps", "install", "shop", "-c", dir)
	assert.ErrorIs(t, err, ErrNotSupported)

	_, err = execute(t, "apps", "install", "-c", dir)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotSupported)

	_, err = execute(t, "plugins", "update", "--all", "-c", dir)
	assert.ErrorIs(t, err, ErrNotSupported)

	_, err = execute(t, "apps", "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list, search, install, update, uninstall")
}

func TestValidateReportsProblems(t *testing.T) {
	dir := writeConfig(t, `
deployment:
  app: shop
  plugins:
    kubernetes: minikube
otlp:
  receiver:
    port: http
`)
	out, err := execute(t, "validate", "-c", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ config file can be parsed.")
	assert.Contains(t, out, "⨯ 'deployment.name' is required but missing from config.")
	assert.Contains(t, out, "i 'otlp.receiver.host' is normally required but missing from config.")
	assert.Contains(t, out, "⨯ 'otlp.receiver.port' expected an integer but found: http")
	assert.Contains(t, out, "⨯ 'deployment.plugins.kubernetes' does not name an installed plugin: minikube")
	assert.Contains(t, out, "? 'deployment.plugins.alerts' does not name a plugin.")
	assert.Contains(t, out, "⨯ 'deployment.app' does not name an installed app: shop")
}

func TestValidateWithoutConfig(t *testing.T) {
	out, err := execute(t, "validate", "-c", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "⨯ config file does not exist")
	assert.NotContains(t, out, "Validating plugins")
}
