package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadFlattensAndOverlaysSecrets(t *testing.T) {
	paths, err := ResolvePaths(t.TempDir())
	require.NoError(t, err)
	writeFile(t, paths.Config, `
deployment:
  name: demo
  plugins:
    kubernetes: kind
otlp:
  receiver:
    port: 4318
plugins:
  slack:
    bot_user_oauth_access_token: from-yaml
`)
	writeFile(t, paths.Secrets, "# tokens\nplugins.slack.bot_user_oauth_access_token = xoxb-123\n")

	cfg, err := Load(paths)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.String("deployment.name"))
	assert.Equal(t, "kind", cfg.String("deployment.plugins.kubernetes"))
	assert.Equal(t, "xoxb-123", cfg.String("plugins.slack.bot_user_oauth_access_token"))
	port, err := cfg.Int("otlp.receiver.port")
	require.NoError(t, err)
	assert.Equal(t, 4318, port)
	assert.NoError(t, cfg.Require(Required...))
	assert.Equal(t, paths.Config, cfg.Path())
}

func TestLoadMissingFile(t *testing.T) {
	paths, err := ResolvePaths(t.TempDir())
	require.NoError(t, err)
	_, err = Load(paths)
	require.Error(t, err)
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "no configuration file at specified path")
	assert.Contains(t, err.Error(), paths.Config)
}

func TestLoadUnparseable(t *testing.T) {
	paths, err := ResolvePaths(t.TempDir())
	require.NoError(t, err)
	writeFile(t, paths.Config, "deployment: [unterminated\n")
	_, err = Load(paths)
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "parse", cfgErr.Op)
}

func TestRequireNamesMissingKeys(t *testing.T) {
	cfg := New(map[string]any{"deployment.name": "demo"})
	err := cfg.Require(Required...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployment.plugins.kubernetes")
	assert.NotContains(t, err.Error(), "deployment.name,")
}

func TestIntRejectsNonInteger(t *testing.T) {
	cfg := New(map[string]any{"otlp.receiver.port": "43x"})
	_, err := cfg.Int("otlp.receiver.port")
	assert.Error(t, err)
}

func TestResolvePaths(t *testing.T) {
	dir := t.TempDir()
	paths, err := ResolvePaths(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(dir, "state.yaml"), paths.State)
	assert.Equal(t, filepath.Join(dir, ".env"), paths.Env)
	assert.Equal(t, filepath.Join(dir, "apps"), paths.Apps)
}

func TestReferenceParses(t *testing.T) {
	values, err := Parse(Reference())
	require.NoError(t, err)
	cfg := New(values)
	assert.NoError(t, cfg.Require(Required...))
	assert.Empty(t, cfg.Missing(NormallyRequired...))
}
