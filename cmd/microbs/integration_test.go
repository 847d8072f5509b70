package main

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microbs-io/microbs/internal/config"
	"github.com/microbs-io/microbs/internal/state"
)

// Stand-ins for the external tools. Each appends its arguments to
// $MICROBS_TEST_LOG; kind creates or removes a marker file that kubectl
// cluster-info reports on.
var fakeTools = map[string]string{
	"kind": `#!/bin/sh
echo "kind $*" >> "$MICROBS_TEST_LOG"
case "$1" in
create) touch "$MICROBS_TEST_CLUSTER" ;;
delete) rm -f "$MICROBS_TEST_CLUSTER" ;;
esac
exit 0
`,
	"kubectl": `#!/bin/sh
echo "kubectl $*" >> "$MICROBS_TEST_LOG"
case "$1" in
cluster-info)
  if [ -f "$MICROBS_TEST_CLUSTER" ]; then
    echo "Kubernetes control plane is running at https://127.0.0.1:6443"
    exit 0
  fi
  echo "The connection to the server was refused" >&2
  exit 1
  ;;
create)
  for a in "$@"; do
    case "$a" in --from-env-file=*) cp "${a#--from-env-file=}" "$MICROBS_TEST_SECRET" ;; esac
  done
  ;;
esac
exit 0
`,
	"skaffold": `#!/bin/sh
echo "skaffold $*" >> "$MICROBS_TEST_LOG"
exit 0
`,
}

// TestFullWorkflow runs setup, rollout of a variant and destroy against the
// stand-in tools.
func TestFullWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if runtime.GOOS == "windows" {
		t.Skip("Stand-in tools are shell scripts")
	}

	tmpDir := t.TempDir()
	bin := filepath.Join(tmpDir, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	for name, script := range fakeTools {
		require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte(script), 0o755))
	}
	logPath := filepath.Join(tmpDir, "calls.log")
	secretPath := filepath.Join(tmpDir, "secret.env")
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("MICROBS_TEST_LOG", logPath)
	t.Setenv("MICROBS_TEST_CLUSTER", filepath.Join(tmpDir, "cluster"))
	t.Setenv("MICROBS_TEST_SECRET", secretPath)

	home := filepath.Join(tmpDir, "microbs")
	appDir := filepath.Join(home, "apps", "shop", "src")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "skaffold.yaml"), []byte("apiVersion: skaffold/v4beta6\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(home, config.ConfigFile), []byte(`
deployment:
  name: demo
  app: shop
  plugins:
    kubernetes: kind
plugins:
  kind:
    timeout: 10
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(home, config.SecretsFile), []byte("app.token=s3cret\n"), 0o600))
	paths, err := config.ResolvePaths(home)
	require.NoError(t, err)

	calls := func() string {
		b, err := os.ReadFile(logPath)
		require.NoError(t, err)
		return string(b)
	}
	version := func() string {
		st, err := state.Open(paths.State, nil)
		require.NoError(t, err)
		return st.GetString("deployment.version")
	}
	runIDRE := regexp.MustCompile(`skaffold run -p (\S+) -f (\S+) -l skaffold.dev/run-id=microbs-([0-9a-f]{8})`)

	t.Run("Setup", func(t *testing.T) {
		_, err := execute(t, "setup", "-c", home)
		require.NoError(t, err)

		log := calls()
		assert.Contains(t, log, "kind create cluster --name demo")
		assert.Contains(t, log, "kubectl delete secret microbs-secrets --namespace=default")
		m := runIDRE.FindStringSubmatch(log)
		require.NotNil(t, m, log)
		assert.Equal(t, "main", m[1])
		assert.Equal(t, filepath.Join(paths.Apps, "shop", "src", "skaffold.yaml"), m[2])
		assert.Equal(t, version(), m[3])
		assert.Less(t, strings.Index(log, "kind create"), strings.Index(log, "skaffold run"))

		secret, err := os.ReadFile(secretPath)
		require.NoError(t, err)
		assert.Contains(t, string(secret), "DEPLOYMENT_NAME=demo\n")
		assert.Contains(t, string(secret), "APP_TOKEN=s3cret\n")
		assert.Contains(t, string(secret), "PLUGINS_KIND_CONTEXT=kind-demo\n")
		assert.NotContains(t, string(secret), "CONTEXT_")

		_, err = os.Stat(paths.Env)
		assert.True(t, os.IsNotExist(err), "env artifact should be removed")
		stateFile, err := os.ReadFile(paths.State)
		require.NoError(t, err)
		assert.NotRegexp(t, `(?m)^context\.`, string(stateFile))
	})

	t.Run("Rollout_Variant", func(t *testing.T) {
		before := version()
		require.NoError(t, os.Remove(logPath))
		_, err := execute(t, "rollout", "canary", "-c", home)
		require.NoError(t, err)

		after := version()
		assert.NotEqual(t, before, after)
		m := runIDRE.FindStringSubmatch(calls())
		require.NotNil(t, m)
		assert.Equal(t, "canary", m[1])
		assert.Equal(t, after, m[3])
		assert.NotContains(t, calls(), "kind create")
	})

	t.Run("Destroy", func(t *testing.T) {
		require.NoError(t, os.Remove(logPath))
		_, err := execute(t, "destroy", "-c", home)
		require.NoError(t, err)

		log := calls()
		deleteAt := strings.Index(log, "skaffold delete -p main")
		clusterAt := strings.Index(log, "kind delete cluster --name demo")
		require.GreaterOrEqual(t, deleteAt, 0, log)
		require.GreaterOrEqual(t, clusterAt, 0, log)
		assert.Less(t, deleteAt, clusterAt)
	})

	t.Run("History", func(t *testing.T) {
		ledger, err := state.OpenLedger(paths.Ledger)
		require.NoError(t, err)
		defer ledger.Close()
		rows, err := ledger.List(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "delete", rows[0].Action)
		assert.Equal(t, "canary", rows[1].Profile)
		assert.Equal(t, "main", rows[2].Profile)

		out, err := execute(t, "validate", "-c", home)
		require.NoError(t, err)
		assert.Contains(t, out, "last rollout: delete main")
		assert.Contains(t, out, "✓ app shop is installed")
	})
}
