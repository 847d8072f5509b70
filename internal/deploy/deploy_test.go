package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/microbs-io/microbs/internal/state"
	"github.com/microbs-io/microbs/pkg/api"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls    []call
	exitCode map[string]int
	envSeen  string
	startErr error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, quiet bool) (CommandResult, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.startErr != nil && name == Tool {
		return CommandResult{}, f.startErr
	}
	for _, a := range args {
		if strings.HasPrefix(a, "--from-env-file=") {
			b, _ := os.ReadFile(strings.TrimPrefix(a, "--from-env-file="))
			f.envSeen = string(b)
		}
	}
	key := name
	if len(args) > 0 {
		key += " " + args[0]
	}
	return CommandResult{ExitCode: f.exitCode[key]}, nil
}

type memLedger struct{ rows []state.Rollout }

func (m *memLedger) Record(ctx context.Context, r *state.Rollout) error {
	m.rows = append(m.rows, *r)
	return nil
}

func newExecutor(t *testing.T, runner *fakeRunner) (*Executor, *memLedger) {
	t.Helper()
	st := state.NewMemory(map[string]any{"deployment.name": "demo", "deployment.version": "0a1b2c3d"})
	ledger := &memLedger{}
	return &Executor{
		State:    st,
		Secrets:  &KubectlDriver{Runner: runner},
		Runner:   runner,
		Ledger:   ledger,
		Settings: Settings{EnvFile: filepath.Join(t.TempDir(), ".env")},
	}, ledger
}

func TestBuildArgs(t *testing.T) {
	opts := api.RolloutOptions{Descriptor: "/apps/shop/src/skaffold.yaml"}.WithDefaults()
	assert.Equal(t,
		[]string{"run", "-p", "main", "-f", "/apps/shop/src/skaffold.yaml", "-l", "skaffold.dev/run-id=microbs-0a1b2c3d"},
		BuildArgs(opts, "0a1b2c3d", "", nil))

	opts.Action = api.ActionDelete
	opts.Profile = "canary"
	opts.Namespace = "shop"
	assert.Equal(t,
		[]string{"delete", "-p", "canary", "-f", "/apps/shop/src/skaffold.yaml", "--namespace=shop", "--default-repo=gcr.io/p", "--cache-artifacts=false"},
		BuildArgs(opts, "0a1b2c3d", "gcr.io/p", []string{"--cache-artifacts=false"}))

	opts.DefaultRepo = "ghcr.io/me"
	args := BuildArgs(opts, "v", "gcr.io/p", nil)
	assert.Contains(t, args, "--default-repo=ghcr.io/me")
}

func TestParseExtraArgs(t *testing.T) {
	args, err := ParseExtraArgs(`--cache-artifacts=false --label "team=shop floor"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"--cache-artifacts=false", "--label", "team=shop floor"}, args)

	args, err = ParseExtraArgs("")
	require.NoError(t, err)
	assert.Nil(t, args)

	_, err = ParseExtraArgs(`"unterminated`)
	assert.Error(t, err)
}

func TestRunRecreatesSecretThenDeploys(t *testing.T) {
	runner := &fakeRunner{exitCode: map[string]int{"kubectl delete": 1}}
	e, ledger := newExecutor(t, runner)

	res, err := e.Run(context.Background(), api.RolloutOptions{Profile: "canary", Descriptor: "skaffold.yaml"})
	require.NoError(t, err)
	require.Len(t, runner.calls, 3)
	assert.Equal(t, "kubectl", runner.calls[0].name)
	assert.Equal(t, []string{"delete", "secret", SecretName, "--namespace=default"}, runner.calls[0].args)
	assert.Equal(t, "create", runner.calls[1].args[0])
	assert.Equal(t, Tool, runner.calls[2].name)
	assert.Equal(t, "canary", res.Options.Profile)
	assert.Contains(t, res.Args, "skaffold.dev/run-id=microbs-0a1b2c3d")

	assert.Contains(t, runner.envSeen, "DEPLOYMENT_NAME=demo")
	assert.Contains(t, runner.envSeen, "DEPLOYMENT_VERSION=0a1b2c3d")
	_, err = os.Stat(e.Settings.EnvFile)
	assert.True(t, os.IsNotExist(err), "env file should be removed after use")

	require.Len(t, ledger.rows, 1)
	assert.Equal(t, "canary", ledger.rows[0].Profile)
}

func TestRunToleratesDeployToolFailure(t *testing.T) {
	runner := &fakeRunner{exitCode: map[string]int{"skaffold run": 2}}
	e, ledger := newExecutor(t, runner)
	res, err := e.Run(context.Background(), api.RolloutOptions{Descriptor: "skaffold.yaml"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, 2, ledger.rows[0].ExitCode)
}

func TestRunFailsWhenToolCannotStart(t *testing.T) {
	runner := &fakeRunner{startErr: errors.New("executable file not found")}
	e, _ := newExecutor(t, runner)
	_, err := e.Run(context.Background(), api.RolloutOptions{Descriptor: "skaffold.yaml"})
	require.Error(t, err)
}

func TestRunValidatesOptions(t *testing.T) {
	e, _ := newExecutor(t, &fakeRunner{})
	_, err := e.Run(context.Background(), api.RolloutOptions{})
	require.Error(t, err)
	_, err = e.Run(context.Background(), api.RolloutOptions{Action: "apply", Descriptor: "x"})
	require.Error(t, err)
}

func TestAPIDriverRecreatesSecret(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: SecretName, Namespace: "default"},
		Data:       map[string][]byte{"STALE_KEY": []byte("x")},
	})
	d := &APIDriver{Client: client}

	st := state.NewMemory(map[string]any{"deployment.name": "demo", "plugins.slack.channel_id": "C1"})
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, st.WriteEnvFile(envFile))

	require.NoError(t, d.Delete(ctx, "default", SecretName))
	require.NoError(t, d.CreateFromEnvFile(ctx, "default", SecretName, envFile))

	got, err := client.CoreV1().Secrets("default").Get(ctx, SecretName, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "demo", string(got.Data["DEPLOYMENT_NAME"]))
	assert.Equal(t, "C1", string(got.Data["PLUGINS_SLACK_CHANNEL_ID"]))
	assert.NotContains(t, got.Data, "STALE_KEY")
	assert.Equal(t, "microbs", got.Labels["app.kubernetes.io/managed-by"])
}

func TestAPIDriverDeleteMissingIsNotAnError(t *testing.T) {
	d := &APIDriver{Client: fake.NewSimpleClientset()}
	assert.NoError(t, d.Delete(context.Background(), "default", SecretName))
}

func TestNewSecretDriver(t *testing.T) {
	d, err := NewSecretDriver("", &fakeRunner{}, "kind-demo")
	require.NoError(t, err)
	k, ok := d.(*KubectlDriver)
	require.True(t, ok)
	assert.Equal(t, []string{"delete", "--context=kind-demo"}, k.args("delete"))

	d, err = NewSecretDriver("api", &fakeRunner{}, "kind-demo")
	require.NoError(t, err)
	assert.Equal(t, "kind-demo", d.(*APIDriver).Context)

	_, err = NewSecretDriver("helm", &fakeRunner{}, "")
	assert.Error(t, err)
}
