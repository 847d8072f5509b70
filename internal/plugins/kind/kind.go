// Package kind provisions a local Kubernetes cluster with kind.
package kind

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"k8s.io/client-go/kubernetes"

	"github.com/microbs-io/microbs/internal/deploy"
	"github.com/microbs-io/microbs/internal/probe"
	"github.com/microbs-io/microbs/pkg/api"
)

const Name = "kind"

// MinVersion is the oldest kind release known to work.
const MinVersion = "0.12.0"

// Plugin creates and deletes a kind cluster named after the deployment.
type Plugin struct {
	Cluster  string
	State    api.State
	Runner   deploy.Runner
	Policy   probe.Policy
	LookPath func(file string) (string, error)
	// Probe is "kubectl" (cluster-info) or "api" (server version via
	// discovery).
	Probe     string
	Clientset kubernetes.Interface
}

// New is the registry factory.
func New(env api.Env) (any, error) {
	cluster := env.Config.String("deployment.name")
	if cluster == "" {
		return nil, fmt.Errorf("kind: deployment.name is required")
	}
	policy := probe.DefaultPolicy()
	if env.Config.String("plugins.kind.timeout") != "" {
		secs, err := env.Config.Int("plugins.kind.timeout")
		if err != nil {
			return nil, fmt.Errorf("kind: %w", err)
		}
		policy.Timeout = time.Duration(secs) * time.Second
	}
	return &Plugin{
		Cluster:  cluster,
		State:    env.State,
		Runner:   deploy.NewExecRunner(),
		Policy:   policy,
		LookPath: exec.LookPath,
		Probe:    env.Config.String("plugins.kind.probe"),
	}, nil
}

// KubeContext is the kubeconfig context kind writes for the cluster.
func (p *Plugin) KubeContext() string { return "kind-" + p.Cluster }

func (p *Plugin) Setup(ctx context.Context) error {
	log.Info().Msg("")
	log.Info().Msg("Creating kind cluster...")
	running, _ := p.running(ctx)
	if running {
		log.Info().Msgf("...kind cluster '%s' already exists.", p.Cluster)
	} else {
		res, err := p.Runner.Run(ctx, "kind", []string{"create", "cluster", "--name", p.Cluster}, false)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("kind create cluster: exit %d", res.ExitCode)
		}
	}

	log.Info().Msg("")
	log.Info().Msg("Verifying that kind is available...")
	if err := probe.Until(ctx, p.Policy, "kind", p.running); err != nil {
		log.Error().Msg("...failure. kind did not start successfully.")
		return err
	}
	log.Info().Msg("...acknowledged. kind is ready.")
	p.State.Set("plugins.kind.context", p.KubeContext())
	return p.State.Save()
}

func (p *Plugin) Destroy(ctx context.Context) error {
	log.Info().Msg("")
	log.Info().Msg("Destroying kind cluster...")
	res, err := p.Runner.Run(ctx, "kind", []string{"delete", "cluster", "--name", p.Cluster}, false)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("kind delete cluster: exit %d", res.ExitCode)
	}

	log.Info().Msg("")
	log.Info().Msg("Verifying that kind cluster is destroyed...")
	gone := func(ctx context.Context) (bool, error) {
		running, _ := p.running(ctx)
		return !running, nil
	}
	if err := probe.Until(ctx, p.Policy, "kind", gone); err != nil {
		log.Error().Msg("...failure. kind was not destroyed.")
		return err
	}
	log.Info().Msg("...acknowledged. kind is destroyed.")
	return nil
}

func (p *Plugin) Validate(ctx context.Context) ([]api.ValidationResult, error) {
	if _, err := p.LookPath("kind"); err != nil {
		return []api.ValidationResult{{Success: false, Message: "kind is not installed"}}, nil
	}
	results := []api.ValidationResult{{Success: true, Message: "kind is installed"}}

	res, err := p.Runner.Run(ctx, "kind", []string{"version"}, true)
	if err != nil || res.ExitCode != 0 {
		return append(results, api.ValidationResult{Message: "could not determine kind version"}), nil
	}
	version, ok := ParseVersion(res.Stdout)
	if !ok {
		return append(results, api.ValidationResult{Message: "could not parse kind version: " + strings.TrimSpace(res.Stdout)}), nil
	}
	msg := fmt.Sprintf("kind is %%s version [using=%s, required>=%s]", version, MinVersion)
	if AtLeast(version, MinVersion) {
		results = append(results, api.ValidationResult{Success: true, Message: fmt.Sprintf(msg, "correct")})
	} else {
		results = append(results, api.ValidationResult{Message: fmt.Sprintf(msg, "incorrect")})
	}
	return results, nil
}

func (p *Plugin) running(ctx context.Context) (bool, error) {
	if p.Probe == "api" {
		return p.serverReachable(ctx)
	}
	res, err := p.Runner.Run(ctx, "kubectl", []string{"cluster-info", "--context", p.KubeContext()}, true)
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("kubectl cluster-info: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return strings.Contains(res.Stdout, "is running"), nil
}

func (p *Plugin) serverReachable(ctx context.Context) (bool, error) {
	if p.Clientset == nil {
		cs, err := deploy.NewClientset(p.KubeContext())
		if err != nil {
			return false, err
		}
		p.Clientset = cs
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v, err := p.Clientset.Discovery().ServerVersion()
	if err != nil {
		return false, err
	}
	log.Debug().Str("server", v.GitVersion).Msg("Kubernetes API reachable")
	return true, nil
}

var versionRE = regexp.MustCompile(`kind v(\d+)\.(\d+)\.(\d+)`)

// ParseVersion extracts x.y.z from `kind version` output.
func ParseVersion(out string) (string, bool) {
	m := versionRE.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return m[1] + "." + m[2] + "." + m[3], true
}

// AtLeast compares dotted numeric versions.
func AtLeast(version, min string) bool {
	a, b := strings.Split(version, "."), strings.Split(min, ".")
	for i := 0; i < len(a) && i < len(b); i++ {
		x, _ := strconv.Atoi(a[i])
		y, _ := strconv.Atoi(b[i])
		if x != y {
			return x > y
		}
	}
	return len(a) >= len(b)
}
