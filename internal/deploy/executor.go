// Package deploy applies an application profile to the cluster: it recreates
// the deployment secret from state and runs skaffold.
package deploy

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog/log"

	"github.com/microbs-io/microbs/internal/state"
	"github.com/microbs-io/microbs/pkg/api"
)

// Tool is the external build/deploy tool.
const Tool = "skaffold"

// StateSource is the part of the state store the executor reads.
type StateSource interface {
	GetString(path string) string
	WriteEnvFile(path string) error
}

// Recorder persists rollout history.
type Recorder interface {
	Record(ctx context.Context, r *state.Rollout) error
}

// Settings are fixed for the lifetime of an executor.
type Settings struct {
	EnvFile     string
	DefaultRepo string
	ExtraArgs   []string
}

// Executor runs one rollout at a time.
type Executor struct {
	State    StateSource
	Secrets  SecretDriver
	Runner   Runner
	Ledger   Recorder
	Settings Settings
}

// Result reports what the deploy tool did.
type Result struct {
	Options  api.RolloutOptions
	Version  string
	Args     []string
	ExitCode int
}

// ParseExtraArgs splits a shell-style argument string.
func ParseExtraArgs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse skaffold args %q: %w", s, err)
	}
	return args, nil
}

// BuildArgs computes the deploy tool arguments. Runs carry a run-id label
// with the deployment version so skaffold can tell which workloads changed.
func BuildArgs(opts api.RolloutOptions, version, defaultRepo string, extra []string) []string {
	args := []string{string(opts.Action), "-p", opts.Profile, "-f", opts.Descriptor}
	if opts.Action == api.ActionRun {
		args = append(args, "-l", "skaffold.dev/run-id=microbs-"+version)
	}
	if opts.Namespace != "" && opts.Namespace != api.DefaultNamespace {
		args = append(args, "--namespace="+opts.Namespace)
	}
	repo := opts.DefaultRepo
	if repo == "" {
		repo = defaultRepo
	}
	if repo != "" {
		args = append(args, "--default-repo="+repo)
	}
	return append(args, extra...)
}

// Run recreates the secret and invokes the deploy tool. A non-zero exit from
// the tool is logged and recorded but not returned as an error; only a
// failure to start it is.
func (e *Executor) Run(ctx context.Context, opts api.RolloutOptions) (*Result, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	log.Info().Msg("")
	log.Info().Msgf("Recreating %s on Kubernetes...", SecretName)
	if err := e.recreateSecret(ctx, opts.Namespace); err != nil {
		return nil, err
	}
	log.Info().Msg("...done.")

	version := e.State.GetString("deployment.version")
	args := BuildArgs(opts, version, e.Settings.DefaultRepo, e.Settings.ExtraArgs)

	log.Info().Msg("")
	log.Info().Msgf("Rolling out the '%s' profile with %s...", opts.Profile, Tool)
	log.Info().Msg("")
	res, err := e.Runner.Run(ctx, Tool, args, false)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		log.Error().Int("exit_code", res.ExitCode).Str("profile", opts.Profile).Msgf("%s %s failed", Tool, opts.Action)
	} else {
		log.Info().Msg("")
		log.Info().Msg("Rollout complete.")
	}

	if e.Ledger != nil {
		rec := &state.Rollout{
			Version:   version,
			Profile:   opts.Profile,
			Action:    string(opts.Action),
			Namespace: opts.Namespace,
			ExitCode:  res.ExitCode,
		}
		if err := e.Ledger.Record(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("Could not record rollout")
		}
	}
	return &Result{Options: opts, Version: version, Args: args, ExitCode: res.ExitCode}, nil
}

// recreateSecret deletes then creates the secret so no stale keys survive.
func (e *Executor) recreateSecret(ctx context.Context, namespace string) error {
	if err := e.Secrets.Delete(ctx, namespace, SecretName); err != nil {
		// Expected on first run.
		log.Debug().Err(err).Msgf("Could not delete %s", SecretName)
	}
	if err := e.State.WriteEnvFile(e.Settings.EnvFile); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(e.Settings.EnvFile); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", e.Settings.EnvFile).Msg("Could not remove env file")
		}
	}()
	if err := e.Secrets.CreateFromEnvFile(ctx, namespace, SecretName, e.Settings.EnvFile); err != nil {
		log.Error().Err(err).Msgf("Could not create %s", SecretName)
	}
	return nil
}
