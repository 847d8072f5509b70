package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/microbs-io/microbs/internal/cli"
	"github.com/microbs-io/microbs/internal/config"
	"github.com/microbs-io/microbs/internal/deploy"
	"github.com/microbs-io/microbs/internal/orchestrator"
	"github.com/microbs-io/microbs/internal/plugins"
	"github.com/microbs-io/microbs/internal/state"
	"github.com/microbs-io/microbs/pkg/api"
)

// deployment is everything a mutating command works on.
type deployment struct {
	paths  config.Paths
	cfg    *config.Config
	store  *state.Store
	set    *plugins.Set
	ledger *state.Ledger
	orch   *orchestrator.Orchestrator
}

// loadDeployment reads configuration, reconciles state and resolves plugins
// and the app. Nothing is changed on the cluster or in state.yaml beyond
// creating an empty file on first use.
func loadDeployment(cmd *cobra.Command, args []string) (*deployment, error) {
	if !cli.RequiresConfig(cmd.Name()) {
		return nil, errors.New(cmd.Name() + " does not operate on a deployment")
	}
	dir, _ := cmd.Flags().GetString("config")
	paths, err := config.ResolvePaths(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths)
	if err != nil {
		return nil, err
	}
	if err := cfg.Require(config.Required...); err != nil {
		return nil, err
	}
	log.Debug().Str("path", cfg.Path()).Msg("Loaded config")

	store, err := state.Open(paths.State, cfg)
	if err != nil {
		return nil, err
	}
	store.SetContext(cli.Context(cmd.Name(), args, paths.Home))

	loader := &plugins.Loader{
		Registry:   newCatalog(),
		Config:     cfg,
		State:      store,
		HomeDir:    paths.Home,
		PluginsDir: paths.Plugins,
		AppsDir:    paths.Apps,
	}
	set, err := loader.LoadAll()
	if err != nil {
		return nil, err
	}

	d := &deployment{paths: paths, cfg: cfg, store: store, set: set}
	executor, err := d.newExecutor()
	if err != nil {
		d.Close()
		return nil, err
	}
	inv := orchestrator.Invocation{
		Command:    cmd.Name(),
		Positional: args,
		Selection:  cli.SelectionFromFlags(cmd.Flags()),
	}
	d.orch = orchestrator.New(inv, set, store, executor)
	return d, nil
}

func (d *deployment) newExecutor() (*deploy.Executor, error) {
	extra, err := deploy.ParseExtraArgs(d.cfg.String("deployment.skaffold.args"))
	if err != nil {
		return nil, err
	}
	runner := deploy.NewExecRunner()
	secrets, err := deploy.NewSecretDriver(d.cfg.String("deployment.secrets.driver"), runner, d.cfg.String("deployment.kubernetes.context"))
	if err != nil {
		return nil, err
	}
	e := &deploy.Executor{
		State:   d.store,
		Secrets: secrets,
		Runner:  runner,
		Settings: deploy.Settings{
			EnvFile:     d.paths.Env,
			DefaultRepo: d.cfg.String("deployment.registry"),
			ExtraArgs:   extra,
		},
	}
	// History is best effort; a deployment works without it.
	ledger, err := state.OpenLedger(d.paths.Ledger)
	if err != nil {
		log.Warn().Err(err).Str("path", d.paths.Ledger).Msg("Rollout history unavailable")
	} else {
		d.ledger = ledger
		e.Ledger = ledger
	}
	return e, nil
}

func (d *deployment) Close() {
	if d == nil {
		return
	}
	if err := d.ledger.Close(); err != nil {
		log.Debug().Err(err).Msg("Could not close rollout history")
	}
}

// newPhaseCmd builds a command that loads the deployment before running.
func newPhaseCmd(use, short string, args cobra.PositionalArgs, run func(context.Context, *orchestrator.Orchestrator) error) *cobra.Command {
	var d *deployment
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			d, err = loadDeployment(cmd, args)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer d.Close()
			return run(cmd.Context(), d.orch)
		},
	}
	cli.AddSelectionFlags(cmd.Flags())
	return cmd
}

func newSetupCmd() *cobra.Command {
	return newPhaseCmd("setup", "Set up the cluster, observability, alerts and application", cobra.NoArgs,
		func(ctx context.Context, o *orchestrator.Orchestrator) error { return o.Setup(ctx) })
}

func newRolloutCmd() *cobra.Command {
	return newPhaseCmd("rollout [variant]", "Roll out a variant of the application (default main)", cobra.ArbitraryArgs,
		func(ctx context.Context, o *orchestrator.Orchestrator) error { return o.Rollout(ctx, api.RolloutOptions{}) })
}

func newStabilizeCmd() *cobra.Command {
	return newPhaseCmd("stabilize", "Roll the main profile of the application back out", cobra.NoArgs,
		func(ctx context.Context, o *orchestrator.Orchestrator) error { return o.Stabilize(ctx) })
}

func newDestroyCmd() *cobra.Command {
	return newPhaseCmd("destroy", "Tear down the application, alerts, observability and cluster", cobra.NoArgs,
		func(ctx context.Context, o *orchestrator.Orchestrator) error { return o.Destroy(ctx) })
}
