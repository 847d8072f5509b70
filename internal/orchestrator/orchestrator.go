// Package orchestrator runs the setup, rollout, stabilize and destroy
// phases against the loaded plugins and application.
package orchestrator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/microbs-io/microbs/internal/deploy"
	"github.com/microbs-io/microbs/internal/hooks"
	"github.com/microbs-io/microbs/internal/plugins"
	"github.com/microbs-io/microbs/pkg/api"
)

// ErrTooManyVariants is returned when rollout is given more than one
// positional argument.
var ErrTooManyVariants = errors.New("`microbs rollout` requires zero or one variant names")

// Destroy tears workloads down before the stack they feed, and the cluster
// last.
var (
	SetupOrder   = []api.Category{api.Alerts, api.Kubernetes, api.Observability}
	DestroyOrder = []api.Category{api.Alerts, api.Observability, api.Kubernetes}
	RolloutOrder = []api.Category{api.Kubernetes, api.Observability, api.Alerts}
)

// Selection is the set of targets named on the command line.
type Selection struct {
	Kubernetes    bool
	Observability bool
	Alerts        bool
	App           bool
	// Explicit is set when any selection flag was given, even as false.
	Explicit bool
}

// All reports whether no target was named, which selects every target.
func (s Selection) All() bool {
	return !s.Explicit && !s.Kubernetes && !s.Observability && !s.Alerts && !s.App
}

// Includes reports whether target t runs for this selection.
func (s Selection) Includes(t api.Target) bool {
	if s.All() {
		return true
	}
	switch t {
	case api.Target(api.Kubernetes):
		return s.Kubernetes
	case api.Target(api.Observability):
		return s.Observability
	case api.Target(api.Alerts):
		return s.Alerts
	case api.TargetApp:
		return s.App
	}
	return false
}

// Invocation is the command that started this process.
type Invocation struct {
	Command    string
	Positional []string
	Selection  Selection
}

// StateStore is the part of the state store the orchestrator writes.
type StateStore interface {
	GetString(path string) string
	Set(path string, value any)
	Save() error
}

// Deployer applies an application profile to the cluster.
type Deployer interface {
	Run(ctx context.Context, opts api.RolloutOptions) (*deploy.Result, error)
}

// Orchestrator sequences one command. Nothing it calls runs concurrently:
// plugins share the state store and the cluster secret.
type Orchestrator struct {
	Invocation Invocation
	Plugins    *plugins.Set
	Hooks      *hooks.Dispatcher
	State      StateStore
	Deployer   Deployer
	Rand       io.Reader
}

func New(inv Invocation, set *plugins.Set, st StateStore, d Deployer) *Orchestrator {
	return &Orchestrator{
		Invocation: inv,
		Plugins:    set,
		Hooks:      hooks.New(set),
		State:      st,
		Deployer:   d,
		Rand:       rand.Reader,
	}
}

// Setup provisions alerts, kubernetes and observability, then deploys the
// application's main profile.
func (o *Orchestrator) Setup(ctx context.Context) error {
	sel := o.Invocation.Selection
	for _, cat := range SetupOrder {
		if !sel.Includes(api.Target(cat)) {
			continue
		}
		m := o.Plugins.Get(cat)
		err := o.bracket(ctx, api.PhaseSetup, api.Target(cat), func(ctx context.Context) error {
			if m == nil {
				log.Debug().Msgf("No %s plugin was defined in the config file.", cat)
				return nil
			}
			if !m.CanSetup() {
				log.Debug().Msgf("The '%s' %s plugin does not implement the 'setup' command.", m.Name, cat)
				return nil
			}
			if err := m.Setup(ctx); err != nil {
				return fmt.Errorf("setup %s plugin %s: %w", cat, m.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	if !sel.Includes(api.TargetApp) {
		return nil
	}
	return o.bracket(ctx, api.PhaseSetup, api.TargetApp, func(ctx context.Context) error {
		return o.Rollout(ctx, api.RolloutOptions{Profile: api.MainProfile})
	})
}

// Destroy removes the application first, then alerts, observability and
// finally the cluster.
func (o *Orchestrator) Destroy(ctx context.Context) error {
	sel := o.Invocation.Selection
	if sel.Includes(api.TargetApp) {
		err := o.bracket(ctx, api.PhaseDestroy, api.TargetApp, func(ctx context.Context) error {
			return o.Rollout(ctx, api.RolloutOptions{Action: api.ActionDelete})
		})
		if err != nil {
			return err
		}
	}
	for _, cat := range DestroyOrder {
		if !sel.Includes(api.Target(cat)) {
			continue
		}
		m := o.Plugins.Get(cat)
		err := o.bracket(ctx, api.PhaseDestroy, api.Target(cat), func(ctx context.Context) error {
			if m == nil {
				log.Debug().Msgf("No %s plugin was defined in the config file.", cat)
				return nil
			}
			if !m.CanDestroy() {
				log.Debug().Msgf("The '%s' %s plugin does not implement the 'destroy' command.", m.Name, cat)
				return nil
			}
			if err := m.Destroy(ctx); err != nil {
				return fmt.Errorf("destroy %s plugin %s: %w", cat, m.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Rollout deploys a profile: a fresh deployment version is persisted, each
// selected plugin redeploys its agents and then the application is applied.
// Profile-specific behaviour belongs in before_rollout and after_rollout
// hooks.
func (o *Orchestrator) Rollout(ctx context.Context, opts api.RolloutOptions) error {
	profile, err := ResolveProfile(o.Invocation.Command, o.Invocation.Positional, opts.Profile)
	if err != nil {
		return err
	}
	opts.Profile = profile
	// Hooks take no arguments; they read the profile from the context.
	o.State.Set(api.ProfileKey, profile)

	if err := o.Hooks.Run(ctx, api.BeforeRollout); err != nil {
		return err
	}

	version, err := NewVersion(o.Rand, o.State.GetString("deployment.version"))
	if err != nil {
		return err
	}
	o.State.Set("deployment.version", version)
	if err := o.State.Save(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	log.Debug().Str("version", version).Str("profile", profile).Msg("Deployment version updated")

	sel := o.Invocation.Selection
	for _, cat := range RolloutOrder {
		if !sel.Includes(api.Target(cat)) {
			continue
		}
		m := o.Plugins.Get(cat)
		if m == nil {
			continue
		}
		if !m.CanRollout() {
			log.Debug().Msgf("The '%s' %s plugin does not implement the 'rollout' command.", m.Name, cat)
			continue
		}
		if err := m.Rollout(ctx, opts); err != nil {
			return fmt.Errorf("rollout %s plugin %s: %w", cat, m.Name, err)
		}
	}

	if sel.Includes(api.TargetApp) {
		if err := o.rolloutApp(ctx, opts); err != nil {
			return err
		}
	}

	return o.Hooks.Run(ctx, api.AfterRollout)
}

// Stabilize rolls the main profile back out.
func (o *Orchestrator) Stabilize(ctx context.Context) error {
	return o.Rollout(ctx, api.RolloutOptions{Profile: api.MainProfile})
}

func (o *Orchestrator) rolloutApp(ctx context.Context, opts api.RolloutOptions) error {
	app := o.Plugins.App
	if app == nil {
		log.Debug().Msg("No app was defined in the config file.")
		return nil
	}
	if o.Deployer == nil {
		return errors.New("no deployer configured for the app rollout")
	}
	opts.Descriptor = app.Descriptor()
	log.Info().Msg("")
	if opts.Action == api.ActionDelete {
		log.Info().Msgf("Removing services for the '%s' application from Kubernetes...", app.Name)
	} else {
		log.Info().Msgf("Starting services for the '%s' application on Kubernetes...", app.Name)
	}
	if _, err := o.Deployer.Run(ctx, opts); err != nil {
		return fmt.Errorf("rollout app %s: %w", app.Name, err)
	}
	return nil
}

// bracket runs fn between the before and after hooks of phase for target.
// App hooks go to every plugin; the hooks fire even when fn is a no-op.
func (o *Orchestrator) bracket(ctx context.Context, phase api.Phase, target api.Target, fn func(context.Context) error) error {
	before, after, err := api.BracketHooks(phase, target)
	if err != nil {
		return err
	}
	if err := o.Hooks.Run(ctx, before); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return o.Hooks.Run(ctx, after)
}

// ResolveProfile picks the skaffold profile. Only the rollout command takes
// the profile from its positional argument.
func ResolveProfile(command string, positional []string, requested string) (string, error) {
	if command == "rollout" {
		switch len(positional) {
		case 0:
		case 1:
			return positional[0], nil
		default:
			return "", ErrTooManyVariants
		}
	}
	if requested == "" {
		return api.MainProfile, nil
	}
	return requested, nil
}
