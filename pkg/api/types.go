package api

import (
	"context"
	"fmt"
)

// v0 contains the types a plugin implementation depends on.

// Category is the slot a plugin fills in a deployment.
type Category string

const (
	Kubernetes    Category = "kubernetes"
	Observability Category = "observability"
	Alerts        Category = "alerts"
)

// Categories lists every plugin category in load order.
var Categories = []Category{Kubernetes, Observability, Alerts}

func (c Category) Valid() bool {
	switch c {
	case Kubernetes, Observability, Alerts:
		return true
	}
	return false
}

// Action is what the deploy tool does with a profile.
type Action string

const (
	ActionRun    Action = "run"
	ActionDelete Action = "delete"
)

const (
	DefaultNamespace = "default"
	MainProfile      = "main"
)

// ProfileKey is the state path holding the profile of the rollout in
// progress. It is part of the transient context and never saved.
const ProfileKey = "context.profile"

// RolloutOptions are passed to plugin rollouts and to the deployment executor.
type RolloutOptions struct {
	Action      Action
	Namespace   string
	Profile     string
	Descriptor  string
	DefaultRepo string
}

// WithDefaults fills empty fields.
func (o RolloutOptions) WithDefaults() RolloutOptions {
	if o.Action == "" {
		o.Action = ActionRun
	}
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.Profile == "" {
		o.Profile = MainProfile
	}
	return o
}

func (o RolloutOptions) Validate() error {
	if o.Action != ActionRun && o.Action != ActionDelete {
		return fmt.Errorf("rollout action must be %q or %q, got %q", ActionRun, ActionDelete, o.Action)
	}
	if o.Descriptor == "" {
		return fmt.Errorf("rollout requires a deployment descriptor")
	}
	return nil
}

// ValidationResult is one line of `microbs validate` output.
type ValidationResult struct {
	Success bool
	Message string
}

// State is the deployment state handle plugins read from and write to.
type State interface {
	Get(path string) (any, bool)
	GetString(path string) string
	Set(path string, value any)
	Save() error
}

// Config is the read-only configuration snapshot.
type Config interface {
	Get(path string) (any, bool)
	String(path string) string
	Int(path string) (int, error)
}

// Env is handed to plugin factories.
type Env struct {
	Name    string
	Dir     string
	Config  Config
	State   State
	HomeDir string
}

// HookFunc is a lifecycle hook callback.
type HookFunc func(ctx context.Context) error

// Optional capabilities. A plugin implements any subset.

type Setupper interface {
	Setup(ctx context.Context) error
}

type Destroyer interface {
	Destroy(ctx context.Context) error
}

type RolloutPlugin interface {
	Rollout(ctx context.Context, opts RolloutOptions) error
}

type Validator interface {
	Validate(ctx context.Context) ([]ValidationResult, error)
}

type Hooker interface {
	Hooks() map[Hook]HookFunc
}
