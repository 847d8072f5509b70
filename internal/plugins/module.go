package plugins

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/microbs-io/microbs/pkg/api"
)

// Module is a resolved plugin with its capability set computed once.
type Module struct {
	Name     string
	Category api.Category
	Dir      string
	Plugin   any

	setup    api.Setupper
	destroy  api.Destroyer
	rollout  api.RolloutPlugin
	validate api.Validator
	hooks    map[api.Hook]api.HookFunc
}

// NewModule inspects p for every optional capability.
func NewModule(name string, category api.Category, dir string, p any) *Module {
	m := &Module{Name: name, Category: category, Dir: dir, Plugin: p, hooks: map[api.Hook]api.HookFunc{}}
	m.setup, _ = p.(api.Setupper)
	m.destroy, _ = p.(api.Destroyer)
	m.rollout, _ = p.(api.RolloutPlugin)
	m.validate, _ = p.(api.Validator)
	if h, ok := p.(api.Hooker); ok {
		for hook, fn := range h.Hooks() {
			if !hook.Valid() {
				log.Warn().Str("plugin", name).Stringer("hook", hook).Msg("Ignoring unrecognized hook")
				continue
			}
			if fn != nil {
				m.hooks[hook] = fn
			}
		}
	}
	return m
}

func (m *Module) CanSetup() bool    { return m.setup != nil }
func (m *Module) CanDestroy() bool  { return m.destroy != nil }
func (m *Module) CanRollout() bool  { return m.rollout != nil }
func (m *Module) CanValidate() bool { return m.validate != nil }

// Hook returns the callback for h, if the plugin declares one.
func (m *Module) Hook(h api.Hook) (api.HookFunc, bool) {
	fn, ok := m.hooks[h]
	return fn, ok
}

// HookNames lists the hooks this plugin declares.
func (m *Module) HookNames() []api.Hook {
	var out []api.Hook
	for _, h := range api.AllHooks() {
		if _, ok := m.hooks[h]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (m *Module) Setup(ctx context.Context) error { return m.setup.Setup(ctx) }

func (m *Module) Destroy(ctx context.Context) error { return m.destroy.Destroy(ctx) }

func (m *Module) Rollout(ctx context.Context, opts api.RolloutOptions) error {
	return m.rollout.Rollout(ctx, opts)
}

func (m *Module) Validate(ctx context.Context) ([]api.ValidationResult, error) {
	return m.validate.Validate(ctx)
}

// App is a resolved application directory.
type App struct {
	Name string
	Dir  string
}

// Descriptor is the skaffold file the app is deployed with.
func (a *App) Descriptor() string {
	return filepath.Join(a.Dir, "src", "skaffold.yaml")
}

// Set holds the modules loaded for one invocation.
type Set struct {
	modules map[api.Category]*Module
	App     *App
}

func NewSet(modules ...*Module) *Set {
	s := &Set{modules: map[api.Category]*Module{}}
	for _, m := range modules {
		s.modules[m.Category] = m
	}
	return s
}

// Get returns the module for category, or nil when none is configured.
func (s *Set) Get(category api.Category) *Module {
	if s == nil {
		return nil
	}
	return s.modules[category]
}
