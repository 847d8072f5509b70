// Package hooks invokes optional lifecycle callbacks on loaded plugins.
package hooks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/microbs-io/microbs/internal/plugins"
	"github.com/microbs-io/microbs/pkg/api"
)

// DefaultCategories is the order hooks run in when none is given. Alerts come
// first so a contact point exists before observability wires a route to it.
var DefaultCategories = []api.Category{api.Alerts, api.Kubernetes, api.Observability}

// UnknownHookError means a caller dispatched a hook outside the closed set.
type UnknownHookError struct{ Hook api.Hook }

func (e *UnknownHookError) Error() string {
	return fmt.Sprintf("%s is not a recognized hook", e.Hook)
}

// Dispatcher holds the (category, hook) -> callback table for one invocation.
type Dispatcher struct {
	table map[api.Category]map[api.Hook]api.HookFunc
	names map[api.Category]string
}

// New builds the dispatch table from the loaded plugin set.
func New(set *plugins.Set) *Dispatcher {
	d := &Dispatcher{
		table: map[api.Category]map[api.Hook]api.HookFunc{},
		names: map[api.Category]string{},
	}
	for _, cat := range api.Categories {
		m := set.Get(cat)
		if m == nil {
			continue
		}
		d.names[cat] = m.Name
		d.table[cat] = map[api.Hook]api.HookFunc{}
		for _, h := range m.HookNames() {
			fn, _ := m.Hook(h)
			d.table[cat][h] = fn
		}
	}
	return d
}

// RunOne invokes hook on the plugin configured for category, if both exist.
func (d *Dispatcher) RunOne(ctx context.Context, hook api.Hook, category api.Category) error {
	if !hook.Valid() {
		return &UnknownHookError{Hook: hook}
	}
	callbacks, ok := d.table[category]
	if !ok {
		log.Debug().Msgf("No %s plugin was defined in the config file.", category)
		return nil
	}
	fn, ok := callbacks[hook]
	if !ok {
		log.Debug().Msgf("The '%s' %s plugin does not implement '%s'.", d.names[category], category, hook)
		return nil
	}
	log.Debug().Msgf("Calling '%s' from the '%s' %s plugin.", hook, d.names[category], category)
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s hook of %s plugin %s: %w", hook, category, d.names[category], err)
	}
	return nil
}

// Run invokes hook for each category in order, one after another. With no
// categories it uses DefaultCategories.
func (d *Dispatcher) Run(ctx context.Context, hook api.Hook, categories ...api.Category) error {
	if !hook.Valid() {
		return &UnknownHookError{Hook: hook}
	}
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	for _, cat := range categories {
		if err := d.RunOne(ctx, hook, cat); err != nil {
			return err
		}
	}
	return nil
}
