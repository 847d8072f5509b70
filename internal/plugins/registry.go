package plugins

import (
	"errors"
	"fmt"
	"sort"

	"github.com/microbs-io/microbs/pkg/api"
)

// Factory builds a plugin instance. The returned value may implement any
// subset of the api capability interfaces.
type Factory func(env api.Env) (any, error)

// ErrNotRegistered is returned for names with no factory.
var ErrNotRegistered = errors.New("plugin not registered")

// Entry describes a registered plugin.
type Entry struct {
	Name     string
	Category api.Category
	New      Factory
}

// Registry is the catalog of plugins compiled into the binary.
type Registry struct {
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]Entry{}}
}

func (r *Registry) Register(name string, category api.Category, f Factory) {
	r.entries[name] = Entry{Name: name, Category: category, New: f}
}

func (r *Registry) Get(name string) (Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return e, nil
}

// Entries returns every registered plugin sorted by name.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
