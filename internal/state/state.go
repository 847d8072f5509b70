// Package state reconciles the persisted deployment state with the current
// configuration and hands out a single read/write handle for it.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/microbs-io/microbs/internal/config"
	"github.com/microbs-io/microbs/pkg/dotpath"
)

// ContextKey roots the transient invocation context. Nothing beneath it is
// ever written to disk.
const ContextKey = "context"

// Store is the in-memory deployment state. It is not safe for concurrent
// use; commands run strictly sequentially.
type Store struct {
	path   string
	values map[string]any
}

// Open reads the state file at path, creating it empty when absent, and
// merges cfg over it so configuration wins on every collision.
func Open(path string, cfg *config.Config) (*Store, error) {
	persisted, err := read(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, values: persisted}
	if cfg != nil {
		s.Reconcile(cfg)
	}
	return s, nil
}

// NewMemory returns a store that is never backed by a file until SaveAs.
func NewMemory(values map[string]any) *Store {
	return &Store{values: dotpath.Merge(nil, values)}
}

func read(path string) (map[string]any, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return nil, fmt.Errorf("create state file: %w", err)
		}
		log.Debug().Str("path", path).Msg("Created empty state file")
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	// Normally already flat, but users may hand-edit nested fields.
	return dotpath.Flatten(raw), nil
}

// Reconcile merges cfg over the current values.
func (s *Store) Reconcile(cfg *config.Config) {
	dotpath.Merge(s.values, cfg.Values())
}

func (s *Store) Path() string { return s.path }

// Get returns the value at path. A path with no value of its own but with
// keys beneath it returns those keys as a flat map relative to path.
func (s *Store) Get(path string) (any, bool) {
	if v, ok := s.values[path]; ok {
		return v, true
	}
	if sub := dotpath.Sub(s.values, path); len(sub) > 0 {
		return sub, true
	}
	return nil, false
}

func (s *Store) GetString(path string) string {
	v, ok := s.values[path]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Set replaces whatever is at or beneath path with value. Maps and slices
// are flattened beneath path.
func (s *Store) Set(path string, value any) {
	s.Delete(path)
	dotpath.Merge(s.values, dotpath.FlattenValue(path, value))
}

// Delete removes path and everything beneath it.
func (s *Store) Delete(path string) {
	for k := range s.values {
		if dotpath.HasPrefix(k, path) {
			delete(s.values, k)
		}
	}
}

// SetContext replaces the transient invocation context.
func (s *Store) SetContext(ctx map[string]any) {
	s.Delete(ContextKey)
	for k, v := range ctx {
		s.Set(ContextKey+"."+k, v)
	}
}

// Values returns a copy of the state.
func (s *Store) Values() map[string]any {
	return dotpath.Merge(nil, s.values)
}

// Persistent returns a copy of the state without the invocation context.
func (s *Store) Persistent() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		if dotpath.HasPrefix(k, ContextKey) {
			continue
		}
		out[k] = v
	}
	return out
}

// Save writes the state file with sorted keys.
func (s *Store) Save() error {
	if s.path == "" {
		return errors.New("state store has no file")
	}
	return s.SaveAs(s.path)
}

// SaveAs writes the persistent state to path atomically.
func (s *Store) SaveAs(path string) error {
	// yaml.v3 emits map keys in sorted order.
	content, err := yaml.Marshal(s.Persistent())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("save state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("save state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	s.path = path
	log.Debug().Str("path", path).Int("bytes", len(content)).Msg("Saved state")
	return nil
}
