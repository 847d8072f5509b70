package plugins

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/microbs-io/microbs/pkg/api"
)

// ResolutionError reports every configured plugin or app that could not be
// resolved.
type ResolutionError struct {
	Kind  string // "plugin" or "app"
	Names []string
}

func (e *ResolutionError) Error() string {
	noun := e.Kind
	if len(e.Names) != 1 {
		noun += "s"
	}
	return fmt.Sprintf("%s not installed: %s (run: %s)", noun, strings.Join(e.Names, ", "), e.Remediation())
}

// Remediation is the command that installs the missing names.
func (e *ResolutionError) Remediation() string {
	return fmt.Sprintf("microbs %ss install %s", e.Kind, strings.Join(e.Names, " "))
}

func (e *ResolutionError) report() {
	verb := "is"
	noun := e.Kind
	pronoun := "it"
	if len(e.Names) > 1 {
		verb, noun, pronoun = "are", e.Kind+"s", "them"
	}
	log.Error().Msg("")
	log.Error().Msgf("The following %s %s not installed:", noun, verb)
	log.Error().Msg("")
	for _, n := range e.Names {
		log.Error().Msgf("    %s", n)
	}
	log.Error().Msg("")
	log.Error().Msgf("Run this command to install %s:", pronoun)
	log.Error().Msg("")
	log.Error().Msgf("    %s", e.Remediation())
	log.Error().Msg("")
}

// Loader resolves the plugins and app named in configuration.
type Loader struct {
	Registry   *Registry
	Config     api.Config
	State      api.State
	HomeDir    string
	PluginsDir string
	AppsDir    string
}

// Load resolves one plugin per configured category. Unknown names are
// collected and returned together as a *ResolutionError; any other factory
// failure is returned immediately.
func (l *Loader) Load() (*Set, error) {
	set := NewSet()
	var missing []string
	for _, cat := range api.Categories {
		name := l.Config.String("deployment.plugins." + string(cat))
		if name == "" {
			continue
		}
		entry, err := l.Registry.Get(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		dir := filepath.Join(l.PluginsDir, name)
		p, err := entry.New(api.Env{
			Name:    name,
			Dir:     dir,
			Config:  l.Config,
			State:   l.State,
			HomeDir: l.HomeDir,
		})
		if err != nil {
			if errors.Is(err, ErrNotRegistered) {
				missing = append(missing, name)
				continue
			}
			return nil, fmt.Errorf("load %s plugin %s: %w", cat, name, err)
		}
		if entry.Category != "" && entry.Category != cat {
			log.Warn().Str("plugin", name).Str("configured", string(cat)).Str("declared", string(entry.Category)).
				Msg("Plugin is configured under a different category than it declares")
		}
		set.modules[cat] = NewModule(name, cat, dir, p)
		log.Debug().Str("plugin", name).Str("category", string(cat)).Str("dir", dir).Msg("Loaded plugin")
	}
	if len(missing) > 0 {
		rerr := &ResolutionError{Kind: "plugin", Names: missing}
		rerr.report()
		return nil, rerr
	}
	return set, nil
}

// LoadApp resolves deployment.app to an installed app directory. It returns
// nil without error when no app is configured.
func (l *Loader) LoadApp() (*App, error) {
	name := l.Config.String("deployment.app")
	if name == "" {
		return nil, nil
	}
	dir := filepath.Join(l.AppsDir, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("resolve app %s: %w", name, err)
		}
		rerr := &ResolutionError{Kind: "app", Names: []string{name}}
		rerr.report()
		return nil, rerr
	}
	return &App{Name: name, Dir: dir}, nil
}

// LoadAll resolves plugins then the app.
func (l *Loader) LoadAll() (*Set, error) {
	set, err := l.Load()
	if err != nil {
		return nil, err
	}
	app, err := l.LoadApp()
	if err != nil {
		return nil, err
	}
	set.App = app
	return set, nil
}
