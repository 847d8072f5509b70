package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/microbs-io/microbs/internal/config"
	"github.com/microbs-io/microbs/internal/plugins"
	"github.com/microbs-io/microbs/internal/state"
	"github.com/microbs-io/microbs/pkg/api"
)

// Dependencies are the external tools microbs invokes directly.
var Dependencies = []string{"docker", "kubectl", "skaffold"}

// reporter prints validation marks.
type reporter struct {
	out io.Writer
}

func (r *reporter) section(title string) { fmt.Fprintf(r.out, "\n%s\n", title) }

func (r *reporter) success(format string, args ...any) {
	fmt.Fprintf(r.out, "%s %s\n", color.New(color.Bold, color.FgHiGreen).Sprint("✓"), color.New(color.Faint).Sprintf(format, args...))
}

func (r *reporter) failure(format string, args ...any) {
	fmt.Fprintf(r.out, "%s %s\n", color.New(color.Bold, color.FgHiRed).Sprint("⨯"), fmt.Sprintf(format, args...))
}

func (r *reporter) unknown(format string, args ...any) {
	fmt.Fprintf(r.out, "%s %s\n", color.New(color.Bold, color.FgHiYellow).Sprint("?"), fmt.Sprintf(format, args...))
}

func (r *reporter) info(format string, args ...any) {
	fmt.Fprintf(r.out, "%s %s\n", color.New(color.Bold, color.FgHiCyan).Sprint("i"), fmt.Sprintf(format, args...))
}

func (r *reporter) result(res api.ValidationResult) {
	if res.Success {
		r.success("%s", res.Message)
	} else {
		r.failure("%s", res.Message)
	}
}

// validator checks the installation and configuration without changing
// anything.
type validator struct {
	r        *reporter
	paths    config.Paths
	catalog  *plugins.Registry
	lookPath func(string) (string, error)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate dependencies, configuration, plugins and app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			paths, err := config.ResolvePaths(dir)
			if err != nil {
				return err
			}
			v := &validator{
				r:        &reporter{out: cmd.OutOrStdout()},
				paths:    paths,
				catalog:  newCatalog(),
				lookPath: exec.LookPath,
			}
			v.run(cmd.Context())
			return nil
		},
	}
}

func (v *validator) run(ctx context.Context) {
	v.dependencies()
	cfg := v.config()
	if cfg != nil {
		v.plugins(ctx, cfg)
		v.app(cfg)
		v.history(ctx)
	}
	fmt.Fprintln(v.r.out)
}

func (v *validator) dependencies() {
	v.r.section("Validating dependencies...")
	for _, dep := range Dependencies {
		if _, err := v.lookPath(dep); err != nil {
			v.r.failure("%s is not installed", dep)
		} else {
			v.r.success("%s is installed", dep)
		}
	}
}

func (v *validator) config() *config.Config {
	v.r.section("Validating config...")
	content, err := config.Read(v.paths.Config)
	if err != nil {
		v.r.failure("config file does not exist: %s", v.paths.Config)
		return nil
	}
	v.r.success("config file exists: %s", v.paths.Config)
	if _, err := config.Parse(content); err != nil {
		v.r.failure("config file cannot be parsed: %v", err)
		return nil
	}
	v.r.success("config file can be parsed.")

	cfg, err := config.Load(v.paths)
	if err != nil {
		v.r.failure("%v", err)
		return nil
	}
	for _, key := range cfg.Missing(config.Required...) {
		v.r.failure("'%s' is required but missing from config.", key)
	}
	for _, key := range cfg.Missing(config.NormallyRequired...) {
		v.r.info("'%s' is normally required but missing from config.", key)
	}
	if port := cfg.String("otlp.receiver.port"); port != "" {
		if _, err := cfg.Int("otlp.receiver.port"); err != nil {
			v.r.failure("'otlp.receiver.port' expected an integer but found: %s", port)
		}
	}
	return cfg
}

func (v *validator) plugins(ctx context.Context, cfg *config.Config) {
	v.r.section("Validating plugins...")
	// Plugins see a throwaway copy of state so validate never writes.
	st := state.NewMemory(cfg.Values())
	for _, cat := range api.Categories {
		key := "deployment.plugins." + string(cat)
		name := cfg.String(key)
		if name == "" {
			v.r.unknown("'%s' does not name a plugin.", key)
			continue
		}
		entry, err := v.catalog.Get(name)
		if err != nil {
			v.r.failure("'%s' does not name an installed plugin: %s", key, name)
			continue
		}
		p, err := entry.New(api.Env{
			Name:    name,
			Dir:     filepath.Join(v.paths.Plugins, name),
			Config:  cfg,
			State:   st,
			HomeDir: v.paths.Home,
		})
		if err != nil {
			v.r.failure("the '%s' %s plugin could not be loaded: %v", name, cat, err)
			continue
		}
		m := plugins.NewModule(name, cat, filepath.Join(v.paths.Plugins, name), p)
		if !m.CanValidate() {
			v.r.unknown("the '%s' %s plugin does not implement 'validate'.", name, cat)
			continue
		}
		results, err := m.Validate(ctx)
		if err != nil {
			v.r.failure("the '%s' %s plugin failed to validate: %v", name, cat, err)
			continue
		}
		for _, res := range results {
			v.r.result(res)
		}
	}
}

func (v *validator) app(cfg *config.Config) {
	v.r.section("Validating apps...")
	name := cfg.String("deployment.app")
	if name == "" {
		v.r.unknown("'deployment.app' does not name an app.")
		return
	}
	app := &plugins.App{Name: name, Dir: filepath.Join(v.paths.Apps, name)}
	if info, err := os.Stat(app.Dir); err != nil || !info.IsDir() {
		v.r.failure("'deployment.app' does not name an installed app: %s", name)
		return
	}
	if _, err := os.Stat(app.Descriptor()); err != nil {
		v.r.failure("app %s has no deployment descriptor at %s", name, app.Descriptor())
		return
	}
	v.r.success("app %s is installed", name)
}

func (v *validator) history(ctx context.Context) {
	if _, err := os.Stat(v.paths.Ledger); errors.Is(err, fs.ErrNotExist) {
		return
	}
	v.r.section("Rollout history...")
	ledger, err := state.OpenLedger(v.paths.Ledger)
	if err != nil {
		v.r.unknown("could not open rollout history: %v", err)
		return
	}
	defer ledger.Close()
	last, err := ledger.Last(ctx)
	if err != nil {
		v.r.unknown("could not read rollout history: %v", err)
		return
	}
	if last == nil {
		v.r.info("no rollouts recorded yet.")
		return
	}
	msg := fmt.Sprintf("last rollout: %s %s [version=%s, at=%s]", last.Action, last.Profile, last.Version, last.CreatedAt.Format("2006-01-02 15:04:05"))
	if last.ExitCode != 0 {
		v.r.failure("%s exited %d", msg, last.ExitCode)
	} else {
		v.r.success("%s", msg)
	}
}
