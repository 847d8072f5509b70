// Package cli maps parsed command-line flags onto the invocation model.
package cli

import (
	"github.com/spf13/pflag"

	"github.com/microbs-io/microbs/internal/orchestrator"
)

// Commands that change the deployment. They load configuration and resolve
// plugins before anything runs.
var mutating = map[string]bool{
	"setup":     true,
	"rollout":   true,
	"stabilize": true,
	"destroy":   true,
}

// RequiresConfig reports whether command needs configuration and plugins
// loaded before it is dispatched.
func RequiresConfig(command string) bool {
	return mutating[command]
}

// Selection flag names.
const (
	FlagKubernetes    = "k8s"
	FlagObservability = "obs"
	FlagAlerts        = "alerts"
	FlagApp           = "app"
)

// AddSelectionFlags registers -k, -o, -l and -a on fs.
func AddSelectionFlags(fs *pflag.FlagSet) {
	fs.BoolP(FlagKubernetes, "k", false, "Target the kubernetes plugin")
	fs.BoolP(FlagObservability, "o", false, "Target the observability plugin")
	fs.BoolP(FlagAlerts, "l", false, "Target the alerts plugin")
	fs.BoolP(FlagApp, "a", false, "Target the application")
}

// SelectionFromFlags reads the selection flags. Every target is selected
// only when none of them was given; `--k8s=false` alone selects nothing.
func SelectionFromFlags(fs *pflag.FlagSet) orchestrator.Selection {
	var sel orchestrator.Selection
	set := func(name string) bool {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			return false
		}
		sel.Explicit = true
		v, err := fs.GetBool(name)
		return err == nil && v
	}
	sel.Kubernetes = set(FlagKubernetes)
	sel.Observability = set(FlagObservability)
	sel.Alerts = set(FlagAlerts)
	sel.App = set(FlagApp)
	return sel
}

// Context is the transient invocation context stored under state's context
// key for plugins to read. It is never saved.
func Context(command string, args []string, home string) map[string]any {
	positional := make([]any, len(args))
	for i, a := range args {
		positional[i] = a
	}
	return map[string]any{
		"command":   command,
		"args":      positional,
		"path.home": home,
	}
}
