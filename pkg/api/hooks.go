package api

import "fmt"

// Hook identifies a lifecycle extension point. The set is closed; the zero
// value is not a valid hook.
type Hook uint8

const (
	BeforeSetupAlerts Hook = iota + 1
	AfterSetupAlerts
	BeforeSetupKubernetes
	AfterSetupKubernetes
	BeforeSetupObservability
	AfterSetupObservability
	BeforeSetupApp
	AfterSetupApp
	BeforeDestroyAlerts
	AfterDestroyAlerts
	BeforeDestroyKubernetes
	AfterDestroyKubernetes
	BeforeDestroyObservability
	AfterDestroyObservability
	BeforeDestroyApp
	AfterDestroyApp
	BeforeRollout
	AfterRollout

	hookEnd
)

var hookNames = [...]string{
	BeforeSetupAlerts:          "before_setup_alerts",
	AfterSetupAlerts:           "after_setup_alerts",
	BeforeSetupKubernetes:      "before_setup_kubernetes",
	AfterSetupKubernetes:       "after_setup_kubernetes",
	BeforeSetupObservability:   "before_setup_observability",
	AfterSetupObservability:    "after_setup_observability",
	BeforeSetupApp:             "before_setup_app",
	AfterSetupApp:              "after_setup_app",
	BeforeDestroyAlerts:        "before_destroy_alerts",
	AfterDestroyAlerts:         "after_destroy_alerts",
	BeforeDestroyKubernetes:    "before_destroy_kubernetes",
	AfterDestroyKubernetes:     "after_destroy_kubernetes",
	BeforeDestroyObservability: "before_destroy_observability",
	AfterDestroyObservability:  "after_destroy_observability",
	BeforeDestroyApp:           "before_destroy_app",
	AfterDestroyApp:            "after_destroy_app",
	BeforeRollout:              "before_rollout",
	AfterRollout:               "after_rollout",
}

// AllHooks returns every valid hook in declaration order.
func AllHooks() []Hook {
	out := make([]Hook, 0, hookEnd-1)
	for h := BeforeSetupAlerts; h < hookEnd; h++ {
		out = append(out, h)
	}
	return out
}

func (h Hook) Valid() bool { return h >= BeforeSetupAlerts && h < hookEnd }

func (h Hook) String() string {
	if !h.Valid() {
		return fmt.Sprintf("hook(%d)", uint8(h))
	}
	return hookNames[h]
}

// ParseHook maps a hook name such as "after_rollout" to its identifier.
func ParseHook(name string) (Hook, bool) {
	for h := BeforeSetupAlerts; h < hookEnd; h++ {
		if hookNames[h] == name {
			return h, true
		}
	}
	return 0, false
}

// Phase is a bracketed lifecycle step.
type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhaseDestroy Phase = "destroy"
)

// Target is a category or the app, the unit a setup or destroy phase acts on.
type Target string

const TargetApp Target = "app"

// BracketHooks returns the before and after hooks around phase for target.
func BracketHooks(phase Phase, target Target) (before, after Hook, err error) {
	b, okB := ParseHook(fmt.Sprintf("before_%s_%s", phase, target))
	a, okA := ParseHook(fmt.Sprintf("after_%s_%s", phase, target))
	if !okB || !okA {
		return 0, 0, fmt.Errorf("no hooks for %s of %s", phase, target)
	}
	return b, a, nil
}
