package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllHooksClosedSet(t *testing.T) {
	hooks := AllHooks()
	require.Len(t, hooks, 18)
	seen := map[string]bool{}
	for _, h := range hooks {
		assert.True(t, h.Valid())
		name := h.String()
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
		parsed, ok := ParseHook(name)
		require.True(t, ok)
		assert.Equal(t, h, parsed)
	}
}

func TestInvalidHooks(t *testing.T) {
	assert.False(t, Hook(0).Valid())
	assert.False(t, Hook(19).Valid())
	_, ok := ParseHook("before_setup_database")
	assert.False(t, ok)
	_, ok = ParseHook("")
	assert.False(t, ok)
}

func TestBracketHooks(t *testing.T) {
	before, after, err := BracketHooks(PhaseSetup, Target(Alerts))
	require.NoError(t, err)
	assert.Equal(t, BeforeSetupAlerts, before)
	assert.Equal(t, AfterSetupAlerts, after)

	before, after, err = BracketHooks(PhaseDestroy, TargetApp)
	require.NoError(t, err)
	assert.Equal(t, BeforeDestroyApp, before)
	assert.Equal(t, AfterDestroyApp, after)

	_, _, err = BracketHooks("rollout", TargetApp)
	assert.Error(t, err)
}

func TestRolloutOptionsDefaults(t *testing.T) {
	o := RolloutOptions{Descriptor: "skaffold.yaml"}.WithDefaults()
	assert.Equal(t, ActionRun, o.Action)
	assert.Equal(t, "default", o.Namespace)
	assert.Equal(t, "main", o.Profile)
	assert.NoError(t, o.Validate())

	o.Action = "apply"
	assert.Error(t, o.Validate())
	assert.Error(t, RolloutOptions{Action: ActionRun}.Validate())
}
