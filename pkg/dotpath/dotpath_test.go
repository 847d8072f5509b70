package dotpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "dotted keys are preserved",
			in:   map[string]any{"a": map[string]any{"b": map[string]any{"c.d": "x"}}},
			want: map[string]any{"a.b.c.d": "x"},
		},
		{
			name: "scalars at several depths",
			in: map[string]any{
				"deployment": map[string]any{"name": "demo", "plugins": map[string]any{"kubernetes": "kind"}},
				"port":       4317,
			},
			want: map[string]any{"deployment.name": "demo", "deployment.plugins.kubernetes": "kind", "port": 4317},
		},
		{
			name: "slices flatten by index",
			in:   map[string]any{"tags": []any{"a", "b"}},
			want: map[string]any{"tags.0": "a", "tags.1": "b"},
		},
		{
			name: "non string map keys",
			in:   map[string]any{"codes": map[any]any{200: "ok"}},
			want: map[string]any{"codes.200": "ok"},
		},
		{
			name: "null leaves are dropped",
			in:   map[string]any{"deployment": map[string]any{"name": "demo", "registry": nil}, "tags": []any{nil}},
			want: map[string]any{"deployment.name": "demo"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flatten(tt.in))
		})
	}
}

func TestMergeSourceWins(t *testing.T) {
	got := Merge(map[string]any{"a": 1, "b": 2}, map[string]any{"b": 3, "c": 4})
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, got)
}

func TestSub(t *testing.T) {
	m := map[string]any{"plugins.slack.channel": "c", "plugins.slack.channel_id": "C1", "plugins.kind.name": "k"}
	assert.Equal(t, map[string]any{"channel": "c", "channel_id": "C1"}, Sub(m, "plugins.slack"))
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "PLUGINS_SLACK_TOKEN", EnvName("plugins.slack.token"))
	assert.True(t, HasPrefix("context.command", "context"))
	assert.False(t, HasPrefix("contexts.x", "context"))
}
