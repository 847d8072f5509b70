// Package otlp points the deployment at an OpenTelemetry receiver and marks
// rollouts in its metrics.
package otlp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/microbs-io/microbs/internal/plugins"
	"github.com/microbs-io/microbs/pkg/api"
)

const (
	Name = "otlp"
	// RolloutMetric is exported once per rollout.
	RolloutMetric = "microbs.rollout"
)

// Plugin talks OTLP/HTTP to otlp.receiver.host:port.
type Plugin struct {
	Deployment string
	Host       string
	Port       int
	State      api.State
	Exporter   *Exporter
}

// New is the registry factory.
func New(env api.Env) (any, error) {
	host := env.Config.String("otlp.receiver.host")
	if host == "" {
		return nil, fmt.Errorf("otlp: otlp.receiver.host is required")
	}
	port, err := env.Config.Int("otlp.receiver.port")
	if err != nil {
		return nil, fmt.Errorf("otlp: %w", err)
	}
	p := &Plugin{
		Deployment: env.Config.String("deployment.name"),
		Host:       host,
		Port:       port,
		State:      env.State,
	}
	client := plugins.NewHTTPClient(10*time.Second, plugins.DefaultRetryConfig())
	// otlp.receiver.headers.<name>: value, e.g. an auth token for a gateway.
	if h, ok := env.State.Get("otlp.receiver.headers"); ok {
		if headers, ok := h.(map[string]any); ok {
			for k, v := range headers {
				client.SetHeader(k, fmt.Sprint(v))
			}
		}
	}
	p.Exporter = &Exporter{
		Endpoint: p.MetricsURL(),
		Service:  "microbs",
		Version:  env.Config.String("deployment.version"),
		Client:   client,
	}
	return p, nil
}

// MetricsURL is the receiver's OTLP/HTTP metrics endpoint.
func (p *Plugin) MetricsURL() string {
	return "http://" + net.JoinHostPort(p.Host, strconv.Itoa(p.Port)) + "/v1/metrics"
}

func (p *Plugin) Setup(ctx context.Context) error {
	log.Info().Msg("")
	log.Info().Msgf("Checking the OTLP receiver at %s...", p.MetricsURL())
	if err := p.Exporter.Export(ctx, nil); err != nil {
		log.Error().Err(err).Msg("...failure. The OTLP receiver is not reachable.")
		return err
	}
	log.Info().Msg("...acknowledged. The OTLP receiver is ready.")
	p.State.Set("plugins.otlp.endpoint", p.MetricsURL())
	return p.State.Save()
}

func (p *Plugin) Rollout(ctx context.Context, opts api.RolloutOptions) error {
	log.Info().Msgf("Services export telemetry to %s", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
	return nil
}

func (p *Plugin) Validate(ctx context.Context) ([]api.ValidationResult, error) {
	if err := p.Exporter.Export(ctx, nil); err != nil {
		return []api.ValidationResult{{Message: "OTLP receiver is not reachable: " + err.Error()}}, nil
	}
	return []api.ValidationResult{{Success: true, Message: "OTLP receiver is reachable at " + p.MetricsURL()}}, nil
}

func (p *Plugin) Hooks() map[api.Hook]api.HookFunc {
	return map[api.Hook]api.HookFunc{
		api.AfterRollout: p.markRollout,
	}
}

// markRollout exports a gauge so dashboards can annotate the rollout. Export
// failures are logged only.
func (p *Plugin) markRollout(ctx context.Context) error {
	m := Metric{
		Name:  RolloutMetric,
		Value: 1,
		Labels: map[string]string{
			"deployment": p.Deployment,
			"profile":    p.State.GetString(api.ProfileKey),
			"version":    p.State.GetString("deployment.version"),
		},
	}
	if err := p.Exporter.Export(ctx, []Metric{m}); err != nil {
		log.Warn().Err(err).Msg("Could not export rollout marker")
	}
	return nil
}
