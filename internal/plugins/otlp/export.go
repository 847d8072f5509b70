package otlp

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/microbs-io/microbs/internal/plugins"
)

// Metric is one gauge data point.
type Metric struct {
	Name      string
	Value     float64
	Labels    map[string]string
	Timestamp time.Time
	Unit      string
}

// Exporter posts metrics to an OTLP/HTTP receiver as JSON.
type Exporter struct {
	Endpoint string
	Service  string
	Version  string
	Client   *plugins.HTTPClient
}

// OTLP JSON encoding, metrics only.
type metricsPayload struct {
	ResourceMetrics []resourceMetrics `json:"resourceMetrics"`
}

type resourceMetrics struct {
	Resource     resource       `json:"resource"`
	ScopeMetrics []scopeMetrics `json:"scopeMetrics"`
}

type resource struct {
	Attributes []attribute `json:"attributes"`
}

type scopeMetrics struct {
	Scope   scope    `json:"scope"`
	Metrics []metric `json:"metrics"`
}

type scope struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type metric struct {
	Name  string `json:"name"`
	Unit  string `json:"unit,omitempty"`
	Gauge *gauge `json:"gauge,omitempty"`
}

type gauge struct {
	DataPoints []numberDataPoint `json:"dataPoints"`
}

type numberDataPoint struct {
	Attributes   []attribute `json:"attributes,omitempty"`
	TimeUnixNano string      `json:"timeUnixNano"`
	AsDouble     float64     `json:"asDouble"`
}

type attribute struct {
	Key   string `json:"key"`
	Value value  `json:"value"`
}

type value struct {
	StringValue string `json:"stringValue"`
}

// Export sends metrics in one request. An empty slice still sends an empty
// payload, which receivers accept; Setup uses that as a reachability check.
func (e *Exporter) Export(ctx context.Context, metrics []Metric) error {
	payload := e.payload(metrics)
	if err := e.Client.DoJSON(ctx, http.MethodPost, e.Endpoint, payload, nil); err != nil {
		return fmt.Errorf("export to %s: %w", e.Endpoint, err)
	}
	log.Debug().
		Str("endpoint", e.Endpoint).
		Int("metric_count", len(metrics)).
		Msg("Exported metrics via OTLP")
	return nil
}

func (e *Exporter) payload(metrics []Metric) metricsPayload {
	out := make([]metric, 0, len(metrics))
	for _, m := range metrics {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		dp := numberDataPoint{
			Attributes:   attributes(m.Labels),
			TimeUnixNano: fmt.Sprintf("%d", ts.UnixNano()),
			AsDouble:     m.Value,
		}
		out = append(out, metric{Name: m.Name, Unit: m.Unit, Gauge: &gauge{DataPoints: []numberDataPoint{dp}}})
	}
	return metricsPayload{
		ResourceMetrics: []resourceMetrics{{
			Resource: resource{Attributes: attributes(map[string]string{
				"service.name":    e.Service,
				"service.version": e.Version,
			})},
			ScopeMetrics: []scopeMetrics{{
				Scope:   scope{Name: e.Service, Version: e.Version},
				Metrics: out,
			}},
		}},
	}
}

func attributes(labels map[string]string) []attribute {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]attribute, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute{Key: k, Value: value{StringValue: labels[k]}})
	}
	return attrs
}
