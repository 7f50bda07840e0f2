package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/relayq/relayq/pkg/build"
)

var log = logging.Logger("relayq/telemetry")

// Info is a gauge that always records the value 1.0, carrying its
// information as attributes instead of as the measurement itself
// (the Prometheus/OpenMetrics "info metric" idiom).
type Info struct {
	gauge metric.Float64Gauge
	mu    sync.Mutex
	attrs []attribute.KeyValue
}

type InfoConfig struct {
	Name        string
	Description string
	Labels      map[string]string
}

func NewInfo(meter metric.Meter, cfg InfoConfig) (*Info, error) {
	gauge, err := meter.Float64Gauge(cfg.Name, metric.WithDescription(cfg.Description))
	if err != nil {
		return nil, fmt.Errorf("failed to create info metric %s: %w", cfg.Name, err)
	}

	return &Info{
		gauge: gauge,
		attrs: labelAttrs(cfg.Labels),
	}, nil
}

// Record emits the info metric with its current labels.
func (i *Info) Record(ctx context.Context, extra ...attribute.KeyValue) {
	i.mu.Lock()
	attrs := append(append([]attribute.KeyValue{}, i.attrs...), extra...)
	i.mu.Unlock()
	i.gauge.Record(ctx, 1.0, metric.WithAttributes(attrs...))
}

// Update replaces the info metric's labels and immediately re-records it,
// so dashboards reading the latest data point see the new values.
func (i *Info) Update(ctx context.Context, labels map[string]string) {
	i.mu.Lock()
	i.attrs = labelAttrs(labels)
	i.mu.Unlock()
	i.Record(ctx)
}

func labelAttrs(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// ConstantGauge records a value fixed at creation time, for metadata that
// never changes for the lifetime of the process (e.g. a configured limit).
type ConstantGauge struct {
	gauge metric.Float64Gauge
	value float64
	attrs []attribute.KeyValue
}

type ConstantGaugeConfig struct {
	Name        string
	Description string
	Unit        string
	Value       float64
	Labels      map[string]string
}

func NewConstantGauge(meter metric.Meter, cfg ConstantGaugeConfig) (*ConstantGauge, error) {
	opts := []metric.Float64GaugeOption{metric.WithDescription(cfg.Description)}
	if cfg.Unit != "" {
		opts = append(opts, metric.WithUnit(cfg.Unit))
	}

	gauge, err := meter.Float64Gauge(cfg.Name, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create constant gauge %s: %w", cfg.Name, err)
	}

	return &ConstantGauge{
		gauge: gauge,
		value: cfg.Value,
		attrs: labelAttrs(cfg.Labels),
	}, nil
}

func (g *ConstantGauge) Record(ctx context.Context) {
	g.gauge.Record(ctx, g.value, metric.WithAttributes(g.attrs...))
}

// RecordBuildInfo records a one-shot info metric describing the running
// relayq binary's build provenance and process start time. Best effort:
// failures are logged, never returned, since telemetry must not block
// worker startup.
func RecordBuildInfo(ctx context.Context, component string) {
	info, err := Global().NewInfo(InfoConfig{
		Name:        "relayq_build_info",
		Description: "Build and runtime information about the running relayq component",
		Labels: map[string]string{
			"version":   build.Version,
			"commit":    build.Commit,
			"built_by":  build.BuiltBy,
			"date":      build.Date,
			"component": component,
		},
	})
	if err != nil {
		log.Warnw("failed to initialize relayq build info metric", "error", err, "component", component)
		return
	}
	info.Record(ctx, attribute.Int64("start_time_unix", time.Now().Unix()))
}
