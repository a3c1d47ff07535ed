package perfdata

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/types"
)

// OTLPWriter streams perfdata points as OTLP metrics over HTTP. Each
// check result becomes one gauge observation per perfdata point, tagged
// with the owning checkable (and its zone, when set) as metric
// attributes; the SDK's periodic reader batches and flushes these
// independently of the Writer's own queue, which only carries the cheap
// "record the latest value" calls.
type OTLPWriter struct {
	*Writer

	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	mu     sync.Mutex
	gauges map[string]metric.Float64Gauge
}

// OTLPConfig describes the collector endpoint and resource identity an
// OTLPWriter reports under.
type OTLPConfig struct {
	Endpoint       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	InstanceID     string
}

// NewOTLPWriter builds an OTLPWriter exporting to cfg.Endpoint via
// OTLP/HTTP, flushing on its own periodic reader interval (independent of
// the bounded task queue, which only ever holds "record observation"
// closures).
func NewOTLPWriter(name string, capacity int, cfg OTLPConfig) (*OTLPWriter, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.ServiceInstanceID(cfg.InstanceID),
	))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
	)

	w := &OTLPWriter{
		Writer:   NewWriter(name, capacity),
		provider: provider,
		meter:    provider.Meter("github.com/cuemby/warren/internal/perfdata"),
		gauges:   make(map[string]metric.Float64Gauge),
	}
	return w, nil
}

// Write implements internal/checkresult.PerfSink: it enqueues one task
// per result that records every perfdata point as a gauge observation.
func (w *OTLPWriter) Write(checkableID string, c *types.Checkable, result *types.CheckResult) {
	if len(result.PerfData) == 0 {
		return
	}
	points := append([]types.PerfDataPoint(nil), result.PerfData...)
	attrs := []attribute.KeyValue{attribute.String("checkable", checkableID)}
	if c != nil && c.Zone != "" {
		attrs = append(attrs, attribute.String("zone", c.Zone))
	}
	w.Enqueue(Task{Fn: func(ctx context.Context) error {
		for _, pd := range points {
			gauge, err := w.gaugeFor(pd.Label)
			if err != nil {
				return err
			}
			gauge.Record(ctx, pd.Value, metric.WithAttributes(attrs...))
		}
		return nil
	}})
}

func (w *OTLPWriter) gaugeFor(label string) (metric.Float64Gauge, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if g, ok := w.gauges[label]; ok {
		return g, nil
	}
	g, err := w.meter.Float64Gauge("icinga." + label)
	if err != nil {
		return nil, err
	}
	w.gauges[label] = g
	return g, nil
}

// Shutdown stops the writer and flushes any buffered metrics through the
// exporter, logging (but not returning) a flush error since this runs
// during process teardown.
func (w *OTLPWriter) Shutdown(ctx context.Context) {
	w.Stop()
	if err := w.provider.Shutdown(ctx); err != nil {
		log.WithComponent("perfdata.otlp").Warn().Err(err).Msg("otlp provider shutdown failed")
	}
}
