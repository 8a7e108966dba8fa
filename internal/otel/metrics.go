// Package otel provides OpenTelemetry metrics integration for sensorschema.
package otel

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Writer receives stdout-exporter output. Defaults to os.Stderr.
	Writer io.Writer

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string

	// Reader overrides the exporter-backed reader (used by tests with a ManualReader).
	Reader sdkmetric.Reader
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "sensorschema",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps OpenTelemetry metrics functionality with sensorschema-specific helpers.
type Metrics struct {
	config        *MetricsConfig
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error
	mu            sync.Mutex
	processRSS    atomic.Int64
	rssGauge      metric.Int64ObservableGauge
	rssGaugeReg   metric.Registration

	// Metric instruments
	validations        metric.Int64Counter
	validationErrors   metric.Int64Counter
	validationDuration metric.Float64Histogram
	fatalErrors        metric.Int64Counter
}

// globalMetrics is the singleton metrics instance.
var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{
		config: cfg,
	}

	if !m.Enabled() {
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	reader := cfg.Reader
	if reader == nil {
		exporter, err := m.createExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter)
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

// createExporter creates the appropriate metrics exporter based on configuration.
func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		return stdoutmetric.New(stdoutmetric.WithWriter(w))

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// registerInstruments creates and registers all metric instruments.
func (m *Metrics) registerInstruments() error {
	var err error

	m.validations, err = m.meter.Int64Counter(
		"sensorschema.validations",
		metric.WithDescription("Count of validated documents by outcome"),
	)
	if err != nil {
		return fmt.Errorf("failed to create validations counter: %w", err)
	}

	m.validationErrors, err = m.meter.Int64Counter(
		"sensorschema.validation.errors",
		metric.WithDescription("Count of schema violations by keyword"),
	)
	if err != nil {
		return fmt.Errorf("failed to create validation error counter: %w", err)
	}

	m.validationDuration, err = m.meter.Float64Histogram(
		"sensorschema.validation.duration",
		metric.WithDescription("Time spent loading and validating a document"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create validation duration histogram: %w", err)
	}

	m.fatalErrors, err = m.meter.Int64Counter(
		"sensorschema.fatal_errors",
		metric.WithDescription("Count of configuration and load failures"),
	)
	if err != nil {
		return fmt.Errorf("failed to create fatal error counter: %w", err)
	}

	m.rssGauge, err = m.meter.Int64ObservableGauge(
		"sensorschema.process.rss",
		metric.WithDescription("Resident set size of the validator process"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rss gauge: %w", err)
	}

	m.rssGaugeReg, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			if v := m.processRSS.Load(); v > 0 {
				o.ObserveInt64(m.rssGauge, v)
			}
			return nil
		},
		m.rssGauge,
	)
	if err != nil {
		return fmt.Errorf("failed to register rss gauge callback: %w", err)
	}

	return nil
}

// RecordValidation records one validation outcome and its per-keyword violations.
func (m *Metrics) RecordValidation(ctx context.Context, rootSchema string, valid bool, keywords []string, durationMs float64) {
	if m.validations == nil {
		return
	}

	m.validations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("root_schema", rootSchema),
		attribute.Bool("valid", valid),
	))

	for _, kw := range keywords {
		m.validationErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("root_schema", rootSchema),
			attribute.String("keyword", kw),
		))
	}

	m.validationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("root_schema", rootSchema),
		attribute.Bool("valid", valid),
	))
}

// RecordFatal records a configuration or load failure.
func (m *Metrics) RecordFatal(ctx context.Context, category string) {
	if m.fatalErrors == nil {
		return
	}

	m.fatalErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
	))
}

// SetProcessRSS sets the value reported by the rss gauge.
func (m *Metrics) SetProcessRSS(bytes uint64) {
	m.processRSS.Store(int64(bytes))
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
// The rss callback stays registered until the final collection has run.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.shutdown != nil {
		err = m.shutdown(ctx)
		m.shutdown = nil
	}

	if m.rssGaugeReg != nil {
		if uerr := m.rssGaugeReg.Unregister(); uerr != nil && err == nil {
			err = fmt.Errorf("failed to unregister rss callback: %w", uerr)
		}
		m.rssGaugeReg = nil
	}

	return err
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	if !m.config.Enabled {
		return false
	}
	return m.config.Reader != nil || m.config.ExporterType != ExporterNone
}

// SetGlobalMetrics sets the global metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m

	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// GetGlobalMetrics returns the global metrics instance.
// Returns a no-op metrics instance if none has been set.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()

	if globalMetrics == nil {
		return NoopMetrics()
	}

	return globalMetrics
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}
