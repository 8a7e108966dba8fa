// Package metrics provides Prometheus metrics exposition for sensorschema.
//
// A validation run is a short-lived process, so metrics are written to a
// node_exporter textfile instead of being served over HTTP.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "sensorschema"

// Collector collects and exposes sensorschema metrics in Prometheus format.
// Thread-safe for concurrent access.
type Collector struct {
	mu       sync.Mutex
	registry *prometheus.Registry

	validations       *prometheus.CounterVec
	validationErrors  *prometheus.CounterVec
	validationSeconds *prometheus.HistogramVec
	lastRun           prometheus.Gauge
	schemasRegistered prometheus.Gauge

	// Time function for testing
	nowFunc func() time.Time
}

// NewCollector creates a new metrics Collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Total number of validated documents by result",
		}, []string{"root_schema", "result"}),
		validationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Total number of schema violations by keyword",
		}, []string{"root_schema", "keyword"}),
		validationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Duration of document validation in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"root_schema"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed validation",
		}),
		schemasRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schemas_registered",
			Help:      "Number of schemas in the compiled schema set",
		}),
		nowFunc: time.Now,
	}

	c.registry.MustRegister(
		c.validations,
		c.validationErrors,
		c.validationSeconds,
		c.lastRun,
		c.schemasRegistered,
	)
	return c
}

// RegisterProcessCollector adds the standard process_* metrics to the registry.
func (c *Collector) RegisterProcessCollector() error {
	return c.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// SetSchemaCount records the size of the compiled schema set.
func (c *Collector) SetSchemaCount(n int) {
	c.schemasRegistered.Set(float64(n))
}

// RecordValidation records one validation outcome.
// keywords holds the keyword of each violation; it is empty for a valid document.
func (c *Collector) RecordValidation(rootSchema string, valid bool, keywords []string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := "valid"
	if !valid {
		result = "invalid"
	}
	c.validations.WithLabelValues(rootSchema, result).Inc()
	for _, kw := range keywords {
		c.validationErrors.WithLabelValues(rootSchema, kw).Inc()
	}
	c.validationSeconds.WithLabelValues(rootSchema).Observe(duration.Seconds())
	c.lastRun.Set(float64(c.nowFunc().Unix()))
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is written atomically so node_exporter never reads a partial file.
func (c *Collector) WriteTextfile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
