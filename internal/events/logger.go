// Package events provides structured logging for key events in sensorschema.
package events

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/bc-dunia/sensorschema/internal/procstats"
)

// Log output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     FormatConsole,
		TimeFormat: time.RFC3339,
	}
}

// EventLogger provides structured logging for key events in sensorschema.
type EventLogger struct {
	logger zerolog.Logger
}

// NewEventLogger creates a new EventLogger writing to stderr, so stdout stays
// reserved for validation output.
func NewEventLogger(cfg Config) *EventLogger {
	return NewEventLoggerWithWriter(cfg, os.Stderr)
}

// NewEventLoggerWithWriter creates a new EventLogger with output to a custom writer.
// Useful for testing or redirecting output.
func NewEventLoggerWithWriter(cfg Config, w io.Writer) *EventLogger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := w
	if cfg.Format == FormatConsole {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: cfg.TimeFormat,
			NoColor:    true,
		}
	}

	logger := zerolog.New(out).Level(level)
	if cfg.TimeFormat != "" {
		logger = logger.Hook(timestampHook{format: cfg.TimeFormat})
	}
	return &EventLogger{logger: logger}
}

// timestampHook stamps each event using its own layout; zerolog's
// Timestamp() reads the package-wide TimeFieldFormat instead.
type timestampHook struct {
	format string
}

func (h timestampHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Str(zerolog.TimestampFieldName, time.Now().Format(h.format))
}

// Logger returns the underlying zerolog logger.
func (el *EventLogger) Logger() zerolog.Logger {
	return el.logger
}

// withTrace adds trace_id and span_id from ctx when a span is recording.
func (el *EventLogger) withTrace(ctx context.Context, e *zerolog.Event) *zerolog.Event {
	if ctx == nil {
		return e
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		e = e.Str("trace_id", sc.TraceID().String())
	}
	if sc.HasSpanID() {
		e = e.Str("span_id", sc.SpanID().String())
	}
	return e
}

// LogSchemaSetLoaded logs a compiled schema set.
// event: "schema_set_loaded"
// Attributes: source, schema_count, schema_ids
func (el *EventLogger) LogSchemaSetLoaded(source string, ids []string) {
	el.logger.Debug().
		Str("event", "schema_set_loaded").
		Str("source", source).
		Int("schema_count", len(ids)).
		Strs("schema_ids", ids).
		Msg("schema set compiled")
}

// LogValidationPassed logs a document that conforms to its root schema.
// event: "validation_passed"
// Attributes: path, root_schema, duration_ms
func (el *EventLogger) LogValidationPassed(ctx context.Context, path, rootSchema string, duration time.Duration) {
	el.withTrace(ctx, el.logger.Info()).
		Str("event", "validation_passed").
		Str("path", path).
		Str("root_schema", rootSchema).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("document is valid")
}

// LogValidationFailed logs a document that does not conform to its root schema.
// event: "validation_failed"
// Attributes: path, root_schema, error_count, duration_ms
func (el *EventLogger) LogValidationFailed(ctx context.Context, path, rootSchema string, errorCount int, duration time.Duration) {
	el.withTrace(ctx, el.logger.Warn()).
		Str("event", "validation_failed").
		Str("path", path).
		Str("root_schema", rootSchema).
		Int("error_count", errorCount).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("document is invalid")
}

// LogFatal logs an error that terminates the run.
// event: "fatal"
func (el *EventLogger) LogFatal(err error) {
	el.logger.Error().
		Str("event", "fatal").
		Err(err).
		Msg("sensorschema failed")
}

// LogProcessStats logs resource usage of the current process and its host.
// event: "process_stats"
// Attributes: pid, cpu_percent, mem_rss, mem_vms, num_threads,
// host_cpu_percent, host_mem_total, host_mem_used, host_load_1, elapsed_ms
func (el *EventLogger) LogProcessStats(sample *procstats.Sample, elapsed time.Duration) {
	if sample == nil {
		return
	}
	e := el.logger.Info().Str("event", "process_stats")
	if p := sample.Process; p != nil {
		e = e.Int("pid", p.PID).
			Float64("cpu_percent", p.CPUPercent).
			Uint64("mem_rss", p.MemRSS).
			Uint64("mem_vms", p.MemVMS).
			Int("num_threads", p.NumThreads)
	}
	if h := sample.Host; h != nil {
		e = e.Float64("host_cpu_percent", h.CPUPercent).
			Uint64("host_mem_total", h.MemTotal).
			Uint64("host_mem_used", h.MemUsed).
			Float64("host_load_1", h.LoadAvg1)
	}
	e.Int64("elapsed_ms", elapsed.Milliseconds()).
		Msg("process stats")
}

// LogTelemetryShutdownFailed logs an exporter that could not flush on exit.
// event: "telemetry_shutdown_failed"
// Attributes: component, error
func (el *EventLogger) LogTelemetryShutdownFailed(component string, err error) {
	el.logger.Warn().
		Str("event", "telemetry_shutdown_failed").
		Str("component", component).
		Err(err).
		Msg("telemetry shutdown failed")
}

// Global logger management
var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex

	noopOnce   sync.Once
	noopLogger *EventLogger
)

// SetGlobalEventLogger sets the global event logger instance.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the global event logger instance.
// If no logger is set, returns the shared no-op logger.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns an event logger that discards all events.
func NoopEventLogger() *EventLogger {
	noopOnce.Do(func() {
		noopLogger = &EventLogger{logger: zerolog.Nop()}
	})
	return noopLogger
}
