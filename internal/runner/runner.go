// Package runner validates one input document against a root schema and
// prints the outcome.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bc-dunia/sensorschema/internal/config"
	"github.com/bc-dunia/sensorschema/internal/events"
	"github.com/bc-dunia/sensorschema/internal/metrics"
	"github.com/bc-dunia/sensorschema/internal/otel"
	"github.com/bc-dunia/sensorschema/internal/validation"
)

// Output formats for error records.
const (
	OutputJSON = "json"
	OutputText = "text"
	OutputYAML = "yaml"
)

// SuccessSuffix follows the input path in the message printed for a valid document.
const SuccessSuffix = "validated Schema"

// ErrInvalidOutput is returned for an unknown output format.
var ErrInvalidOutput = errors.New("invalid output format")

// Options controls a validation run.
type Options struct {
	// RootSchema is the short name or $id of the entry-point schema.
	RootSchema string

	// Output is one of OutputJSON, OutputText or OutputYAML.
	Output string
}

// DefaultOptions returns options that validate against SensorInfo and print JSON.
func DefaultOptions() Options {
	return Options{
		RootSchema: config.DefaultRootSchema,
		Output:     OutputJSON,
	}
}

// Runner performs validation runs against one registry.
type Runner struct {
	registry *validation.Registry
	out      io.Writer
	opts     Options

	tracer    *otel.Tracer
	metrics   *otel.Metrics
	logger    *events.EventLogger
	collector *metrics.Collector
}

// New creates a Runner that prints results to out.
// Telemetry defaults to the process-wide tracer, metrics and event logger.
func New(registry *validation.Registry, out io.Writer, opts Options) (*Runner, error) {
	if registry == nil {
		return nil, &validation.ConfigurationError{Err: errors.New("nil registry")}
	}
	if opts.RootSchema == "" {
		opts.RootSchema = config.DefaultRootSchema
	}
	switch opts.Output {
	case "":
		opts.Output = OutputJSON
	case OutputJSON, OutputText, OutputYAML:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutput, opts.Output)
	}

	return &Runner{
		registry: registry,
		out:      out,
		opts:     opts,
		tracer:   otel.GetGlobalTracer(),
		metrics:  otel.GetGlobalMetrics(),
		logger:   events.GetGlobalEventLogger(),
	}, nil
}

// SetTracer overrides the tracer.
func (r *Runner) SetTracer(t *otel.Tracer) {
	r.tracer = t
}

// SetMetrics overrides the OpenTelemetry metrics.
func (r *Runner) SetMetrics(m *otel.Metrics) {
	r.metrics = m
}

// SetEventLogger overrides the event logger.
func (r *Runner) SetEventLogger(l *events.EventLogger) {
	r.logger = l
}

// SetCollector attaches a Prometheus collector. Nil disables it.
func (r *Runner) SetCollector(c *metrics.Collector) {
	r.collector = c
}

// Run validates the document at path and prints the outcome.
// An invalid document is not an error: the result is returned with Valid false.
// Configuration and load failures are returned as errors and nothing is printed.
func (r *Runner) Run(ctx context.Context, path string) (*validation.ValidationResult, error) {
	start := time.Now()

	rootID, err := r.registry.Resolve(r.opts.RootSchema)
	if err != nil {
		r.metrics.RecordFatal(ctx, "configuration")
		return nil, err
	}

	doc, err := r.load(ctx, rootID, path)
	if err != nil {
		r.metrics.RecordFatal(ctx, "load")
		return nil, err
	}

	ctx, span := r.tracer.StartValidationSpan(ctx, otel.ValidationSpanOptions{
		Phase:      "validate",
		RootSchema: rootID,
		InputPath:  path,
	})
	defer span.End()

	result, err := r.registry.Validate(ctx, rootID, doc)
	if err != nil {
		otel.RecordError(span, err, "validate")
		r.metrics.RecordFatal(ctx, "validate")
		return nil, err
	}
	otel.RecordResult(span, result.Valid, len(result.Errors))

	elapsed := time.Since(start)
	r.record(ctx, rootID, path, result, elapsed)

	if err := r.print(path, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Runner) load(ctx context.Context, rootID, path string) (*validation.Document, error) {
	_, span := r.tracer.StartValidationSpan(ctx, otel.ValidationSpanOptions{
		Phase:      "load",
		RootSchema: rootID,
		InputPath:  path,
	})
	defer span.End()

	doc, err := validation.LoadDocument(path)
	if err != nil {
		otel.RecordError(span, err, "load")
		return nil, err
	}
	return doc, nil
}

func (r *Runner) record(ctx context.Context, rootID, path string, result *validation.ValidationResult, elapsed time.Duration) {
	keywords := make([]string, 0, len(result.Errors))
	for _, rec := range result.Errors {
		keywords = append(keywords, rec.Keyword)
	}

	r.metrics.RecordValidation(ctx, rootID, result.Valid, keywords, float64(elapsed.Microseconds())/1000.0)
	if r.collector != nil {
		r.collector.RecordValidation(rootID, result.Valid, keywords, elapsed)
	}

	if result.Valid {
		r.logger.LogValidationPassed(ctx, path, rootID, elapsed)
	} else {
		r.logger.LogValidationFailed(ctx, path, rootID, len(result.Errors), elapsed)
	}
}

func (r *Runner) print(path string, result *validation.ValidationResult) error {
	if result.Valid {
		_, err := fmt.Fprintf(r.out, "%s %s\n", path, SuccessSuffix)
		return err
	}
	if r.opts.Output == OutputText {
		_, err := io.WriteString(r.out, result.String())
		return err
	}
	return WriteRecords(r.out, r.opts.Output, result.Errors)
}

// WriteRecords renders error records to w in the given format.
func WriteRecords(w io.Writer, format string, records []validation.ErrorRecord) error {
	if records == nil {
		records = []validation.ErrorRecord{}
	}

	switch format {
	case OutputText:
		for _, rec := range records {
			if _, err := fmt.Fprintln(w, rec.String()); err != nil {
				return err
			}
		}
		return nil

	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()

	case OutputJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrInvalidOutput, format)
	}
}
