package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bc-dunia/sensorschema/internal/config"
	"github.com/bc-dunia/sensorschema/internal/events"
	"github.com/bc-dunia/sensorschema/internal/metrics"
	"github.com/bc-dunia/sensorschema/internal/otel"
	"github.com/bc-dunia/sensorschema/internal/procstats"
	"github.com/bc-dunia/sensorschema/internal/runner"
	"github.com/bc-dunia/sensorschema/internal/validation"
)

// exitError carries a non-default exit code for an outcome that is not a failure
// of the tool itself.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

type rootOptions struct {
	root            string
	schemaDir       string
	output          string
	failOnInvalid   bool
	listSchemas     bool
	logLevel        string
	logFormat       string
	traceExporter   string
	metricsExporter string
	otlpEndpoint    string
	otlpInsecure    bool
	metricsTextfile string
	stats           bool
}

func MakeRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sensorschema [path-to-json-file]",
		Short: "Validate a SensorInfo document against the sensor schema set",
		Long: fmt.Sprintf("Validate a JSON document against the sensor schema set.\n\n"+
			"With no argument %s in the working directory is validated.", config.DefaultInputPath),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.root, "root", config.DefaultRootSchema, "root schema, as a short name or full $id")
	flags.StringVar(&opts.schemaDir, "schema-dir", "", "load schemas from this directory instead of the built-in set")
	flags.StringVarP(&opts.output, "output", "o", runner.OutputJSON, "error record format: json, text or yaml")
	flags.BoolVar(&opts.failOnInvalid, "fail-on-invalid", false, fmt.Sprintf("exit with status %d when the document is invalid", config.ExitInvalidDocument))
	flags.BoolVar(&opts.listSchemas, "list-schemas", false, "print the registered schema ids and exit")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", events.FormatConsole, "log format: console or json")
	flags.StringVar(&opts.traceExporter, "trace-exporter", string(otel.ExporterNone), "trace exporter: none, stdout, otlp-grpc or otlp-http")
	flags.StringVar(&opts.metricsExporter, "metrics-exporter", string(otel.ExporterNone), "metrics exporter: none, stdout, otlp-grpc or otlp-http")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP collector endpoint, e.g. localhost:4317")
	flags.BoolVar(&opts.otlpInsecure, "otlp-insecure", false, "disable TLS for OTLP exporters")
	flags.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	flags.BoolVar(&opts.stats, "stats", false, "log process resource usage after the run")

	return cmd
}

func run(cmd *cobra.Command, args []string, opts *rootOptions) error {
	start := time.Now()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stderr := cmd.ErrOrStderr()

	logger := events.NewEventLoggerWithWriter(events.Config{
		Level:      opts.logLevel,
		Format:     opts.logFormat,
		TimeFormat: time.RFC3339,
	}, stderr)
	events.SetGlobalEventLogger(logger)

	tracer, m, err := setupTelemetry(ctx, opts, stderr)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTelemetry(shutdownCtx, tracer, m, logger)
	}()
	ctx = otel.ExtractFromEnv(ctx, tracer)

	registry, err := loadRegistry(opts.schemaDir, logger)
	if err != nil {
		return err
	}

	if opts.listSchemas {
		for _, id := range registry.IDs() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	}

	r, err := runner.New(registry, cmd.OutOrStdout(), runner.Options{
		RootSchema: opts.root,
		Output:     opts.output,
	})
	if err != nil {
		return err
	}
	r.SetTracer(tracer)
	r.SetMetrics(m)
	r.SetEventLogger(logger)

	var collector *metrics.Collector
	if opts.metricsTextfile != "" {
		collector = metrics.NewCollector()
		if err := collector.RegisterProcessCollector(); err != nil {
			return err
		}
		collector.SetSchemaCount(len(registry.IDs()))
		r.SetCollector(collector)
	}

	path := config.DefaultInputPath
	if len(args) > 0 {
		path = args[0]
	}

	result, err := r.Run(ctx, path)
	if err != nil {
		return err
	}

	if opts.stats {
		if sample, err := procstats.Collect(os.Getpid()); err == nil {
			logger.LogProcessStats(sample, time.Since(start))
			m.SetProcessRSS(sample.Process.MemRSS)
		}
	}

	if collector != nil {
		if err := collector.WriteTextfile(opts.metricsTextfile); err != nil {
			return err
		}
	}

	if opts.failOnInvalid && !result.Valid {
		return &exitError{
			code: config.ExitInvalidDocument,
			msg:  fmt.Sprintf("%s: %d validation error(s)", path, len(result.Errors)),
		}
	}
	return nil
}

func setupTelemetry(ctx context.Context, opts *rootOptions, w io.Writer) (*otel.Tracer, *otel.Metrics, error) {
	traceExp, err := otel.ParseExporterType(opts.traceExporter)
	if err != nil {
		return nil, nil, fmt.Errorf("--trace-exporter: %w", err)
	}
	metricsExp, err := otel.ParseExporterType(opts.metricsExporter)
	if err != nil {
		return nil, nil, fmt.Errorf("--metrics-exporter: %w", err)
	}

	tracer, err := otel.NewTracer(ctx, &otel.Config{
		Enabled:        traceExp != otel.ExporterNone,
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		ExporterType:   traceExp,
		OTLPEndpoint:   opts.otlpEndpoint,
		OTLPInsecure:   opts.otlpInsecure,
		Writer:         w,
	})
	if err != nil {
		return nil, nil, err
	}
	otel.SetGlobalTracer(tracer)

	m, err := otel.NewMetrics(ctx, &otel.MetricsConfig{
		Enabled:        metricsExp != otel.ExporterNone,
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		ExporterType:   metricsExp,
		OTLPEndpoint:   opts.otlpEndpoint,
		OTLPInsecure:   opts.otlpInsecure,
		Writer:         w,
	})
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, nil, err
	}
	otel.SetGlobalMetrics(m)

	return tracer, m, nil
}

// shutdownTelemetry flushes metrics before traces. Failures are logged; they
// never change the exit status.
func shutdownTelemetry(ctx context.Context, tracer *otel.Tracer, m *otel.Metrics, logger *events.EventLogger) {
	if err := m.Shutdown(ctx); err != nil {
		logger.LogTelemetryShutdownFailed("metrics", err)
	}
	if err := tracer.Shutdown(ctx); err != nil {
		logger.LogTelemetryShutdownFailed("tracer", err)
	}
}

func loadRegistry(schemaDir string, logger *events.EventLogger) (*validation.Registry, error) {
	source := "embedded"
	var (
		sources []validation.SchemaSource
		err     error
	)
	if schemaDir != "" {
		source = schemaDir
		sources, err = validation.LoadSchemaSources(os.DirFS(schemaDir), config.DefaultSchemaGlob)
	} else {
		sources, err = validation.EmbeddedSources()
	}
	if err != nil {
		return nil, err
	}

	registry, err := validation.NewRegistry(sources...)
	if err != nil {
		return nil, err
	}
	logger.LogSchemaSetLoaded(source, registry.IDs())
	return registry, nil
}
