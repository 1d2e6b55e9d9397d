// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry initializes OpenTelemetry for the debugging tool.
//
// # Description
//
// Sets up the global TracerProvider and MeterProvider so the agent's
// otel.Tracer and otel.Meter calls record real data. Telemetry is off
// by default: this is a local tool and nothing leaves the machine
// unless the user turns an exporter on. When the prometheus metric
// exporter is selected the package also serves a /metrics endpoint,
// which is how a long debugging session gets watched from a browser.
//
// Standard OTel environment variables override the defaults:
//
//   - OTEL_TRACES_EXPORTER: stdout or otlp (default: stdout)
//   - OTEL_METRICS_EXPORTER: stdout or prometheus (default: stdout)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//
// # Thread Safety
//
// Call Init once at startup. MetricsHandler is safe for concurrent
// use after Init returns.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
)

// DefaultMetricsAddr is the prometheus scrape address used when the
// config leaves it empty.
const DefaultMetricsAddr = ":9464"

var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrUnknownExporter is returned when an unknown exporter type is
	// specified.
	ErrUnknownExporter = errors.New("unknown exporter type")
)

// Config controls telemetry behavior.
type Config struct {
	// Enabled turns the stack on. When false, Init is a no-op and the
	// global providers stay at their no-op defaults.
	Enabled bool

	// ServiceName identifies this process in traces and metrics.
	ServiceName string

	// ServiceVersion is the build version string.
	ServiceVersion string

	// TraceExporter selects the trace exporter: "stdout" or "otlp".
	// Empty means "stdout".
	TraceExporter string

	// MetricExporter selects the metric exporter: "stdout" or
	// "prometheus". Empty means "stdout".
	MetricExporter string

	// OTLPEndpoint is the OTLP receiver endpoint for traces.
	OTLPEndpoint string

	// MetricsAddr is the listen address for the prometheus /metrics
	// endpoint. Empty means DefaultMetricsAddr.
	MetricsAddr string

	// Logger defaults to the process logger.
	Logger *logging.Logger
}

// DefaultConfig returns local-tool defaults: everything off, and
// stdout exporters once enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "debugbuddy",
		ServiceVersion: "dev",
		TraceExporter:  getEnvOr("OTEL_TRACES_EXPORTER", "stdout"),
		MetricExporter: getEnvOr("OTEL_METRICS_EXPORTER", "stdout"),
		OTLPEndpoint:   getEnvOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		MetricsAddr:    DefaultMetricsAddr,
	}
}

// Init initializes the telemetry stack.
//
// Inputs:
//   - ctx: used for exporter connections
//   - cfg: telemetry configuration; a disabled config is valid
//
// Outputs:
//   - shutdown: must be called on exit; flushes exporters and stops
//     the metrics listener. Never nil when err is nil.
//   - error: non-nil if an exporter cannot be built or the metrics
//     address cannot be bound
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("telemetry shutdown: %v", errs)
		}
		return nil
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tp, err := initTracer(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	mp, stopMetrics, err := initMeter(cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("init meter: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	if stopMetrics != nil {
		shutdownFuncs = append(shutdownFuncs, stopMetrics)
	}

	cfg.Logger.Debug("telemetry initialized",
		"trace_exporter", exporterOr(cfg.TraceExporter),
		"metric_exporter", exporterOr(cfg.MetricExporter))
	return shutdown, nil
}

// initTracer builds the TracerProvider for the configured exporter.
func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error

	switch exporterOr(cfg.TraceExporter) {
	case "otlp":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			// Local collectors only; there is no TLS story for a
			// loopback OTLP receiver.
			otlptracegrpc.WithInsecure(),
		)

	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	), nil
}

// prometheusHandler stores the exporter's HTTP handler. Access via
// MetricsHandler().
var (
	prometheusHandler   http.Handler
	prometheusHandlerMu sync.RWMutex
)

// MetricsHandler returns the /metrics HTTP handler, or nil when the
// prometheus exporter is not active.
func MetricsHandler() http.Handler {
	prometheusHandlerMu.RLock()
	defer prometheusHandlerMu.RUnlock()
	return prometheusHandler
}

// initMeter builds the MeterProvider and, for prometheus, starts the
// scrape listener. The returned stop function is nil for exporters
// without a listener.
func initMeter(cfg Config, res *resource.Resource) (*metric.MeterProvider, func(context.Context) error, error) {
	switch exporterOr(cfg.MetricExporter) {
	case "prometheus":
		exporter, err := promexporter.New()
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		// The exporter registers with the default prometheus registry,
		// so promhttp.Handler() includes our instruments.
		prometheusHandlerMu.Lock()
		prometheusHandler = promhttp.Handler()
		prometheusHandlerMu.Unlock()

		stop, err := startMetricsServer(cfg.MetricsAddr, cfg.Logger)
		if err != nil {
			return nil, nil, err
		}

		mp := metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		)
		return mp, stop, nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}

		mp := metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		)
		return mp, nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

// startMetricsServer serves /metrics on addr until shutdown.
func startMetricsServer(addr string, log *logging.Logger) (func(context.Context) error, error) {
	if addr == "" {
		addr = DefaultMetricsAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", "error", err.Error())
		}
	}()
	log.Info("metrics endpoint serving", "addr", ln.Addr().String())

	return srv.Shutdown, nil
}

// exporterOr maps an empty exporter name to the stdout default.
func exporterOr(name string) string {
	if name == "" {
		return "stdout"
	}
	return name
}

// getEnvOr returns the environment variable value or the fallback.
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
