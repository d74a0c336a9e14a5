// Package observability sets up OpenTelemetry tracing. When tracing is
// disabled the global no-op provider stays in place and spans cost
// nothing; when enabled, spans are batched and exported over OTLP/HTTP.
package observability

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/nugget/libula/internal/config"
	"github.com/nugget/libula/internal/reqctx"
)

// ServiceName identifies this process in exported traces.
const ServiceName = "libula"

// Provider owns the tracer provider installed by [Init].
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Init installs a global tracer provider exporting to cfg.Endpoint, the
// full OTLP traces URL. Public and secret keys, when set, are sent as
// HTTP basic auth. A disabled config returns a Provider whose Shutdown
// does nothing.
func Init(ctx context.Context, cfg config.TracingConfig, version string) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("tracing enabled without endpoint")
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	env := cfg.Environment
	if env == "" {
		env = "development"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(version),
		attribute.String("deployment.environment", env),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(100),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(RequestAttributes{}),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse tracing endpoint: %w", err)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		otlptracehttp.WithTimeout(30 * time.Second),
	}
	if cfg.PublicKey != "" || cfg.SecretKey != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(cfg.PublicKey + ":" + cfg.SecretKey))
		opts = append(opts, otlptracehttp.WithHeaders(map[string]string{
			"Authorization": "Basic " + auth,
		}))
	}
	if u.Scheme == "http" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP HTTP exporter: %w", err)
	}
	return exporter, nil
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// RequestAttributes is a span processor that stamps every span with
// the request id bound to its context.
type RequestAttributes struct{}

// OnStart implements [sdktrace.SpanProcessor].
func (RequestAttributes) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if id := reqctx.RequestID(ctx); id != "" {
		s.SetAttributes(attribute.String("libula.request_id", id))
	}
}

// OnEnd implements [sdktrace.SpanProcessor].
func (RequestAttributes) OnEnd(sdktrace.ReadOnlySpan) {}

// Shutdown implements [sdktrace.SpanProcessor].
func (RequestAttributes) Shutdown(context.Context) error { return nil }

// ForceFlush implements [sdktrace.SpanProcessor].
func (RequestAttributes) ForceFlush(context.Context) error { return nil }
