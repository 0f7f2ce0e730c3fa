package internal

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"runtime/trace"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	otrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "sliding-sync-client"

// Span is a runtime/trace region and an OTLP span covering the same work, so a sync cycle shows
// up both in `go tool trace` and in the collector.
type Span struct {
	region *trace.Region
	otlp   otrace.Span
}

func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	region := trace.StartRegion(ctx, name)
	ctx, otlp := otel.Tracer(tracerName).Start(ctx, name)
	return ctx, &Span{region: region, otlp: otlp}
}

func (s *Span) End() {
	s.region.End()
	s.otlp.End()
}

func (s *Span) SetAttribute(key string, val int) {
	s.otlp.SetAttributes(attribute.Int(key, val))
}

// RecordError is a no-op for a nil error.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.otlp.RecordError(err)
}

// Logf writes a runtime/trace log line and the same text as an event on the current span.
func Logf(ctx context.Context, category, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	trace.Log(ctx, category, msg)
	otrace.SpanFromContext(ctx).AddEvent(msg, otrace.WithAttributes(attribute.String("category", category)))
}

// OTLPConfig says where to export spans. URL is scheme://host[:port]; plain http is only sensible
// for local collectors.
type OTLPConfig struct {
	URL      string
	Username string
	Password string
	Version  string
}

func (c OTLPConfig) exporterOptions() ([]otlptracehttp.Option, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("OTLP URL %q: %w", c.URL, err)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, fmt.Errorf("OTLP URL %s cannot contain any path segments", c.URL)
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(u.Host)}
	if u.Scheme == "http" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if c.Username != "" && c.Password != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
		opts = append(opts, otlptracehttp.WithHeaders(map[string]string{
			"Authorization": "Basic " + creds,
		}))
	}
	logger.Info().Str("host", u.Host).Bool("insecure", u.Scheme == "http").Msg("ConfigureOTLP")
	return opts, nil
}

// ConfigureOTLP installs a batching OTLP/HTTP exporter as the global tracer provider. The returned
// func flushes and stops the exporter.
func ConfigureOTLP(ctx context.Context, cfg OTLPConfig) (shutdown func(context.Context) error, err error) {
	opts, err := cfg.exporterOptions()
	if err != nil {
		return nil, err
	}
	exp, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("ConfigureOTLP: %w", err)
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(tracerName),
			attribute.String("version", cfg.Version),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.Baggage{}, propagation.TraceContext{},
	))
	return tp.Shutdown, nil
}
