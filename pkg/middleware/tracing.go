package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"

	"tenantgate/pkg/config"
)

// Tracing installs an OTLP tracer provider when cfg.OTLPEndpoint is set and
// returns an otelhttp wrapper. The returned shutdown func flushes spans.
func Tracing(cfg config.Config, log *zap.SugaredLogger) (func(http.Handler) http.Handler, func(context.Context) error) {
	passthrough := func(next http.Handler) http.Handler { return next }
	noop := func(context.Context) error { return nil }
	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		return passthrough, noop
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	if strings.HasPrefix(strings.ToLower(endpoint), "http://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		log.Warnw("tracing: exporter init failed, instrumentation disabled", "err", err)
		return passthrough, noop
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(semconv.ServiceName("tenantgate")))
	if err != nil {
		log.Warnw("tracing: resource init failed, instrumentation disabled", "err", err)
		return passthrough, noop
	}
	tp := trace.NewTracerProvider(trace.WithBatcher(exp), trace.WithResource(res))
	otel.SetTracerProvider(tp)
	log.Infow("tracing enabled", "endpoint", endpoint)
	return func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, "http") }, tp.Shutdown
}
