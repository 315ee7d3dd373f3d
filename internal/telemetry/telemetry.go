// Package telemetry provides Prometheus metrics, OpenTelemetry tracing,
// and unified structured logging helpers for the simulator.
package telemetry

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "origin_sim"

var (
	logLevel int32

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "connections_active",
		Help:      "Number of live WebSocket connections.",
	})

	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "frames_total",
		Help:      "WebSocket frames processed, by opcode and direction.",
	}, []string{"opcode", "direction"})

	PongTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "pong_timeouts_total",
		Help:      "Heartbeat pong timeouts observed across all connections.",
	})

	DispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "commands_total",
		Help:      "Commands dispatched, by command name.",
	}, []string{"command"})

	DispatchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "errors_total",
		Help:      "Command responses with a non-zero ErrorCode, by command name.",
	}, []string{"command"})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "emitter",
		Name:      "notifications_total",
		Help:      "Notifications broadcast, by subsystem.",
	}, []string{"subsystem"})

	DiscoverySends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "sends_total",
		Help:      "UDP discovery beacon datagrams sent, by interface.",
	}, []string{"iface"})

	DiscoveryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "errors_total",
		Help:      "UDP discovery beacon send failures.",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		FramesTotal,
		PongTimeouts,
		DispatchTotal,
		DispatchErrors,
		NotificationsTotal,
		DiscoverySends,
		DiscoveryErrors,
	)
	SetLogLevel("info")
}

// SetLogLevel switches the process-wide debug/info verbosity.
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		atomic.StoreInt32(&logLevel, 1)
		log.Printf("log_level=debug")
	default:
		atomic.StoreInt32(&logLevel, 0)
		log.Printf("log_level=info")
	}
}

func IsDebug() bool { return atomic.LoadInt32(&logLevel) == 1 }

func Debugf(format string, args ...interface{}) {
	if IsDebug() {
		log.Printf("DEBUG "+format, args...)
	}
}

// PrometheusHandler exposes registered metrics for the debug HTTP surface.
func PrometheusHandler() http.Handler { return promhttp.Handler() }

var tracer = otel.Tracer("origin-sim-core")

// Tracer returns the package-wide tracer used by the dispatcher, emitter and
// activity scheduler to annotate their work.
func Tracer() trace.Tracer { return tracer }

// InitTracer wires an OTLP/HTTP exporter when endpoint is non-empty, otherwise
// installs a no-op provider. Returns a shutdown func.
func InitTracer(endpoint, serviceName string) func() {
	ctx := context.Background()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	if endpoint == "" {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(serviceName),
			)),
		)
		otel.SetTracerProvider(tp)
		return func() { _ = tp.Shutdown(ctx) }
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		log.Printf("failed to create OTEL exporter: %v", err)
		return func() {}
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer: %v", err)
		}
	}
}

// TracingMiddleware starts a server span for each debug-surface HTTP request,
// using the same tracer as the dispatcher and emitter. Their spans start from
// a fresh context, so they are not children of a debug request's span.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prop := otel.GetTextMapPropagator()
		ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		spanName := r.Method + " " + r.URL.Path
		ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			semconv.HTTPMethodKey.String(r.Method),
			semconv.URLPathKey.String(r.URL.Path),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware writes one structured line per debug-surface HTTP request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rr, r)
		log.Printf("debug_http method=%s path=%q status=%d duration=%s remote=%s",
			r.Method, r.URL.Path, rr.status, time.Since(start), r.RemoteAddr)
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}
