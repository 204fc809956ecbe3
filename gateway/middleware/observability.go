package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tenure/observability"
)

type ObservabilityConfig struct {
	ServiceName string
	LogRequests bool
	Enabled     bool
}

// Observability traces gateway requests and feeds the shared gateway metrics.
type Observability struct {
	cfg     ObservabilityConfig
	logger  *log.Logger
	tracer  trace.Tracer
	metrics *observability.GatewayMetrics
}

func NewObservability(cfg ObservabilityConfig, logger *log.Logger) *Observability {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tenure-gateway"
	}
	return &Observability{
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer(cfg.ServiceName),
		metrics: observability.Gateway(),
	}
}

// Middleware wraps next with a server span, request metrics and optional
// access logging for one route group. Disabled observability returns next
// untouched.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !o.cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			o.observe(route, w, r, next)
		})
	}
}

func (o *Observability) observe(route string, w http.ResponseWriter, r *http.Request, next http.Handler) {
	start := time.Now()
	ctx, span := o.tracer.Start(r.Context(), route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
		))
	defer span.End()

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	next.ServeHTTP(recorder, r.WithContext(ctx))

	span.SetAttributes(attribute.Int("http.status_code", recorder.status))
	elapsed := time.Since(start)
	o.metrics.ObserveRequest(route, recorder.status, elapsed)
	if o.cfg.LogRequests {
		o.logger.Printf("%s %s route=%s status=%d elapsed=%s", r.Method, r.URL.Path, route, recorder.status, elapsed.Round(time.Microsecond))
	}
}

// MetricsHandler exposes the process-wide Prometheus registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
