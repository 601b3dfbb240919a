package prometheus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	pm "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uber/jaeger-client-go"
	"go.uber.org/zap"
)

var (
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Duration of handled requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)

	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Rejected authentications by stable error code.",
		},
		[]string{"code"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_rejections_total",
			Help: "Calls rejected by the admission gate.",
		},
		[]string{"action"},
	)

	AdmissionDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admission_degraded_total",
			Help: "Admission checks let through because the counter store was unavailable.",
		},
	)

	CacheFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_cache_fallbacks_total",
			Help: "Account lookups served by the credential store instead of the cache.",
		},
		[]string{"reason"},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Authenticated persistent connections held by this instance.",
		},
	)

	SrvMetrics = pm.NewServerMetrics(
		pm.WithServerHandlingTimeHistogram(
			pm.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3, 6, 9, 20, 30, 60, 90, 120}),
		),
	)
)

func init() {
	prometheus.MustRegister(
		requestDuration,
		AuthFailures,
		RateLimited,
		AdmissionDegraded,
		CacheFallbacks,
		ActiveConnections,
		SrvMetrics,
	)
}

// Exemplar attaches the jaeger trace id of the current span.
func Exemplar(ctx context.Context) prometheus.Labels {
	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		return nil
	}

	if sc, ok := span.Context().(jaeger.SpanContext); ok {
		return prometheus.Labels{"traceID": sc.TraceID().String()}
	}
	return nil
}

func ObserveRequest(d time.Duration, status int, op string) {
	requestDuration.WithLabelValues(op, strconv.Itoa(status)).Observe(d.Seconds())
}

type Metrics struct {
	srv *http.Server
}

func New(port int) *Metrics {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Metrics{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%v", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (m *Metrics) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := m.srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Debug("Error shutting down prometheus", zap.Error(err))
		}
	}()

	zap.L().Info("Starting prometheus", zap.String("addr", m.srv.Addr))
	if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zap.L().Error("Prometheus server error", zap.Error(err))
	}
}
