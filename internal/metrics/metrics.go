// Package metrics exposes Prometheus instrumentation for runs: cache
// effectiveness, transcoder launches, asset outcomes, and in-flight work.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prism/internal/logging"
)

// Metrics bundles the collectors a run updates.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	TranscodeRuns  prometheus.Counter
	AssetFailures  prometheus.Counter
	AssetsInFlight prometheus.Gauge
	AssetDuration  prometheus.Histogram

	registry *prometheus.Registry
}

// New builds a metrics bundle on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "prism_result_cache_hits_total",
			Help: "Number of asset runs satisfied from the result cache.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "prism_result_cache_misses_total",
			Help: "Number of asset runs that required computation.",
		}),
		TranscodeRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "prism_transcode_runs_total",
			Help: "Number of external transcoder launches.",
		}),
		AssetFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prism_asset_failures_total",
			Help: "Number of asset runs that ended in failure.",
		}),
		AssetsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prism_assets_in_flight",
			Help: "Number of asset runs currently executing.",
		}),
		AssetDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prism_asset_duration_seconds",
			Help:    "Wall-clock duration of completed asset runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		registry: registry,
	}
}

// Serve exposes /metrics on bind until ctx ends. Listen errors are logged,
// not fatal; metrics are an observer, never a run dependency.
func (m *Metrics) Serve(ctx context.Context, bind string, logger *slog.Logger) {
	log := logging.NewComponentLogger(logger, "metrics")
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		log.Error("metrics listener failed", logging.Error(err), logging.String("bind", bind))
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", logging.String("bind", listener.Addr().String()))
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server stopped", logging.Error(err))
	}
}
