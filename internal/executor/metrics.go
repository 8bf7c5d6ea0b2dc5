package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Simulation metrics.
var (
	trialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mamsim_trials_total",
		Help: "Replicate trials simulated to a terminal decision",
	})

	trialErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mamsim_trial_errors_total",
		Help: "Replicate trials that failed",
	})

	trialStages = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mamsim_trial_stages",
		Help:    "Interim analyses per trial",
		Buckets: prometheus.LinearBuckets(1, 2, 15),
	})

	trialPatients = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mamsim_trial_patients",
		Help:    "Total patients per trial across arms",
		Buckets: prometheus.ExponentialBuckets(16, 2, 10),
	})
)

// MetricsServer exposes the simulation metrics over HTTP for the duration
// of a run.
type MetricsServer struct {
	srv  *http.Server
	addr net.Addr
}

// ServeMetrics starts serving the engine's prometheus metrics at
// addr under /metrics. The server runs until Close is called.
func ServeMetrics(addr string) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return &MetricsServer{srv: srv, addr: ln.Addr()}, nil
}

// Addr returns the address the server is listening on.
func (m *MetricsServer) Addr() string { return m.addr.String() }

// Close stops the metrics server.
func (m *MetricsServer) Close() error { return m.srv.Close() }
