// Package metrics provides Prometheus instrumentation for the lending engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InvestmentsTotal counts accepted investments, partitioned by loan.
	InvestmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lending_investments_total",
		Help: "Total number of accepted investments",
	}, []string{"loan"})

	// InvestmentRejections counts rejected investments by reason.
	InvestmentRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lending_investment_rejections_total",
		Help: "Investments rejected by validation or limits",
	}, []string{"reason"})

	// InterestRunsTotal counts interest accrual runs.
	InterestRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lending_interest_runs_total",
		Help: "Total number of interest accrual runs",
	})

	// InterestCredited accumulates interest credited to wallets.
	// Metric precision only; the ledger keeps the exact decimals.
	InterestCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lending_interest_credited_total",
		Help: "Cumulative interest credited to investor wallets",
	})

	// ActiveLoans tracks the number of loans in the ledger.
	ActiveLoans = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lending_active_loans",
		Help: "Number of loans currently in the ledger",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lending_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lending_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lending_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the route surface is small
		// enough that cardinality stays manageable.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
