// Package metrics provides Prometheus instrumentation for the auction engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atmx/auction-engine/internal/model"
)

var (
	// BidsTotal counts accepted bids, partitioned by phase.
	BidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bids_total",
		Help: "Total number of accepted bids",
	}, []string{"phase"})

	// BidRejections counts rejected bids by reason.
	BidRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bid_rejections_total",
		Help: "Bids rejected by the engine",
	}, []string{"reason"})

	WithdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_withdrawals_total",
		Help: "Total number of bid withdrawals",
	})

	// BidVolume tracks cumulative bid and refund volume in base units.
	BidVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_volume_total",
		Help: "Cumulative value moved, in base units",
	}, []string{"direction"})

	FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_fees_collected_total",
		Help: "Participation fees forwarded to the treasury",
	})

	HighBid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_high_bid",
		Help: "Current high bid in base units",
	})

	Bidders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_bidders",
		Help: "Number of participants with a positive balance",
	})

	Phase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_phase",
		Help: "Current bidding phase (0-2)",
	})

	Finalized = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_finalized",
		Help: "1 once the auction is finalized",
	})

	Paused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_paused",
		Help: "1 while the auction is paused",
	})

	// OperationLatency tracks engine operation latency including persistence.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auction_operation_latency_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// SinkErrors counts notifications a downstream sink failed to accept.
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_sink_errors_total",
		Help: "Notification delivery failures by sink",
	}, []string{"sink"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auction_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// RecordEvent updates counters and gauges from one engine notification.
func RecordEvent(ev model.Event) {
	switch ev.Kind {
	case model.EventBidPlaced:
		BidsTotal.WithLabelValues(strconv.Itoa(int(ev.Phase))).Inc()
		BidVolume.WithLabelValues("in").Add(ev.Amount.InexactFloat64())
	case model.EventBidWithdrawn:
		WithdrawalsTotal.Inc()
		BidVolume.WithLabelValues("out").Add(ev.Amount.InexactFloat64())
	case model.EventFeePaid:
		FeesCollected.Add(ev.Amount.InexactFloat64())
	case model.EventPhaseAdvanced:
		Phase.Set(float64(ev.Phase))
	case model.EventAuctionFinalized:
		Finalized.Set(1)
	case model.EventPaused:
		Paused.Set(1)
	case model.EventUnpaused:
		Paused.Set(0)
	}
	HighBid.Set(ev.HighBid.InexactFloat64())
}

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

		// Label by route pattern, not raw path, to bound cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
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

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
