package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the broker. Scraped from /metrics.
var (
	// Ingestion metrics
	AlertsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cs_alerts_ingested_total",
		Help: "Alerts accepted by the store, by source type",
	}, []string{"source_type"})

	AlertsDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cs_alerts_duplicate_total",
		Help: "Candidates rejected as duplicates by the dedup index",
	})

	AlertsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cs_alerts_evicted_total",
		Help: "Alerts evicted by the retention cap",
	})

	AdapterFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cs_adapter_fetch_errors_total",
		Help: "Adapter fetch failures (absorbed), by adapter key",
	}, []string{"adapter"})

	AdapterTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cs_adapter_ticks_total",
		Help: "Adapter ticks executed, by adapter key",
	}, []string{"adapter"})

	AdapterCandidates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cs_adapter_candidates_total",
		Help: "Candidates emitted by adapters, by adapter key",
	}, []string{"adapter"})

	// Distribution metrics
	StreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cs_streams_active",
		Help: "Current number of live subscriber streams",
	})

	StreamsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cs_streams_total",
		Help: "Total streams accepted since start",
	})

	FramesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cs_frames_sent_total",
		Help: "Frames enqueued to streams, by frame type",
	}, []string{"type"})

	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cs_frames_dropped_total",
		Help: "Frames dropped instead of enqueued, by reason",
	}, []string{"reason"})

	Deliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cs_deliveries_total",
		Help: "Alert deliveries (one per recipient subscriber)",
	})

	ChargeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cs_charge_failures_total",
		Help: "Charges refused for insufficient balance",
	})

	FanoutDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cs_fanout_duration_seconds",
		Help:    "Duration of a single alert fan-out",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	})

	// Publisher ingress metrics
	PublishRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cs_publish_requests_total",
		Help: "Publisher ingress requests, by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		AlertsIngested,
		AlertsDuplicate,
		AlertsEvicted,
		AdapterFetchErrors,
		AdapterTicks,
		AdapterCandidates,
		StreamsActive,
		StreamsTotal,
		FramesSent,
		FramesDropped,
		Deliveries,
		ChargeFailures,
		FanoutDuration,
		PublishRequests,
	)
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
