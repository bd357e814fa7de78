package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	IterationsRecorded prometheus.Counter
	HistoryLength      prometheus.Gauge

	Observations   *prometheus.CounterVec // outcome label: recorded|rejected|unassigned_zone|outside_horizon|invalid_delay
	Resolutions    *prometheus.CounterVec // metric label: wait|delay, level label: spatial|global|cap|disabled
	InvalidQueries prometheus.Counter
	Predictions    prometheus.Counter
	ReplayedEvents prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	RebuildDuration   prometheus.Histogram
	PublishDuration   prometheus.Histogram
	IterationDuration prometheus.Histogram

	TimeBinMinutes prometheus.Gauge
	Workers        prometheus.Gauge
}

func NewCollector(timeBin time.Duration, workers int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		IterationsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drt_feedback_iterations_recorded_total",
			Help: "Total iterations folded into the history.",
		}),
		HistoryLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drt_feedback_history_length",
			Help: "Number of snapshots in the history.",
		}),
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drt_feedback_observations_total",
			Help: "Trip observations by aggregation outcome.",
		}, []string{"outcome"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drt_feedback_resolutions_total",
			Help: "Estimates by metric and the fallback level that produced them.",
		}, []string{"metric", "level"}),
		InvalidQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drt_feedback_invalid_queries_total",
			Help: "Queries with a negative time or an unknown link.",
		}),
		Predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drt_feedback_replay_predictions_total",
			Help: "Trips predicted during replay.",
		}),
		ReplayedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drt_feedback_replayed_events_total",
			Help: "Passenger events replayed into the tracker.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drt_feedback_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drt_feedback_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drt_feedback_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		RebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drt_feedback_rebuild_duration_seconds",
			Help:    "Duration of the dynamic locator rebuild.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drt_feedback_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		IterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drt_feedback_iteration_duration_seconds",
			Help:    "Duration of one replayed iteration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		TimeBinMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drt_feedback_time_bin_minutes",
			Help: "Configured time bin width in minutes.",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drt_feedback_replay_workers",
			Help: "Number of prediction workers.",
		}),
	}

	// Register
	reg.MustRegister(
		c.IterationsRecorded, c.HistoryLength,
		c.Observations, c.Resolutions, c.InvalidQueries, c.Predictions, c.ReplayedEvents,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.RebuildDuration, c.PublishDuration, c.IterationDuration,
		c.TimeBinMinutes, c.Workers,
	)

	// Set static gauges
	c.TimeBinMinutes.Set(timeBin.Minutes())
	c.Workers.Set(float64(workers))

	return c
}

func (c *Collector) IterationRecorded(historyLen int) {
	c.IterationsRecorded.Inc()
	c.HistoryLength.Set(float64(historyLen))
}

func (c *Collector) ObservationsCounted(outcome string, n int) {
	c.Observations.WithLabelValues(outcome).Add(float64(n))
}

func (c *Collector) Resolved(metric, level string) {
	c.Resolutions.WithLabelValues(metric, level).Inc()
}

func (c *Collector) InvalidQuery() { c.InvalidQueries.Inc() }

func (c *Collector) RebuildObserve(d time.Duration) { c.RebuildDuration.Observe(d.Seconds()) }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
