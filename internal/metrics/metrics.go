// Package metrics exposes ingestion, dispatch and live channel measurements
// as Prometheus collectors.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sebas/amilive/internal/event"
	"github.com/sebas/amilive/internal/live"
)

const namespace = "amilive"

// Collector implements dispatch.Recorder and live.Observer on top of
// Prometheus metrics.
type Collector struct {
	submitted  *prometheus.CounterVec // by kind
	filtered   prometheus.Counter
	dropped    *prometheus.CounterVec // by kind
	dispatched *prometheus.CounterVec // by kind
	timedOut   *prometheus.CounterVec // by kind
	failures   *prometheus.CounterVec // by listener
	slow       *prometheus.CounterVec // by listener
	depth      prometheus.Gauge

	eventAge        prometheus.Histogram
	dispatchLatency *prometheus.HistogramVec // by kind

	hangups *prometheus.CounterVec // by cause
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_submitted_total",
			Help:      "Events accepted into the ingestion queue",
		}, []string{"kind"}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_filtered_total",
			Help:      "Raw events rejected because no listener is interested",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the queue was full or stopped",
		}, []string{"kind"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Events fanned out to listeners",
		}, []string{"kind"}),
		timedOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "timeouts_total",
			Help:      "Events whose listeners did not all finish within the dispatch timeout",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "listener_failures_total",
			Help:      "Listener invocations that returned an error or panicked",
		}, []string{"listener"}),
		slow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "listener_slow_total",
			Help:      "Listener invocations that exceeded the slow threshold",
		}, []string{"listener"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Events waiting in the ingestion queue",
		}),
		eventAge: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "event_age_seconds",
			Help:      "Time from receipt to dispatch",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time to fan one event out to its listeners",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 2},
		}, []string{"kind"}),
		hangups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channels",
			Name:      "hangups_total",
			Help:      "Channels that hung up, by cause",
		}, []string{"cause"}),
	}

	reg.MustRegister(
		c.submitted, c.filtered, c.dropped, c.dispatched, c.timedOut,
		c.failures, c.slow, c.depth, c.eventAge, c.dispatchLatency, c.hangups,
	)
	return c
}

func (c *Collector) EventSubmitted(kind event.Kind) {
	c.submitted.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) EventFiltered() {
	c.filtered.Inc()
}

func (c *Collector) EventDropped(kind event.Kind) {
	c.dropped.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) EventDispatched(kind event.Kind, age, elapsed time.Duration) {
	c.dispatched.WithLabelValues(string(kind)).Inc()
	c.eventAge.Observe(age.Seconds())
	c.dispatchLatency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (c *Collector) DispatchTimedOut(kind event.Kind) {
	c.timedOut.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) ListenerFailed(listener string) {
	c.failures.WithLabelValues(sanitize(listener)).Inc()
}

func (c *Collector) ListenerSlow(listener string) {
	c.slow.WithLabelValues(sanitize(listener)).Inc()
}

func (c *Collector) QueueDepth(depth int) {
	c.depth.Set(float64(depth))
}

// ChannelChanged counts hangups. Register it with live.Registry.AddObserver.
func (c *Collector) ChannelChanged(ch live.Change) {
	if ch.Property != live.PropState || ch.New != live.StateHungup {
		return
	}
	c.hangups.WithLabelValues(ch.Channel.HangupCause().String()).Inc()
}

// CountFunc reports active and retained hung-up channels.
type CountFunc func() (active, hungup int)

// RegisterChannelGauges exposes channel counts, read on every scrape.
func RegisterChannelGauges(reg prometheus.Registerer, counts CountFunc) {
	gauge := func(state string, pick func(active, hungup int) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "channels",
			Name:        "current",
			Help:        "Channels currently held by the registry",
			ConstLabels: prometheus.Labels{"state": state},
		}, func() float64 { return float64(pick(counts())) })
	}
	reg.MustRegister(
		gauge("active", func(a, _ int) int { return a }),
		gauge("hungup", func(_, h int) int { return h }),
	)
}

// sanitize avoids empty label values.
func sanitize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
