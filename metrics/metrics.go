// Package metrics exports event counters to Prometheus and watches for
// bursts of failed logins.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jmcleod/irongate/eventlog"
	"github.com/jmcleod/irongate/internal/logger"
)

// Alert describes a failure spike.
type Alert struct {
	Count     int
	Threshold int
	Window    time.Duration
	Timestamp time.Time
}

// AlertFunc is invoked when failed logins within the window reach the threshold.
type AlertFunc func(Alert)

const (
	DefaultFailureWindow    = 1 * time.Minute
	DefaultFailureThreshold = 20
)

// Collector implements eventlog.Recorder. It is safe for concurrent use so
// the admin endpoint may scrape while the server loop records.
type Collector struct {
	events   *prometheus.CounterVec
	sessions prometheus.Gauge
	alerts   prometheus.Counter

	mu        sync.Mutex
	failures  []time.Time
	window    time.Duration
	threshold int
	alertFn   AlertFunc
	now       func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithFailureWindow sets the sliding window and threshold for spike alerts.
func WithFailureWindow(window time.Duration, threshold int) Option {
	return func(c *Collector) {
		if window > 0 {
			c.window = window
		}
		if threshold > 0 {
			c.threshold = threshold
		}
	}
}

// WithAlertFunc replaces the default alert handler, which logs a warning.
func WithAlertFunc(fn AlertFunc) Option {
	return func(c *Collector) { c.alertFn = fn }
}

// New registers the irongate collectors on reg.
func New(reg prometheus.Registerer, opts ...Option) *Collector {
	c := &Collector{
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "irongate_events_total",
				Help: "Total number of recorded events by kind",
			},
			[]string{"kind"},
		),
		sessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "irongate_sessions_active",
				Help: "Number of registered client sessions",
			},
		),
		alerts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "irongate_failure_alerts_total",
				Help: "Total number of failed-login spike alerts",
			},
		),
		window:    DefaultFailureWindow,
		threshold: DefaultFailureThreshold,
		now:       time.Now,
	}
	c.alertFn = func(a Alert) {
		logger.Warn("failed login spike", logger.KeyCount, a.Count, "threshold", a.Threshold, "window", a.Window)
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, k := range eventlog.Kinds {
		c.events.WithLabelValues(string(k))
	}
	return c
}

func (c *Collector) Record(e eventlog.Event) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(string(e.Kind)).Inc()
	switch e.Kind {
	case eventlog.ConnectionAccepted:
		c.sessions.Inc()
	case eventlog.Disconnected:
		c.sessions.Dec()
	case eventlog.AuthFailure, eventlog.AuthLockout, eventlog.InvalidUsername:
		c.recordFailure()
	}
}

func (c *Collector) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.failures = append(c.failures, now)
	c.failures = trimWindow(c.failures, now, c.window)

	if len(c.failures) >= c.threshold {
		c.alerts.Inc()
		if c.alertFn != nil {
			c.alertFn(Alert{Count: len(c.failures), Threshold: c.threshold, Window: c.window, Timestamp: now})
		}
		// Reset so one spike raises one alert.
		c.failures = c.failures[:0]
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
