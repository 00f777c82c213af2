/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stackmcp/sodispatch/accessmode"
)

// Request finish statuses for metrics labels.
const (
	requestStatusSuccess = "success"
	requestStatusError   = "error"
)

// MetricsCollector represents a collector of metrics about dispatching.
type MetricsCollector interface {
	// SetQueueSize sets the number of pending requests for the priority.
	SetQueueSize(priority Priority, amount int)

	// SetInFlightAmount sets the number of requests currently being executed.
	SetInFlightAmount(amount int)

	// IncRetriesTotal increments the total number of retried attempts.
	IncRetriesTotal()

	// IncModeSwitchesTotal increments the total number of authenticated-to-anonymous fallbacks.
	IncModeSwitchesTotal()

	// ObserveRequestFinish observes the duration of a finished physical call.
	ObserveRequestFinish(mode accessmode.Mode, status string, startTime time.Time)
}

type disabledMetrics struct{}

func (disabledMetrics) SetQueueSize(Priority, int)                             {}
func (disabledMetrics) SetInFlightAmount(int)                                  {}
func (disabledMetrics) IncRetriesTotal()                                       {}
func (disabledMetrics) IncModeSwitchesTotal()                                  {}
func (disabledMetrics) ObserveRequestFinish(accessmode.Mode, string, time.Time) {}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets for the request duration histogram.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// DefaultDurationBuckets is default buckets for the request duration histogram.
var DefaultDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// PrometheusMetrics represents Prometheus metrics about dispatching.
type PrometheusMetrics struct {
	QueueSize         *prometheus.GaugeVec
	InFlightAmount    prometheus.Gauge
	RetriesTotal      prometheus.Counter
	ModeSwitchesTotal prometheus.Counter
	RequestDurations  *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	if opts.DurationBuckets == nil {
		opts.DurationBuckets = DefaultDurationBuckets
	}
	return &PrometheusMetrics{
		QueueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "dispatch_queue_size",
			Help:        "Number of pending requests in the dispatch queue.",
			ConstLabels: opts.ConstLabels,
		}, []string{"priority"}),
		InFlightAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "dispatch_in_flight_requests",
			Help:        "Number of requests currently being executed.",
			ConstLabels: opts.ConstLabels,
		}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "dispatch_retries_total",
			Help:        "Number of retried upstream calls.",
			ConstLabels: opts.ConstLabels,
		}),
		ModeSwitchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "dispatch_mode_switches_total",
			Help:        "Number of authenticated to anonymous access fallbacks.",
			ConstLabels: opts.ConstLabels,
		}),
		RequestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "dispatch_request_duration_seconds",
			Help:        "Duration of finished upstream calls.",
			Buckets:     opts.DurationBuckets,
			ConstLabels: opts.ConstLabels,
		}, []string{"mode", "status"}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.QueueSize, pm.InFlightAmount, pm.RetriesTotal, pm.ModeSwitchesTotal, pm.RequestDurations)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.QueueSize)
	prometheus.Unregister(pm.InFlightAmount)
	prometheus.Unregister(pm.RetriesTotal)
	prometheus.Unregister(pm.ModeSwitchesTotal)
	prometheus.Unregister(pm.RequestDurations)
}

// SetQueueSize sets the number of pending requests for the priority.
func (pm *PrometheusMetrics) SetQueueSize(priority Priority, amount int) {
	pm.QueueSize.With(prometheus.Labels{"priority": priority.String()}).Set(float64(amount))
}

// SetInFlightAmount sets the number of requests currently being executed.
func (pm *PrometheusMetrics) SetInFlightAmount(amount int) {
	pm.InFlightAmount.Set(float64(amount))
}

// IncRetriesTotal increments the total number of retried attempts.
func (pm *PrometheusMetrics) IncRetriesTotal() {
	pm.RetriesTotal.Inc()
}

// IncModeSwitchesTotal increments the total number of authenticated-to-anonymous fallbacks.
func (pm *PrometheusMetrics) IncModeSwitchesTotal() {
	pm.ModeSwitchesTotal.Inc()
}

// ObserveRequestFinish observes the duration of a finished physical call.
func (pm *PrometheusMetrics) ObserveRequestFinish(mode accessmode.Mode, status string, startTime time.Time) {
	pm.RequestDurations.With(prometheus.Labels{
		"mode":   mode.String(),
		"status": status,
	}).Observe(time.Since(startTime).Seconds())
}
