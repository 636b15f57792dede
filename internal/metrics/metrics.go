// Package metrics holds the Prometheus instruments for settlement runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "warikan_"

	ResultSuccess = "success"
	ResultInvalid = "invalid"
	ResultError   = "error"

	SourceAPI     = "api"
	SourceDiscord = "discord"
	SourceService = "service"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	gatherer prometheus.Gatherer

	settlements  *prometheus.CounterVec
	transfers    prometheus.Histogram
	duration     *prometheus.HistogramVec
	exports      *prometheus.CounterVec
	reminderSent *prometheus.CounterVec
}

// New registers the instruments on reg. Passing a fresh prometheus.NewRegistry()
// keeps tests independent of the global registry.
func New(reg *prometheus.Registry) (*Recorder, error) {
	r := &Recorder{
		gatherer: reg,
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlements_total",
				Help: "Settlement computations by source and result",
			},
			[]string{"source", "result"},
		),
		transfers: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_transfers",
				Help:    "Number of transfers produced by a settlement",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_duration_seconds",
				Help:    "Settlement computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		exports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_exports_total",
				Help: "Settlement statement exports by format and result",
			},
			[]string{"format", "result"},
		),
		reminderSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reminders_total",
				Help: "Reminder posts by result",
			},
			[]string{"result"},
		),
	}
	for _, c := range []prometheus.Collector{r.settlements, r.transfers, r.duration, r.exports, r.reminderSent} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObserveSettlement(source, result string, transfers int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.settlements.WithLabelValues(source, result).Inc()
	r.duration.WithLabelValues(source).Observe(elapsed.Seconds())
	if result == ResultSuccess {
		r.transfers.Observe(float64(transfers))
	}
}

func (r *Recorder) ObserveExport(format, result string) {
	if r == nil {
		return
	}
	r.exports.WithLabelValues(format, result).Inc()
}

func (r *Recorder) ObserveReminder(result string) {
	if r == nil {
		return
	}
	r.reminderSent.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
