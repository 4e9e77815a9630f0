package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	publishedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartflow_outbox_published_total",
		Help: "Total outbox events published successfully",
	})
	publishFailedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartflow_outbox_publish_failed_total",
		Help: "Total outbox publish attempts that failed",
	})
	sweepDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name: "cartflow_outbox_sweep_duration_seconds",
		Help: "Duration of relay sweeps",
	}, []string{"sweep"})
	deadLetterBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cartflow_deadletter_backlog",
		Help: "Dead-letter rows currently pending retry",
	})

	cacheRefreshSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartflow_popular_cache_refresh_success_total",
		Help: "Popular products cache refresh successes",
	})
	cacheRefreshFailure = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartflow_popular_cache_refresh_failure_total",
		Help: "Popular products cache refresh failures",
	})
	cacheRefreshDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "cartflow_popular_cache_refresh_duration_seconds",
		Help: "Popular products cache refresh duration",
	})
	cacheLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cartflow_popular_cache_last_success_timestamp",
		Help: "Unix timestamp of the last successful cache refresh",
	})
)

type prometheusObserver struct{}

func NewPrometheusObserver() interface {
	RelayObserver
	CacheObserver
} {
	return prometheusObserver{}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (prometheusObserver) IncPublished()     { publishedCounter.Inc() }
func (prometheusObserver) IncPublishFailed() { publishFailedCounter.Inc() }

func (prometheusObserver) ObserveSweep(sweep string, seconds float64) {
	sweepDuration.WithLabelValues(sweep).Observe(seconds)
}

func (prometheusObserver) SetDeadLetterBacklog(count float64) {
	deadLetterBacklog.Set(count)
}

func (prometheusObserver) IncRefreshSuccess() { cacheRefreshSuccess.Inc() }
func (prometheusObserver) IncRefreshFailure() { cacheRefreshFailure.Inc() }

func (prometheusObserver) ObserveRefresh(seconds float64) {
	cacheRefreshDuration.Observe(seconds)
}

func (prometheusObserver) SetLastRefreshSuccess(unixSeconds float64) {
	cacheLastSuccess.Set(unixSeconds)
}
