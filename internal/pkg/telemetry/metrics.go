/*
Package telemetry registers the Prometheus metrics exported by the bot.

Metrics are created once through Init; the helpers are safe to call before Init
(they do nothing), which keeps unit tests free of registry setup.
*/
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcomes.
const (
	OutcomeReplied  = "replied"
	OutcomeIgnored  = "ignored"
	OutcomeDropped  = "cooldown"
	OutcomeError    = "error"
	OutcomeEmpty    = "empty"
	OutcomeFiltered = "filtered"
)

var (
	once sync.Once

	// DispatchTotal counts handled inbound messages by platform and outcome.
	DispatchTotal *prometheus.CounterVec

	// DispatchDuration observes the time spent producing a reply.
	DispatchDuration prometheus.Observer

	// CacheLookups counts cache lookups by collection and result (hit or miss).
	CacheLookups *prometheus.CounterVec

	// CacheSweeps counts full clears by collection.
	CacheSweeps *prometheus.CounterVec

	// BusPublishFailures counts failed bus publishes by topic kind.
	BusPublishFailures *prometheus.CounterVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hzbot_dispatch_total", Help: "Inbound messages handled by the dispatcher"}, []string{"platform", "outcome"})
		DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "hzbot_dispatch_duration_seconds", Help: "Time spent producing a reply", Buckets: prometheus.DefBuckets})
		CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hzbot_cache_lookups_total", Help: "Cache lookups by collection and result"}, []string{"collection", "result"})
		CacheSweeps = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hzbot_cache_sweeps_total", Help: "Full cache clears by collection"}, []string{"collection"})
		BusPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hzbot_bus_publish_failures_total", Help: "Failed bus publishes"}, []string{"kind"})
	})
}

// ObserveDispatch records one dispatch outcome.
func ObserveDispatch(platform, outcome string, seconds float64) {
	if DispatchTotal == nil {
		return
	}
	DispatchTotal.WithLabelValues(platform, outcome).Inc()
	DispatchDuration.Observe(seconds)
}

// CacheLookup records a cache hit or miss.
func CacheLookup(collection string, hit bool) {
	if CacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(collection, result).Inc()
}

// CacheSweep records a full clear of a collection.
func CacheSweep(collection string) {
	if CacheSweeps == nil {
		return
	}
	CacheSweeps.WithLabelValues(collection).Inc()
}

// BusPublishFailed records a failed publish.
func BusPublishFailed(kind string) {
	if BusPublishFailures == nil {
		return
	}
	BusPublishFailures.WithLabelValues(kind).Inc()
}
