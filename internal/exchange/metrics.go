package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "velo_exchange_cache_hits_total",
		Help: "Exchange rate lookups served from the TTL cache.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "velo_exchange_cache_misses_total",
		Help: "Exchange rate lookups that required an upstream fetch.",
	})
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "velo_exchange_fetch_failures_total",
		Help: "Upstream exchange rate fetches that failed and fell back to static rates.",
	})
)
