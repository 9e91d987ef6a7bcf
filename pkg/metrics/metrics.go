// Package metrics exposes the Prometheus instrumentation surface shared by
// SessionClient and CacheMap. Fields are exported prometheus collectors so
// callers on the hot path (SessionClient.retransmit, CacheMap.Upsert) can
// call Inc/Observe/Set directly without an intermediate wrapper method,
// matching the zero-overhead style the pack's metrics packages use when the
// instrumented path is itself latency-sensitive.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds every metric vsrkv exports. A nil *Collector is valid
// everywhere it is accepted; callers that don't want metrics simply never
// construct one and leave the corresponding Config field unset.
type Collector struct {
	// SessionRetries counts request retransmissions across all sessions.
	SessionRetries prometheus.Counter
	// SessionRegisters counts successful session registrations.
	SessionRegisters prometheus.Counter
	// SessionEvictions counts sessions torn down by a cluster eviction.
	SessionEvictions prometheus.Counter

	// CacheHits and CacheMisses count CacheMap.Get outcomes.
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	// CacheEvictions counts set-associative cache evictions reported via
	// EvictionSink.
	CacheEvictions prometheus.Counter
	// ScopeDiscards and ScopeCommits count CacheMap.ScopeClose outcomes by
	// mode.
	ScopeDiscards prometheus.Counter
	ScopeCommits  prometheus.Counter

	// SessionRequestLatency observes the time from a request's first send
	// to its reply being accepted, in seconds. Retransmissions are folded
	// into the same observation as the request they eventually complete.
	SessionRequestLatency prometheus.Histogram

	registered bool
}

// New constructs a Collector. If registry is non-nil the metrics are
// registered against it; pass nil in tests that only want the counters to
// be callable.
func New(registry prometheus.Registerer) *Collector {
	c := &Collector{
		SessionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsrkv",
			Subsystem: "session",
			Name:      "retries_total",
			Help:      "Total number of request retransmissions.",
		}),
		SessionRegisters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsrkv",
			Subsystem: "session",
			Name:      "registers_total",
			Help:      "Total number of successful session registrations.",
		}),
		SessionEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsrkv",
			Subsystem: "session",
			Name:      "evictions_total",
			Help:      "Total number of sessions torn down by cluster eviction.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsrkv",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of CacheMap.Get hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsrkv",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of CacheMap.Get misses.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsrkv",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of set-associative cache evictions.",
		}),
		ScopeDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsrkv",
			Subsystem: "cache",
			Name:      "scope_discards_total",
			Help:      "Total number of scopes closed with ScopeDiscard.",
		}),
		ScopeCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsrkv",
			Subsystem: "cache",
			Name:      "scope_commits_total",
			Help:      "Total number of scopes closed with ScopePersist.",
		}),
		SessionRequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vsrkv",
			Subsystem: "session",
			Name:      "request_latency_seconds",
			Help:      "Time from a request's first send to its reply being accepted.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if registry != nil {
		registry.MustRegister(
			c.SessionRetries,
			c.SessionRegisters,
			c.SessionEvictions,
			c.CacheHits,
			c.CacheMisses,
			c.CacheEvictions,
			c.ScopeDiscards,
			c.ScopeCommits,
			c.SessionRequestLatency,
		)
		c.registered = true
	}
	return c
}
