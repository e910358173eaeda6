package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreatedTotal  = promauto.NewCounter(prometheus.CounterOpts{Name: "rendezvous_sessions_created_total", Help: "Sessions created"})
	SessionsIndexed       = promauto.NewGauge(prometheus.GaugeOpts{Name: "rendezvous_sessions_indexed", Help: "Sessions queryable in the registry, including deactivated ones awaiting reap"})
	SessionsActive        = promauto.NewGauge(prometheus.GaugeOpts{Name: "rendezvous_sessions_active", Help: "Sessions not yet deactivated"})
	StreamsInFlight       = promauto.NewGauge(prometheus.GaugeOpts{Name: "rendezvous_streams_in_flight", Help: "Sessions currently relaying bytes"})
	SessionOutcomesTotal  = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rendezvous_session_outcomes_total", Help: "Deactivated sessions by final state"}, []string{"state"})
	BytesRelayedTotal     = promauto.NewCounter(prometheus.CounterOpts{Name: "rendezvous_bytes_relayed_total", Help: "Bytes forwarded from sources to destinations"})
	StreamDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "rendezvous_stream_duration_seconds", Help: "Time from stream start to deactivation", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
	ErrorsTotal           = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rendezvous_errors_total", Help: "Errors answered by kind"}, []string{"type"})
	RateLimitedTotal      = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rendezvous_rate_limited_total", Help: "Requests rejected by the rate limiter"}, []string{"bucket"})
	EventsDroppedTotal    = promauto.NewCounter(prometheus.CounterOpts{Name: "rendezvous_events_dropped_total", Help: "Lifecycle events dropped by the event sink"})
)
