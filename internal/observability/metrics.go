package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EngagementToggles counts completed toggles by content type and resulting state.
	EngagementToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_engagement_toggles_total",
		Help: "Total number of engagement toggles by content type and outcome",
	}, []string{"content_type", "outcome"})

	// EngagementConflicts counts compare-and-swap failures observed by the toggle engine.
	EngagementConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_engagement_conflicts_total",
		Help: "Total number of engagement edge conflicts by resolution",
	}, []string{"resolution"})

	// ModerationActions counts edits and removals by content type.
	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_moderation_actions_total",
		Help: "Total number of moderation actions by action and content type",
	}, []string{"action", "content_type"})

	// CommentsCreated counts new comments by kind (root or reply).
	CommentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_comments_created_total",
		Help: "Total number of comments created",
	}, []string{"kind"})

	// InvalidationsDispatched counts invalidation keys by dispatch result.
	InvalidationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_invalidations_total",
		Help: "Total number of cache invalidation keys dispatched by result",
	}, []string{"result"})

	// IdentityResolutions counts resolved principals by kind and whether a session was minted.
	IdentityResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_identity_resolutions_total",
		Help: "Total number of identity resolutions",
	}, []string{"kind", "minted"})

	// StoreErrors counts translated store errors by operation and code.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_store_errors_total",
		Help: "Total number of content store errors by operation and error code",
	}, []string{"operation", "code"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CacheLookups counts cache-aside lookups by result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_cache_lookups_total",
		Help: "Total number of cache lookups by result",
	}, []string{"result"})

	// RateLimitDecisions counts write-path rate limit checks by action and decision.
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_rate_limit_decisions_total",
		Help: "Total number of rate limit decisions by action and decision",
	}, []string{"action", "decision"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agora_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// InvalidationSubscribers is the gauge of connected invalidation stream clients.
	InvalidationSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agora_invalidation_subscribers",
		Help: "Number of connected invalidation stream subscribers",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
