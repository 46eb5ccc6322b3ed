// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gostream"

var (
	// CacheOperationsTotal tracks cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, update, delete
	//   - table: origins, derivatives, runtime_settings
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks request-coalescing behavior for
	// concurrent transform requests sharing a cache key.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// ChunkLockWaitSeconds measures how long a writer waited to acquire a
	// chunk lock before proceeding.
	ChunkLockWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_chunk_lock_wait_seconds",
			Help:      "Time spent waiting to acquire a chunk lock",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ChunkLockEvictionsTotal counts chunk lock entries evicted from the
	// bounded LRU before their holder released them.
	ChunkLockEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_chunk_lock_evictions_total",
			Help:      "Total number of chunk lock entries evicted under capacity pressure",
		},
	)

	// RangeRequestsTotal tracks range request outcomes.
	// Labels:
	//   - outcome: satisfiable, recovered (§9 unsatisfiable-range fallback)
	RangeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_requests_total",
			Help:      "Total number of Range requests by outcome",
		},
		[]string{"outcome"},
	)

	// VersionWriteRetriesTotal counts VERSION_KV increment retries issued
	// by background jobs after a transient store failure.
	VersionWriteRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_write_retries_total",
			Help:      "Total number of retried version-write background jobs",
		},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis = "redis"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryUpdate = "update"
)

// Table name constants.
const (
	TableOrigins         = "origins"
	TableDerivatives     = "derivatives"
	TableRuntimeSettings = "runtime_settings"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Range request outcome constants.
const (
	RangeOutcomeSatisfiable = "satisfiable"
	RangeOutcomeRecovered   = "recovered"
)
