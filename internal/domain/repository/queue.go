package repository

import (
	"context"

	"github.com/google/uuid"
)

// BackgroundJobKind discriminates the background work items the pipeline
// hands off via schedule_background (§5, §9 design note). These are the
// out-of-process path; internal/background.Pool is an in-process
// implementation of the same MessageQueue interface.
type BackgroundJobKind string

const (
	// JobStoreBack asks a worker to write a transformed response into the
	// KV cache after the pipeline has already served it from the upstream
	// transform (§4.I step 11, "store-then-serve").
	JobStoreBack BackgroundJobKind = "store_back"
	// JobVersionWrite asks a worker to retry a version bump that the
	// inline path gave up on after exhausting its backoff budget (§4.C).
	JobVersionWrite BackgroundJobKind = "version_write"
)

// BackgroundJob is a unit of deferred work published to the queue.
type BackgroundJob struct {
	ID         uuid.UUID         `json:"id"`
	Kind       BackgroundJobKind `json:"kind"`
	CacheKey   string            `json:"cache_key"`
	Payload    []byte            `json:"payload"` // kind-specific encoding
	RetryCount int               `json:"retry_count"`
}

// MessageQueue defines the interface for the out-of-process background job
// transport. Implementations are provided by the infrastructure layer (e.g.
// RabbitMQ).
type MessageQueue interface {
	// Publish sends a background job to the queue. The pipeline does not
	// call it; the RabbitMQ client republishes failed version-write jobs
	// through it.
	Publish(ctx context.Context, job BackgroundJob) error

	// Consume starts consuming background jobs from the queue. The handler
	// function is called for each received job. Used by cmd/worker.
	Consume(ctx context.Context, handler func(job BackgroundJob) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
