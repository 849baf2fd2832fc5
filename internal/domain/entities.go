// Package domain defines the entities and ports of the AI mediation layer.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnavailable       = errors.New("service unavailable")
	ErrCircuitOpen       = errors.New("circuit open")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrMalformedResponse = errors.New("malformed response")
	ErrInternal          = errors.New("internal error")
)

// RequestType enumerates the kinds of work the backend performs for an actor.
type RequestType string

const (
	TypeAnalysis   RequestType = "analysis"
	TypeGeneration RequestType = "generation"
)

// ActorSnapshot captures the demographic, opinion and behavior values of a
// simulated actor at enqueue time. Opinion axes are in [-1, 1]; behavior
// dimensions and Satisfaction are in [0, 1].
type ActorSnapshot struct {
	ActorID        string
	Age            int
	EducationLevel string
	IncomeBracket  string
	Satisfaction   float64
	Opinions       []float64
	Behaviors      []float64
}

// ResultSource tells where a result came from.
type ResultSource string

const (
	SourceExactCache  ResultSource = "cache_exact"
	SourceBucketCache ResultSource = "cache_bucket"
	SourceBackend     ResultSource = "backend"
	SourceFallback    ResultSource = "fallback"
)

// Result is the outcome delivered to a request's callback, exactly once.
type Result struct {
	RequestID string
	Content   string
	Source    ResultSource
	Elapsed   time.Duration
	CreatedAt time.Time
}

// ResultCallback receives the result for one request. Callbacks must be
// cheap and non-blocking; a caller that no longer needs the result should
// install a no-op.
type ResultCallback func(Result)

// Request is one unit of work flowing through the pipeline. It is owned by
// the intake path until satisfied from cache or absorbed into a cluster.
type Request struct {
	ID         string
	Actor      ActorSnapshot
	Type       RequestType
	Content    string // literal prompt-like content, input to the exact key
	ExactKey   string
	BucketKey  string
	Callback   ResultCallback
	EnqueuedAt time.Time
}

// ClusterStatus tracks the lifecycle of a batch.
type ClusterStatus string

const (
	ClusterPending    ClusterStatus = "pending"
	ClusterProcessing ClusterStatus = "processing"
	ClusterCompleted  ClusterStatus = "completed"
	ClusterFailed     ClusterStatus = "failed"
)

// Cluster groups mutually similar requests of one type. One representative
// request is dispatched per cluster; the response fans out to every member.
type Cluster struct {
	ID             string
	Type           RequestType
	Members        []*Request
	Representative ActorSnapshot
	Content        string // representative prompt content
	Status         ClusterStatus
	CreatedAt      time.Time
	CompletedAt    time.Time
}

// Size returns the member count.
func (c *Cluster) Size() int { return len(c.Members) }

// ServiceStats is a read-only snapshot of pipeline health, consumed by
// external monitoring.
type ServiceStats struct {
	RequestsTotal       int64         `json:"requests_total"`
	CacheHits           int64         `json:"cache_hits"`
	CacheMisses         int64         `json:"cache_misses"`
	CacheHitRatio       float64       `json:"cache_hit_ratio"`
	BatchedRequests     int64         `json:"batched_requests"`
	BatchingEfficiency  float64       `json:"batching_efficiency"`
	ActiveCacheEntries  int           `json:"active_cache_entries"`
	ActiveBatches       int           `json:"active_batches"`
	AverageBatchSize    float64       `json:"average_batch_size"`
	AverageResponseTime time.Duration `json:"average_response_time_ns"`
	FallbacksTotal      int64         `json:"fallbacks_total"`
	BreakerTrips        int64         `json:"breaker_trips"`
	BreakerState        string        `json:"breaker_state"`
	LastSuccess         time.Time     `json:"last_success"`
}

// Ports (implemented by adapters)

// AIClient calls the external generative backend. Implementations make a
// single attempt per call; resilience lives above this port.
type AIClient interface {
	Chat(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// SecretProvider resolves credentials by name. Absence of the backend key
// makes the service report itself unavailable without attempting a call.
type SecretProvider interface {
	GetSecret(name string) (string, bool)
}

// ResultReadyEvent is published after a request has been satisfied.
type ResultReadyEvent struct {
	RequestID string        `json:"request_id"`
	ActorID   string        `json:"actor_id"`
	Content   string        `json:"content"`
	Result    string        `json:"result"`
	Source    ResultSource  `json:"source"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	CreatedAt time.Time     `json:"created_at"`
}

// EventSink receives fire-and-forget notifications. Sink failures must never
// affect the pipeline.
type EventSink interface {
	PublishResultReady(ctx Context, evt ResultReadyEvent) error
}

// Context aliases context.Context so adapters and the usecase share one
// signature without the domain importing adapter packages.
type Context = context.Context
