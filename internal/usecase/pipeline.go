// Package usecase wires the caches, batcher, breaker and gate into the
// pipeline facade the simulation drives.
package usecase

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/polisim/ai-gateway/internal/adapter/ai"
	"github.com/polisim/ai-gateway/internal/adapter/observability"
	"github.com/polisim/ai-gateway/internal/config"
	"github.com/polisim/ai-gateway/internal/domain"
)

// FallbackGenerator is the offline alternative path. It must always succeed.
type FallbackGenerator interface {
	Generate(summary string, typ domain.RequestType) string
}

// Deps are the collaborators supplied by the composition root.
type Deps struct {
	AI       domain.AIClient
	Fallback FallbackGenerator
	Secrets  domain.SecretProvider
	Events   domain.EventSink
}

// Service is the orchestration facade. Enqueue never blocks; results are
// delivered through the request callback exactly once — from cache, from a
// completed batch, or from the offline fallback.
type Service struct {
	cfg      config.Config
	exact    *ai.ExactCache
	buckets  *ai.BucketCache
	batcher  *ai.Batcher
	breaker  *ai.CircuitBreaker
	gate     *ai.Gate
	client   domain.AIClient
	fallback FallbackGenerator
	secrets  domain.SecretProvider
	events   domain.EventSink

	mu        sync.Mutex
	pending   []*domain.Request
	lastFlush time.Time

	statsMu        sync.Mutex
	requestsTotal  int64
	cacheHits      int64
	batched        int64
	clusters       int64
	clusterMembers int64
	fallbacks      int64
	responses      int64
	avgResponse    time.Duration
	lastSuccess    time.Time
	activeBatches  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// New constructs the facade and its internal components from configuration.
func New(cfg config.Config, deps Deps) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:     cfg,
		exact:   ai.NewExactCache(cfg.ExactCacheSize, cfg.ExactCacheTTL),
		buckets: ai.NewBucketCache(cfg.BucketCacheSize, cfg.BucketCacheTTL),
		batcher: ai.NewBatcher(ai.BatcherConfig{
			MaxBatchSize:      cfg.MaxBatchSize,
			OpinionThreshold:  cfg.OpinionThreshold,
			BehaviorThreshold: cfg.BehaviorThreshold,
			MaxAgeGap:         cfg.MaxAgeGap,
		}),
		breaker:  ai.NewCircuitBreaker(cfg.FailureThreshold, cfg.OpenDuration),
		gate:     ai.NewGate(cfg.MaxConcurrent),
		client:   deps.AI,
		fallback: deps.Fallback,
		secrets:  deps.Secrets,
		events:   deps.Events,
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
	s.lastFlush = s.now()
	s.breaker.OnStateChange(func(from, to ai.CircuitState) {
		slog.Info("backend availability changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.Bool("available", to != ai.CircuitOpen))
	})
	return s
}

// Start launches the background flush timer. Tick must still be invoked by
// the host loop for cache sweeps; the timer only covers batch flushing.
func (s *Service) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.BatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Flush()
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// Close stops the flush loop and waits for in-flight dispatches.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Enqueue accepts one unit of work. It serves the request from the exact
// cache, then the bucket cache, and otherwise pools it for the next batch
// tick. Enqueue is O(1) and never blocks on dispatch.
func (s *Service) Enqueue(snap domain.ActorSnapshot, typ domain.RequestType, cb domain.ResultCallback) {
	start := s.now()
	content := ai.BuildContent(snap, typ)
	exactKey := ai.ExactKey(content)
	bucketKey := ai.BucketKey(snap, typ)

	s.statsMu.Lock()
	s.requestsTotal++
	s.statsMu.Unlock()

	req := &domain.Request{
		ID:         uuid.NewString(),
		Actor:      snap,
		Type:       typ,
		Content:    content,
		ExactKey:   exactKey,
		BucketKey:  bucketKey,
		Callback:   cb,
		EnqueuedAt: start,
	}

	if v, ok := s.exact.Lookup(exactKey); ok {
		s.recordHit()
		s.deliver(req, v, domain.SourceExactCache, s.now().Sub(start))
		return
	}
	if v, ok := s.buckets.Lookup(bucketKey); ok {
		s.recordHit()
		s.deliver(req, v, domain.SourceBucketCache, s.now().Sub(start))
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, req)
	n := len(s.pending)
	s.mu.Unlock()
	observability.PendingRequests.Set(float64(n))
}

// Tick performs cache expiry sweeps and a batch-timeout-triggered flush.
// It is meant to be called once per simulation frame or on a fixed timer.
func (s *Service) Tick() {
	if removed := s.exact.Sweep() + s.buckets.Sweep(); removed > 0 {
		slog.Debug("cache sweep", slog.Int("removed", removed))
	}

	s.mu.Lock()
	due := len(s.pending) > 0 && s.now().Sub(s.lastFlush) >= s.cfg.BatchTimeout
	s.mu.Unlock()
	if due {
		s.Flush()
	}
}

// Flush drains the pending pool, clusters it, and dispatches one
// representative request per cluster. New arrivals accumulate for the next
// tick. Dispatches run concurrently, each bounded by the gate.
func (s *Service) Flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.lastFlush = s.now()
	s.mu.Unlock()
	observability.PendingRequests.Set(0)

	if len(pending) == 0 {
		return
	}

	clusters := s.batcher.Partition(pending)
	slog.Debug("batch tick",
		slog.Int("pending", len(pending)),
		slog.Int("clusters", len(clusters)))

	s.statsMu.Lock()
	for _, cl := range clusters {
		s.clusters++
		s.clusterMembers += int64(cl.Size())
		if cl.Size() >= s.cfg.MinBatchSize {
			s.batched += int64(cl.Size())
		}
		s.activeBatches++
	}
	s.statsMu.Unlock()

	for _, cl := range clusters {
		s.wg.Add(1)
		go s.dispatch(cl)
	}
}

// dispatch runs one cluster through the breaker and the gate, calls the
// backend or the offline fallback, fans the response out to every member and
// populates both cache tiers. Every member receives a result; a failed batch
// degrades to fallback content instead of dropping requests.
func (s *Service) dispatch(cl *domain.Cluster) {
	defer s.wg.Done()
	defer func() {
		s.statsMu.Lock()
		s.activeBatches--
		s.statsMu.Unlock()
	}()

	cl.Status = domain.ClusterProcessing
	start := s.now()

	content, source := s.execute(cl)
	elapsed := s.now().Sub(start)

	if source == domain.SourceBackend {
		cl.Status = domain.ClusterCompleted
		for _, m := range cl.Members {
			s.exact.Store(m.ExactKey, content)
			s.buckets.Store(m.BucketKey, content)
		}
	} else {
		cl.Status = domain.ClusterFailed
		s.statsMu.Lock()
		s.fallbacks += int64(cl.Size())
		s.statsMu.Unlock()
	}
	cl.CompletedAt = s.now()

	for _, m := range cl.Members {
		s.deliver(m, content, source, elapsed)
	}
	s.recordResponse(elapsed, source)
}

// execute resolves the cluster's representative request to content: backend
// when the credential exists and the breaker admits the call, offline
// fallback otherwise.
func (s *Service) execute(cl *domain.Cluster) (string, domain.ResultSource) {
	if _, ok := s.secrets.GetSecret(s.cfg.BackendKeyName); !ok {
		slog.Warn("backend credential absent, serving fallback",
			slog.String("secret", s.cfg.BackendKeyName))
		return s.fallback.Generate(cl.Content, cl.Type), domain.SourceFallback
	}

	if !s.breaker.Allow() {
		slog.Debug("circuit open, serving fallback", slog.String("cluster", cl.ID))
		return s.fallback.Generate(cl.Content, cl.Type), domain.SourceFallback
	}

	if err := s.gate.Acquire(s.ctx); err != nil {
		s.breaker.RecordFailure()
		return s.fallback.Generate(cl.Content, cl.Type), domain.SourceFallback
	}
	out, err := s.client.Chat(s.ctx, systemPrompt(cl.Type), cl.Content, s.cfg.MaxTokens)
	s.gate.Release()

	if err != nil {
		s.breaker.RecordFailure()
		slog.Warn("backend dispatch failed, serving fallback",
			slog.String("cluster", cl.ID),
			slog.Int("members", cl.Size()),
			slog.Any("error", err))
		return s.fallback.Generate(cl.Content, cl.Type), domain.SourceFallback
	}

	s.breaker.RecordSuccess()
	return out, domain.SourceBackend
}

// deliver invokes the callback exactly once and publishes the result-ready
// event. Sink errors are swallowed by construction.
func (s *Service) deliver(req *domain.Request, content string, source domain.ResultSource, elapsed time.Duration) {
	res := domain.Result{
		RequestID: req.ID,
		Content:   content,
		Source:    source,
		Elapsed:   elapsed,
		CreatedAt: s.now(),
	}
	if req.Callback != nil {
		req.Callback(res)
	}
	_ = s.events.PublishResultReady(s.ctx, domain.ResultReadyEvent{
		RequestID: req.ID,
		ActorID:   req.Actor.ActorID,
		Content:   req.Content,
		Result:    content,
		Source:    source,
		Elapsed:   elapsed,
		CreatedAt: res.CreatedAt,
	})
}

// GetStatistics returns a read-only snapshot for external monitoring.
func (s *Service) GetStatistics() domain.ServiceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	stats := domain.ServiceStats{
		RequestsTotal:       s.requestsTotal,
		CacheHits:           s.cacheHits,
		CacheMisses:         s.requestsTotal - s.cacheHits,
		BatchedRequests:     s.batched,
		ActiveCacheEntries:  s.exact.Len() + s.buckets.Len(),
		ActiveBatches:       s.activeBatches,
		AverageResponseTime: s.avgResponse,
		FallbacksTotal:      s.fallbacks,
		BreakerTrips:        s.breaker.Trips(),
		BreakerState:        s.breaker.State().String(),
		LastSuccess:         s.lastSuccess,
	}
	if s.requestsTotal > 0 {
		stats.CacheHitRatio = float64(s.cacheHits) / float64(s.requestsTotal)
		stats.BatchingEfficiency = float64(s.batched) / float64(s.requestsTotal)
	}
	if s.clusters > 0 {
		stats.AverageBatchSize = float64(s.clusterMembers) / float64(s.clusters)
	}
	return stats
}

func (s *Service) recordHit() {
	s.statsMu.Lock()
	s.cacheHits++
	s.statsMu.Unlock()
}

// recordResponse folds a dispatch duration into the rolling average.
func (s *Service) recordResponse(elapsed time.Duration, source domain.ResultSource) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.responses++
	s.avgResponse += (elapsed - s.avgResponse) / time.Duration(s.responses)
	if source == domain.SourceBackend {
		s.lastSuccess = s.now()
	}
}

func systemPrompt(typ domain.RequestType) string {
	if typ == domain.TypeAnalysis {
		return "You analyze the political disposition of simulated voters. Reply with a short, neutral assessment."
	}
	return "You write short first-person reactions for simulated voters. Stay in character and keep it under three sentences."
}
