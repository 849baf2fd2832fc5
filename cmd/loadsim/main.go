// Command loadsim drives the pipeline with synthetic actors and reports
// cache, batching and latency figures. It runs entirely offline: the backend
// client is replaced with the fallback generator, so no credential is needed.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"log/slog"

	"github.com/polisim/ai-gateway/internal/adapter/ai/offline"
	"github.com/polisim/ai-gateway/internal/adapter/events"
	"github.com/polisim/ai-gateway/internal/adapter/observability"
	"github.com/polisim/ai-gateway/internal/adapter/secrets"
	"github.com/polisim/ai-gateway/internal/config"
	"github.com/polisim/ai-gateway/internal/domain"
	"github.com/polisim/ai-gateway/internal/usecase"
)

// archetypes approximate the voter population mix; snapshots are sampled
// around these centers so similar actors genuinely cluster.
var archetypes = []struct {
	education string
	income    string
	ageCenter int
	opinions  []float64
}{
	{"secondary", "low", 35, []float64{-0.6, 0.4, -0.2}},
	{"tertiary", "middle", 45, []float64{0.5, -0.3, 0.1}},
	{"tertiary", "high", 55, []float64{0.7, 0.6, 0.4}},
	{"primary", "low", 65, []float64{-0.8, -0.5, -0.6}},
}

// offlineClient satisfies domain.AIClient using the fallback generator, so
// the load run exercises the full dispatch path without a network.
type offlineClient struct {
	gen *offline.Generator
}

func (c *offlineClient) Chat(_ domain.Context, _ string, userPrompt string, _ int) (string, error) {
	time.Sleep(2 * time.Millisecond) // approximate backend latency
	return c.gen.Generate(userPrompt, domain.TypeGeneration), nil
}

func main() {
	actors := flag.Int("actors", 1000, "number of synthetic requests")
	seed := flag.Int64("seed", 42, "rng seed")
	flag.Parse()

	_ = os.Setenv("APP_ENV", "prod") // keep debug logs out of the report
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()

	gen, err := offline.New(cfg.FallbackCacheSize, cfg.FallbackCacheTTL)
	if err != nil {
		panic(err)
	}
	svc := usecase.New(cfg, usecase.Deps{
		AI:       &offlineClient{gen: gen},
		Fallback: gen,
		Secrets:  secrets.NewStaticProvider(map[string]string{cfg.BackendKeyName: "loadsim"}),
		Events:   events.NewLogSink(),
	})
	svc.Start()
	defer svc.Close()

	rng := rand.New(rand.NewSource(*seed))
	var wg sync.WaitGroup
	wg.Add(*actors)

	start := time.Now()
	for i := 0; i < *actors; i++ {
		snap := sample(rng, i)
		typ := domain.TypeGeneration
		if i%3 == 0 {
			typ = domain.TypeAnalysis
		}
		svc.Enqueue(snap, typ, func(domain.Result) { wg.Done() })
		if i%50 == 0 {
			svc.Tick()
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	for {
		select {
		case <-done:
			report(svc.GetStatistics(), *actors, time.Since(start))
			return
		case <-time.After(cfg.BatchInterval):
			svc.Tick()
		}
	}
}

// sample draws a snapshot near one of the archetypes with small jitter.
func sample(rng *rand.Rand, i int) domain.ActorSnapshot {
	a := archetypes[rng.Intn(len(archetypes))]
	ops := make([]float64, len(a.opinions))
	for j, v := range a.opinions {
		ops[j] = clamp(v+rng.Float64()*0.1-0.05, -1, 1)
	}
	return domain.ActorSnapshot{
		ActorID:        fmt.Sprintf("actor-%d", i),
		Age:            a.ageCenter + rng.Intn(11) - 5,
		EducationLevel: a.education,
		IncomeBracket:  a.income,
		Satisfaction:   clamp(0.5+rng.Float64()*0.2-0.1, 0, 1),
		Opinions:       ops,
		Behaviors:      []float64{clamp(0.5+rng.Float64()*0.1, 0, 1), clamp(0.3+rng.Float64()*0.1, 0, 1)},
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func report(stats domain.ServiceStats, actors int, elapsed time.Duration) {
	fmt.Printf("processed %d requests in %s\n", actors, elapsed.Round(time.Millisecond))
	fmt.Printf("cache hit ratio:     %.1f%%\n", stats.CacheHitRatio*100)
	fmt.Printf("batching efficiency: %.1f%%\n", stats.BatchingEfficiency*100)
	fmt.Printf("average batch size:  %.2f\n", stats.AverageBatchSize)
	fmt.Printf("avg response time:   %s\n", stats.AverageResponseTime.Round(time.Microsecond))
	fmt.Printf("active cache entries: %d\n", stats.ActiveCacheEntries)
}
