// Package offline produces deterministic, rule-based results when the
// backend is circuit-broken or unauthenticated, so the pipeline never stalls.
// It never touches the network.
package offline

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/polisim/ai-gateway/internal/adapter/observability"
	"github.com/polisim/ai-gateway/internal/domain"
)

type cacheEntry struct {
	content string
	created time.Time
}

// Generator is the offline fallback path. Results are cached by the literal
// summary text with a long TTL (days, not hours) under FIFO eviction —
// fallback content is cheap to reuse.
type Generator struct {
	mu       sync.Mutex
	vocab    *vocab
	cache    map[string]cacheEntry
	order    []string
	capacity int
	ttl      time.Duration
	rng      *rand.Rand
	now      func() time.Time
}

// New creates a generator with the embedded vocabulary tables.
func New(capacity int, ttl time.Duration) (*Generator, error) {
	v, err := loadVocab()
	if err != nil {
		return nil, err
	}
	return &Generator{
		vocab:    v,
		cache:    make(map[string]cacheEntry),
		order:    make([]string, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}, nil
}

// Generate always succeeds. The summary is the prompt-like content of the
// request (or its cluster representative); typ selects the template family.
func (g *Generator) Generate(summary string, typ domain.RequestType) string {
	key := cacheKey(summary)

	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.cache[key]; ok {
		if g.now().Sub(e.created) < g.ttl {
			observability.FallbacksTotal.WithLabelValues("cached").Inc()
			return e.content
		}
		g.removeLocked(key)
	}

	lower := strings.ToLower(summary)
	topic, matched := g.classifyTopic(lower)

	var content string
	var strategy string
	if matched && typ == domain.TypeGeneration {
		// A recognized topic carries enough signal for composition.
		content = g.compose(lower, topic)
		strategy = "rule_based"
	} else {
		content = g.fillTemplate(typ, topic)
		strategy = "template"
	}
	observability.FallbacksTotal.WithLabelValues(strategy).Inc()
	slog.Debug("offline fallback generated",
		slog.String("strategy", strategy),
		slog.String("topic", topic),
		slog.String("type", string(typ)))

	g.storeLocked(key, content)
	return content
}

// classifyTopic matches the first topic whose keyword list hits; topics are
// scanned in a fixed order for determinism.
func (g *Generator) classifyTopic(lower string) (string, bool) {
	for _, name := range []string{"economy", "healthcare", "immigration", "environment", "security"} {
		for _, kw := range g.vocab.Topics[name] {
			if strings.Contains(lower, kw) {
				return name, true
			}
		}
	}
	return "the economy", false
}

// classifyTone matches the first tone whose keyword list hits, defaulting
// to neutral.
func (g *Generator) classifyTone(lower string) tone {
	for _, name := range []string{"critical", "supportive"} {
		t := g.vocab.Tones[name]
		for _, kw := range t.Keywords {
			if strings.Contains(lower, kw) {
				return t
			}
		}
	}
	return g.vocab.Tones["neutral"]
}

// compose stitches starter + clause + closer for the classified tone.
func (g *Generator) compose(lower, topic string) string {
	t := g.classifyTone(lower)
	var b strings.Builder
	b.WriteString(pick(g.rng, t.Starters))
	b.WriteByte(' ')
	b.WriteString(topic)
	b.WriteString(": ")
	b.WriteString(pick(g.rng, t.Clauses))
	b.WriteString(", ")
	b.WriteString(pick(g.rng, t.Closers))
	return b.String()
}

// fillTemplate picks a template for the request type and substitutes
// constrained vocabulary.
func (g *Generator) fillTemplate(typ domain.RequestType, topic string) string {
	templates := g.vocab.Templates[string(typ)]
	if len(templates) == 0 {
		templates = g.vocab.Templates[string(domain.TypeGeneration)]
	}
	s := pick(g.rng, templates)
	r := strings.NewReplacer(
		"{stance}", pick(g.rng, g.vocab.Vocabulary.Stances),
		"{intensity}", pick(g.rng, g.vocab.Vocabulary.Intensities),
		"{opener}", pick(g.rng, g.vocab.Vocabulary.Openers),
		"{closer}", pick(g.rng, g.vocab.Vocabulary.Closers),
		"{topic}", topic,
	)
	return r.Replace(s)
}

func (g *Generator) storeLocked(key, content string) {
	if _, exists := g.cache[key]; exists {
		g.cache[key] = cacheEntry{content: content, created: g.now()}
		return
	}
	if len(g.cache) >= g.capacity {
		oldest := g.order[0]
		g.removeLocked(oldest)
	}
	g.cache[key] = cacheEntry{content: content, created: g.now()}
	g.order = append(g.order, key)
}

func (g *Generator) removeLocked(key string) {
	delete(g.cache, key)
	for i, k := range g.order {
		if k == key {
			g.order = append(g.order[:i], g.order[i+1:]...)
			return
		}
	}
}

// CacheLen returns the number of cached fallback results.
func (g *Generator) CacheLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}

func pick(rng *rand.Rand, options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[rng.Intn(len(options))]
}

func cacheKey(summary string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(summary)))
	return hex.EncodeToString(h[:])
}
