package ai

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/polisim/ai-gateway/internal/adapter/observability"
	"github.com/polisim/ai-gateway/internal/domain"
)

// BatcherConfig carries the similarity thresholds and size bounds for
// cluster formation.
type BatcherConfig struct {
	MaxBatchSize      int
	OpinionThreshold  float64 // normalized Euclidean distance, [0,1]
	BehaviorThreshold float64 // mean absolute difference
	MaxAgeGap         int
}

// Batcher greedily partitions pending requests into clusters of mutually
// similar requests and synthesizes one representative per cluster.
// Partitioning is deterministic given the input order and thresholds.
type Batcher struct {
	cfg BatcherConfig
	now func() time.Time
}

// NewBatcher creates a batcher with the given thresholds.
func NewBatcher(cfg BatcherConfig) *Batcher {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 10
	}
	return &Batcher{cfg: cfg, now: time.Now}
}

// Partition groups requests into clusters. Requests are processed in arrival
// order; a request joins the first cluster whose seed it is similar to and is
// never considered again, so no request is double-counted. Every cluster is
// bounded by MaxBatchSize.
func (b *Batcher) Partition(requests []*domain.Request) []*domain.Cluster {
	clusters := make([]*domain.Cluster, 0)
	consumed := make([]bool, len(requests))

	for i, seed := range requests {
		if consumed[i] {
			continue
		}
		consumed[i] = true
		members := []*domain.Request{seed}

		for j := i + 1; j < len(requests); j++ {
			if consumed[j] {
				continue
			}
			if len(members) >= b.cfg.MaxBatchSize {
				break
			}
			if b.similar(seed, requests[j]) {
				consumed[j] = true
				members = append(members, requests[j])
			}
		}

		for _, chunk := range split(members, b.cfg.MaxBatchSize) {
			cluster := b.newCluster(seed.Type, chunk)
			clusters = append(clusters, cluster)
			observability.BatchesFormedTotal.Inc()
			observability.BatchSize.Observe(float64(cluster.Size()))
		}
	}
	return clusters
}

// similar applies the three independent checks: same request type, opinion
// distance, behavior distance, and the hard demographic gate.
func (b *Batcher) similar(a, c *domain.Request) bool {
	if a.Type != c.Type {
		return false
	}
	if absInt(a.Actor.Age-c.Actor.Age) > b.cfg.MaxAgeGap {
		return false
	}
	if a.Actor.EducationLevel != c.Actor.EducationLevel {
		return false
	}
	od, ok := opinionDistance(a.Actor.Opinions, c.Actor.Opinions)
	if !ok || od > b.cfg.OpinionThreshold {
		return false
	}
	bd, ok := behaviorDistance(a.Actor.Behaviors, c.Actor.Behaviors)
	if !ok || bd > b.cfg.BehaviorThreshold {
		return false
	}
	return true
}

func (b *Batcher) newCluster(typ domain.RequestType, members []*domain.Request) *domain.Cluster {
	rep := representative(members)
	return &domain.Cluster{
		ID:             uuid.NewString(),
		Type:           typ,
		Members:        members,
		Representative: rep,
		Content:        BuildContent(rep, typ),
		Status:         domain.ClusterPending,
		CreatedAt:      b.now(),
	}
}

// representative synthesizes one snapshot from a cluster's members: numeric
// fields are averaged, categorical fields take the most frequent value.
func representative(members []*domain.Request) domain.ActorSnapshot {
	n := len(members)
	if n == 0 {
		return domain.ActorSnapshot{}
	}
	rep := domain.ActorSnapshot{
		Opinions:  meanVector(members, func(s domain.ActorSnapshot) []float64 { return s.Opinions }),
		Behaviors: meanVector(members, func(s domain.ActorSnapshot) []float64 { return s.Behaviors }),
	}
	ageSum := 0
	satSum := 0.0
	edu := make(map[string]int, n)
	inc := make(map[string]int, n)
	for _, m := range members {
		ageSum += m.Actor.Age
		satSum += m.Actor.Satisfaction
		edu[m.Actor.EducationLevel]++
		inc[m.Actor.IncomeBracket]++
	}
	rep.Age = ageSum / n
	rep.Satisfaction = satSum / float64(n)
	rep.EducationLevel = mode(members, edu, func(s domain.ActorSnapshot) string { return s.EducationLevel })
	rep.IncomeBracket = mode(members, inc, func(s domain.ActorSnapshot) string { return s.IncomeBracket })
	return rep
}

// mode picks the most frequent value; ties resolve to the value seen first
// in member order so the result is deterministic.
func mode(members []*domain.Request, counts map[string]int, get func(domain.ActorSnapshot) string) string {
	best := ""
	bestCount := 0
	for _, m := range members {
		v := get(m.Actor)
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

// meanVector averages element-wise over the shortest member vector length.
func meanVector(members []*domain.Request, get func(domain.ActorSnapshot) []float64) []float64 {
	dims := -1
	for _, m := range members {
		if l := len(get(m.Actor)); dims == -1 || l < dims {
			dims = l
		}
	}
	if dims <= 0 {
		return nil
	}
	out := make([]float64, dims)
	for _, m := range members {
		v := get(m.Actor)
		for i := 0; i < dims; i++ {
			out[i] += v[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(members))
	}
	return out
}

// opinionDistance is the Euclidean distance between opinion vectors
// normalized to [0,1]. Axes live in [-1,1], so the maximum per-axis gap is 2.
func opinionDistance(a, b []float64) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	if len(a) == 0 {
		return 0, true
	}
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum) / (2 * math.Sqrt(float64(len(a)))), true
}

// behaviorDistance is the mean absolute difference between behavior vectors.
func behaviorDistance(a, b []float64) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	if len(a) == 0 {
		return 0, true
	}
	sum := 0.0
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum / float64(len(a)), true
}

// split chops members into chunks of at most max. Only the final remainder
// may be smaller; no optimality is attempted.
func split(members []*domain.Request, max int) [][]*domain.Request {
	if len(members) <= max {
		return [][]*domain.Request{members}
	}
	out := make([][]*domain.Request, 0, (len(members)+max-1)/max)
	for start := 0; start < len(members); start += max {
		end := start + max
		if end > len(members) {
			end = len(members)
		}
		out = append(out, members[start:end])
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
