package ai

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisim/ai-gateway/internal/domain"
)

func testBatcher() *Batcher {
	return NewBatcher(BatcherConfig{
		MaxBatchSize:      10,
		OpinionThreshold:  0.15,
		BehaviorThreshold: 0.2,
		MaxAgeGap:         15,
	})
}

func makeRequest(i int, typ domain.RequestType, mutate func(*domain.ActorSnapshot)) *domain.Request {
	snap := domain.ActorSnapshot{
		ActorID:        fmt.Sprintf("actor-%d", i),
		Age:            40,
		EducationLevel: "tertiary",
		IncomeBracket:  "middle",
		Satisfaction:   0.5,
		Opinions:       []float64{0.2, -0.4, 0.1},
		Behaviors:      []float64{0.5, 0.3},
	}
	if mutate != nil {
		mutate(&snap)
	}
	return &domain.Request{
		ID:        fmt.Sprintf("req-%d", i),
		Actor:     snap,
		Type:      typ,
		Content:   BuildContent(snap, typ),
		ExactKey:  ExactKey(BuildContent(snap, typ)),
		BucketKey: BucketKey(snap, typ),
	}
}

func TestPartition_SimilarRequestsFormOneCluster(t *testing.T) {
	b := testBatcher()
	reqs := make([]*domain.Request, 0, 10)
	for i := 0; i < 10; i++ {
		reqs = append(reqs, makeRequest(i, domain.TypeGeneration, nil))
	}

	clusters := b.Partition(reqs)
	require.Len(t, clusters, 1)
	assert.Equal(t, 10, clusters[0].Size())
	assert.Equal(t, domain.ClusterPending, clusters[0].Status)
}

func TestPartition_TypeSeparation(t *testing.T) {
	b := testBatcher()
	reqs := []*domain.Request{
		makeRequest(0, domain.TypeAnalysis, nil),
		makeRequest(1, domain.TypeGeneration, nil),
		makeRequest(2, domain.TypeAnalysis, nil),
	}

	clusters := b.Partition(reqs)
	require.Len(t, clusters, 2)
	for _, cl := range clusters {
		for _, m := range cl.Members {
			assert.Equal(t, cl.Type, m.Type)
		}
	}
}

func TestPartition_SimilarityGates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ActorSnapshot)
	}{
		{"opinion distance exceeded", func(s *domain.ActorSnapshot) { s.Opinions = []float64{0.9, 0.6, -0.8} }},
		{"behavior distance exceeded", func(s *domain.ActorSnapshot) { s.Behaviors = []float64{0.95, 0.9} }},
		{"age gap exceeded", func(s *domain.ActorSnapshot) { s.Age = 60 }},
		{"different education", func(s *domain.ActorSnapshot) { s.EducationLevel = "primary" }},
		{"mismatched opinion dims", func(s *domain.ActorSnapshot) { s.Opinions = []float64{0.2, -0.4} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBatcher()
			reqs := []*domain.Request{
				makeRequest(0, domain.TypeGeneration, nil),
				makeRequest(1, domain.TypeGeneration, tt.mutate),
			}
			clusters := b.Partition(reqs)
			assert.Len(t, clusters, 2, "dissimilar requests must not share a cluster")
		})
	}
}

func TestPartition_MaxSizeBound(t *testing.T) {
	b := NewBatcher(BatcherConfig{
		MaxBatchSize:      4,
		OpinionThreshold:  0.15,
		BehaviorThreshold: 0.2,
		MaxAgeGap:         15,
	})
	reqs := make([]*domain.Request, 0, 11)
	for i := 0; i < 11; i++ {
		reqs = append(reqs, makeRequest(i, domain.TypeGeneration, nil))
	}

	clusters := b.Partition(reqs)
	total := 0
	for _, cl := range clusters {
		assert.LessOrEqual(t, cl.Size(), 4)
		total += cl.Size()
	}
	assert.Equal(t, 11, total, "no request dropped or double-counted")
}

func TestPartition_FirstJoinWins(t *testing.T) {
	b := testBatcher()
	reqs := []*domain.Request{
		makeRequest(0, domain.TypeGeneration, nil),
		makeRequest(1, domain.TypeGeneration, nil),
		makeRequest(2, domain.TypeGeneration, nil),
	}

	clusters := b.Partition(reqs)
	seen := map[string]int{}
	for _, cl := range clusters {
		for _, m := range cl.Members {
			seen[m.ID]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestPartition_Deterministic(t *testing.T) {
	b := testBatcher()
	build := func() []*domain.Request {
		reqs := make([]*domain.Request, 0, 6)
		for i := 0; i < 6; i++ {
			age := 30 + i*5
			reqs = append(reqs, makeRequest(i, domain.TypeGeneration, func(s *domain.ActorSnapshot) { s.Age = age }))
		}
		return reqs
	}

	first := b.Partition(build())
	second := b.Partition(build())
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Size(), second[i].Size())
	}
}

func TestRepresentative_MeanAndMode(t *testing.T) {
	reqs := []*domain.Request{
		makeRequest(0, domain.TypeGeneration, func(s *domain.ActorSnapshot) {
			s.Age = 30
			s.Satisfaction = 0.4
			s.IncomeBracket = "low"
			s.Opinions = []float64{0.2, 0.0, 0.0}
		}),
		makeRequest(1, domain.TypeGeneration, func(s *domain.ActorSnapshot) {
			s.Age = 40
			s.Satisfaction = 0.6
			s.IncomeBracket = "middle"
			s.Opinions = []float64{0.4, 0.0, 0.0}
		}),
		makeRequest(2, domain.TypeGeneration, func(s *domain.ActorSnapshot) {
			s.Age = 50
			s.Satisfaction = 0.8
			s.IncomeBracket = "middle"
			s.Opinions = []float64{0.6, 0.0, 0.0}
		}),
	}

	rep := representative(reqs)
	assert.Equal(t, 40, rep.Age)
	assert.InDelta(t, 0.6, rep.Satisfaction, 1e-9)
	assert.InDelta(t, 0.4, rep.Opinions[0], 1e-9)
	assert.Equal(t, "middle", rep.IncomeBracket, "mode of categorical field")
	assert.Equal(t, "tertiary", rep.EducationLevel)
}

func TestRepresentative_ModeTieBreaksByArrival(t *testing.T) {
	reqs := []*domain.Request{
		makeRequest(0, domain.TypeGeneration, func(s *domain.ActorSnapshot) { s.IncomeBracket = "high" }),
		makeRequest(1, domain.TypeGeneration, func(s *domain.ActorSnapshot) { s.IncomeBracket = "low" }),
	}
	rep := representative(reqs)
	assert.Equal(t, "high", rep.IncomeBracket)
}

func TestSplit_RemainderOnly(t *testing.T) {
	reqs := make([]*domain.Request, 0, 9)
	for i := 0; i < 9; i++ {
		reqs = append(reqs, makeRequest(i, domain.TypeGeneration, nil))
	}

	chunks := split(reqs, 4)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 4)
	assert.Len(t, chunks[1], 4)
	assert.Len(t, chunks[2], 1)
}

func TestOpinionDistance_Normalized(t *testing.T) {
	// Maximally distant vectors produce distance 1.
	d, ok := opinionDistance([]float64{1, 1}, []float64{-1, -1})
	require.True(t, ok)
	assert.InDelta(t, 1.0, d, 1e-9)

	d, ok = opinionDistance([]float64{0.5, 0.5}, []float64{0.5, 0.5})
	require.True(t, ok)
	assert.Equal(t, 0.0, d)

	_, ok = opinionDistance([]float64{1}, []float64{1, 2})
	assert.False(t, ok)
}

func TestBehaviorDistance_MeanAbsolute(t *testing.T) {
	d, ok := behaviorDistance([]float64{0.2, 0.4}, []float64{0.4, 0.8})
	require.True(t, ok)
	assert.InDelta(t, 0.3, d, 1e-9)
}
