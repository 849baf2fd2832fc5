package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polisim/ai-gateway/internal/domain"
)

func snapshot() domain.ActorSnapshot {
	return domain.ActorSnapshot{
		ActorID:        "actor-1",
		Age:            42,
		EducationLevel: "tertiary",
		IncomeBracket:  "middle",
		Satisfaction:   0.61,
		Opinions:       []float64{0.21, -0.39},
		Behaviors:      []float64{0.5, 0.3},
	}
}

func TestBuildContent_Deterministic(t *testing.T) {
	a := BuildContent(snapshot(), domain.TypeAnalysis)
	b := BuildContent(snapshot(), domain.TypeAnalysis)
	assert.Equal(t, a, b)

	c := BuildContent(snapshot(), domain.TypeGeneration)
	assert.NotEqual(t, a, c, "request type must be part of the content")
}

func TestExactKey_DiffersOnContent(t *testing.T) {
	k1 := ExactKey("prompt one")
	k2 := ExactKey("prompt two")
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, k1, ExactKey("prompt one"))
	assert.Len(t, k1, 64)
}

func TestBucketKey_CollapsesNearIdenticalProfiles(t *testing.T) {
	a := snapshot()
	b := snapshot()
	// Same decade, same rounded opinions/satisfaction.
	b.Age = 47
	b.Satisfaction = 0.58
	b.Opinions = []float64{0.18, -0.42}
	b.ActorID = "actor-2"

	assert.Equal(t,
		BucketKey(a, domain.TypeAnalysis),
		BucketKey(b, domain.TypeAnalysis))
}

func TestBucketKey_Distinguishes(t *testing.T) {
	base := snapshot()

	tests := []struct {
		name   string
		mutate func(*domain.ActorSnapshot)
	}{
		{"different decade", func(s *domain.ActorSnapshot) { s.Age = 55 }},
		{"different education", func(s *domain.ActorSnapshot) { s.EducationLevel = "primary" }},
		{"different income", func(s *domain.ActorSnapshot) { s.IncomeBracket = "high" }},
		{"opinion shift past a decimal", func(s *domain.ActorSnapshot) { s.Opinions = []float64{0.55, -0.39} }},
		{"satisfaction shift past a decimal", func(s *domain.ActorSnapshot) { s.Satisfaction = 0.91 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := snapshot()
			tt.mutate(&other)
			assert.NotEqual(t,
				BucketKey(base, domain.TypeAnalysis),
				BucketKey(other, domain.TypeAnalysis))
		})
	}
}

func TestBucketKey_TypeSeparation(t *testing.T) {
	s := snapshot()
	assert.NotEqual(t,
		BucketKey(s, domain.TypeAnalysis),
		BucketKey(s, domain.TypeGeneration))
}

func TestQuantize_NegativeZero(t *testing.T) {
	assert.Equal(t, quantize(0.04), quantize(-0.04))
	assert.Equal(t, 0.0, quantize(-0.04))
	assert.Equal(t, 0.2, quantize(0.21))
	assert.Equal(t, -0.4, quantize(-0.39))
}
