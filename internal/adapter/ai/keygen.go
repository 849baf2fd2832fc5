// Package ai implements the optimization layer between the simulation and
// the generative backend: request keying, the two response cache tiers, the
// clustering batcher, the circuit breaker and the concurrency gate.
package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/polisim/ai-gateway/internal/domain"
)

// BuildContent renders the literal prompt-like content for a snapshot and
// request type. It is the input to the exact key and to the backend prompt,
// so it must be deterministic for identical snapshots.
func BuildContent(snap domain.ActorSnapshot, typ domain.RequestType) string {
	var b strings.Builder
	switch typ {
	case domain.TypeAnalysis:
		b.WriteString("Analyze the political disposition of a voter: ")
	default:
		b.WriteString("Generate a reaction for a voter: ")
	}
	fmt.Fprintf(&b, "age %d, education %s, income %s, satisfaction %.2f",
		snap.Age, snap.EducationLevel, snap.IncomeBracket, snap.Satisfaction)
	b.WriteString(", opinions [")
	for i, v := range snap.Opinions {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', 2, 64))
	}
	b.WriteString("], behaviors [")
	for i, v := range snap.Behaviors {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', 2, 64))
	}
	b.WriteString("]")
	return b.String()
}

// ExactKey hashes literal content for byte-identical repeat lookups.
func ExactKey(content string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(h[:])
}

// BucketKey derives a coarse similarity signature from quantized snapshot
// fields: age rounded to a decade, opinion axes and satisfaction rounded to
// one decimal, education level and income bracket verbatim. Many actors with
// near-identical profiles collapse onto the same bucket, trading precision
// for hit rate.
func BucketKey(snap domain.ActorSnapshot, typ domain.RequestType) string {
	var b strings.Builder
	b.WriteString(string(typ))
	fmt.Fprintf(&b, "|age:%d", (snap.Age/10)*10)
	fmt.Fprintf(&b, "|edu:%s|inc:%s", snap.EducationLevel, snap.IncomeBracket)
	fmt.Fprintf(&b, "|sat:%.1f", quantize(snap.Satisfaction))
	b.WriteString("|op:")
	for i, v := range snap.Opinions {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%.1f", quantize(v))
	}
	return b.String()
}

// quantize rounds to one decimal, mapping negative zero onto zero so that
// -0.04 and 0.04 produce the same signature fragment.
func quantize(v float64) float64 {
	q := float64(int(v*10+sign(v)*0.5)) / 10
	if q == 0 {
		return 0
	}
	return q
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
