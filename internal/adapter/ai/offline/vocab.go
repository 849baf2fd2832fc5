package offline

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/polisim/ai-gateway/internal/domain"
)

//go:embed vocab.yaml
var vocabYAML []byte

// tone groups the phrase fragments for one emotional register.
type tone struct {
	Keywords []string `yaml:"keywords"`
	Starters []string `yaml:"starters"`
	Clauses  []string `yaml:"clauses"`
	Closers  []string `yaml:"closers"`
}

// vocab holds the constrained vocabulary tables for both strategies.
type vocab struct {
	Templates  map[string][]string `yaml:"templates"`
	Vocabulary struct {
		Stances     []string `yaml:"stances"`
		Intensities []string `yaml:"intensities"`
		Openers     []string `yaml:"openers"`
		Closers     []string `yaml:"closers"`
	} `yaml:"vocabulary"`
	Topics map[string][]string `yaml:"topics"`
	Tones  map[string]tone     `yaml:"tones"`
}

func loadVocab() (*vocab, error) {
	var v vocab
	if err := yaml.Unmarshal(vocabYAML, &v); err != nil {
		return nil, fmt.Errorf("op=offline.loadVocab: %w", err)
	}
	for _, typ := range []domain.RequestType{domain.TypeAnalysis, domain.TypeGeneration} {
		if len(v.Templates[string(typ)]) == 0 {
			return nil, fmt.Errorf("op=offline.loadVocab: no templates for %s", typ)
		}
	}
	if _, ok := v.Tones["neutral"]; !ok {
		return nil, fmt.Errorf("op=offline.loadVocab: missing neutral tone")
	}
	return &v, nil
}
