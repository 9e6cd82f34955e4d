package services

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/personas.yaml
var personasYAML []byte

// PersonaPolicy controls retrieval breadth, the confidence floor, and answer
// cache lifetime for one persona.
type PersonaPolicy struct {
	RetrievalTopK   int     `yaml:"retrieval_top_k"`
	MinConfidence   float64 `yaml:"min_confidence"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	DefaultDepth    string  `yaml:"default_depth"`
}

type personaConfig struct {
	Default  string                   `yaml:"default"`
	Personas map[string]PersonaPolicy `yaml:"personas"`
}

var personas personaConfig

func init() {
	if err := yaml.Unmarshal(personasYAML, &personas); err != nil {
		panic(fmt.Sprintf("invalid embedded persona config: %v", err))
	}
	if _, ok := personas.Personas[personas.Default]; !ok {
		panic("embedded persona config has no default persona")
	}
}

// GetPolicy resolves a persona name, falling back to the default persona for
// unknown values.
func GetPolicy(persona string) PersonaPolicy {
	if p, ok := personas.Personas[persona]; ok {
		return p
	}
	return personas.Personas[personas.Default]
}

var depthChoices = map[string]struct{}{"low": {}, "medium": {}, "high": {}}
var toneChoices = map[string]struct{}{"friendly": {}, "direct": {}, "critical": {}}

func normalizeDepth(value string, persona string) string {
	if _, ok := depthChoices[value]; ok {
		return value
	}
	if p, known := personas.Personas[persona]; known && p.DefaultDepth != "" {
		return p.DefaultDepth
	}
	return "medium"
}

func normalizeTone(value string) string {
	if _, ok := toneChoices[value]; ok {
		return value
	}
	return "direct"
}

func concisenessBucket(value float64) string {
	switch {
	case value >= 0.75:
		return "high"
	case value >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

func conversationBucket(value float64) string {
	switch {
	case value < 0.34:
		return "low"
	case value > 0.66:
		return "high"
	default:
		return "medium"
	}
}

func maxBulletsFromConciseness(value float64) int {
	switch {
	case value >= 0.75:
		return 3
	case value >= 0.5:
		return 4
	case value >= 0.25:
		return 5
	default:
		return 6
	}
}

func maxCitationsFromConciseness(value float64) int {
	switch {
	case value >= 0.75:
		return 2
	case value >= 0.5:
		return 3
	default:
		return 4
	}
}

func tonePrefix(tone string) string {
	switch tone {
	case "friendly":
		return "Here is the short answer:"
	case "critical":
		return "Evidence-backed answer (strict):"
	default:
		return "Answer:"
	}
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
