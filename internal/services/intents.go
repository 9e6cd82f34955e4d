package services

import (
	_ "embed"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/intents.yaml
var intentsYAML []byte

type canonicalFact struct {
	Label    string   `yaml:"label"`
	Patterns []string `yaml:"patterns"`

	compiled []*regexp.Regexp
}

type intentEntry struct {
	Name             string   `yaml:"name"`
	Hints            []string `yaml:"hints"`
	LexicalTerms     []string `yaml:"lexical_terms"`
	FactKeys         []string `yaml:"fact_keys"`
	RequiredFactKeys []string `yaml:"required_fact_keys"`
	CanonicalAllow   []string `yaml:"canonical_allow"`
}

type intentConfig struct {
	CanonicalFacts        []canonicalFact              `yaml:"canonical_facts"`
	Intents               []intentEntry                `yaml:"intents"`
	PersonaLabels         map[string]map[string]string `yaml:"persona_labels"`
	GenericLowDepthLabels map[string]string            `yaml:"generic_low_depth_labels"`
}

var intents intentConfig

func init() {
	if err := yaml.Unmarshal(intentsYAML, &intents); err != nil {
		panic(fmt.Sprintf("invalid embedded intent config: %v", err))
	}
	for i := range intents.CanonicalFacts {
		cf := &intents.CanonicalFacts[i]
		for _, p := range cf.Patterns {
			cf.compiled = append(cf.compiled, regexp.MustCompile(p))
		}
	}
}

// matchesCorpus reports whether every pattern for the label matches the
// lowercased corpus.
func (c *canonicalFact) matchesCorpus(corpus string) bool {
	for _, re := range c.compiled {
		if !re.MatchString(corpus) {
			return false
		}
	}
	return true
}

func detectedIntents(query string) []string {
	q := strings.ToLower(query)
	var found []string
	for _, entry := range intents.Intents {
		for _, hint := range entry.Hints {
			if strings.Contains(q, hint) {
				found = append(found, entry.Name)
				break
			}
		}
	}
	return found
}

// primaryIntent picks the intent with the most hint matches, resolving ties
// to the earlier table entry. Empty string means no intent matched.
func primaryIntent(query string) string {
	q := strings.ToLower(query)
	best := ""
	bestHits := 0
	for _, entry := range intents.Intents {
		hits := 0
		for _, hint := range entry.Hints {
			if strings.Contains(q, hint) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = entry.Name
		}
	}
	return best
}

func intentByName(name string) *intentEntry {
	for i := range intents.Intents {
		if intents.Intents[i].Name == name {
			return &intents.Intents[i]
		}
	}
	return nil
}

// intentLexicalTerms collects the lexical expansion terms of every detected
// intent, deduplicated and sorted for stable downstream use.
func intentLexicalTerms(query string) []string {
	seen := map[string]struct{}{}
	for _, name := range detectedIntents(query) {
		entry := intentByName(name)
		if entry == nil {
			continue
		}
		for _, term := range entry.LexicalTerms {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// factKeysForQuery lists candidate fact keys across detected intents, the
// primary intent's keys first, preserving per-intent order and dropping
// duplicates.
func factKeysForQuery(query string) []string {
	found := detectedIntents(query)
	if primary := primaryIntent(query); primary != "" {
		reordered := []string{primary}
		for _, name := range found {
			if name != primary {
				reordered = append(reordered, name)
			}
		}
		found = reordered
	}
	seen := map[string]struct{}{}
	var out []string
	for _, name := range found {
		entry := intentByName(name)
		if entry == nil {
			continue
		}
		for _, key := range entry.FactKeys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	return out
}

// meetsFactCoverage requires hits on at least 60% of the intent's required
// keys, rounded up, never fewer than one.
func meetsFactCoverage(intent string, seenKeys map[string]struct{}) bool {
	if intent == "" {
		return true
	}
	entry := intentByName(intent)
	if entry == nil || len(entry.RequiredFactKeys) == 0 {
		return true
	}
	hits := 0
	for _, key := range entry.RequiredFactKeys {
		if _, ok := seenKeys[key]; ok {
			hits++
		}
	}
	need := int(math.Ceil(float64(len(entry.RequiredFactKeys)) * 0.6))
	if need < 1 {
		need = 1
	}
	return hits >= need
}

func intentCanonicalAllow(intent string) map[string]struct{} {
	entry := intentByName(intent)
	if entry == nil {
		return nil
	}
	out := make(map[string]struct{}, len(entry.CanonicalAllow))
	for _, label := range entry.CanonicalAllow {
		out[label] = struct{}{}
	}
	return out
}

// renderCanonicalLabel softens infrastructure-heavy labels for low technical
// depth. High depth always keeps the canonical form.
func renderCanonicalLabel(label string, persona string, technicalDepth string) string {
	if technicalDepth == "high" {
		return label
	}
	if technicalDepth == "low" {
		if mapped, ok := intents.PersonaLabels[persona][label]; ok && mapped != "" {
			return mapped
		}
		if persona != "engineering" {
			if generic, ok := intents.GenericLowDepthLabels[label]; ok {
				return generic
			}
		}
	}
	return label
}
