package services

import (
	"sort"

	"github.com/technova/corpusd/internal/repos"
)

// hybridRerank blends vector similarity with lexical term coverage and
// re-orders chunks by the combined score. At most three chunks per document
// survive, so a single verbose document cannot crowd out the rest.
func hybridRerank(chunks []*repos.RetrievedChunk, terms []string, limit int) []*repos.RetrievedChunk {
	if len(chunks) == 0 {
		return nil
	}
	if len(terms) == 0 {
		if len(chunks) > limit {
			return chunks[:limit]
		}
		return chunks
	}

	type scored struct {
		score float64
		chunk *repos.RetrievedChunk
	}
	ranked := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		tokens := tokenSet(c.Text)
		overlap := overlapCount(terms, tokens)
		coverage := float64(overlap) / float64(max(1, len(terms)))
		score := 0.55*c.Score + 0.45*coverage
		if overlap >= 2 {
			score += 0.1
		}
		ranked = append(ranked, scored{score: score, chunk: c})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]*repos.RetrievedChunk, 0, limit)
	seenChunk := map[string]struct{}{}
	perDoc := map[string]int{}
	for _, item := range ranked {
		cid := item.chunk.ChunkID.String()
		if _, dup := seenChunk[cid]; dup {
			continue
		}
		docKey := item.chunk.DocumentID.String()
		if perDoc[docKey] >= 3 {
			continue
		}
		seenChunk[cid] = struct{}{}
		perDoc[docKey]++
		out = append(out, item.chunk)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// confidenceScore aggregates ranked chunk scores: top-1 similarity dominates,
// the mean and document consensus temper it. Empty input scores zero.
func confidenceScore(chunks []*repos.RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0.0
	}
	top1 := chunks[0].Score
	var sum float64
	docCounts := map[string]int{}
	maxDoc := 0
	for _, c := range chunks {
		sum += c.Score
		key := c.DocumentID.String()
		docCounts[key]++
		if docCounts[key] > maxDoc {
			maxDoc = docCounts[key]
		}
	}
	avg := sum / float64(len(chunks))
	consensus := float64(maxDoc) / float64(len(chunks))
	return clamp01(0.6*top1 + 0.3*avg + 0.1*consensus)
}

func maxChunkOverlap(chunks []*repos.RetrievedChunk, terms []string) int {
	best := 0
	for _, c := range chunks {
		if overlap := overlapCount(terms, tokenSet(c.Text)); overlap > best {
			best = overlap
		}
	}
	return best
}
