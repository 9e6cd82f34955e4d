package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/repos"
	"github.com/technova/corpusd/internal/types"
)

type FactParams struct {
	WorkspaceID         uuid.UUID
	Scope               repos.ACLScope
	Query               string
	Persona             string
	TechnicalDepth      string
	OutputTone          string
	Conciseness         float64
	UseGeneralKnowledge bool
}

// FactService answers intent-shaped questions directly from the extracted
// fact store, skipping synthesis entirely. A nil response means the query is
// not fact-addressable and the caller should continue down the chain.
type FactService interface {
	FactFirstAnswer(ctx context.Context, params FactParams) (*types.AskResponse, error)
}

type factService struct {
	factRepo repos.FactRepo
	log      *logger.Logger
}

func NewFactService(factRepo repos.FactRepo, baseLog *logger.Logger) FactService {
	return &factService{
		factRepo: factRepo,
		log:      baseLog.With("service", "FactService"),
	}
}

func (s *factService) FactFirstAnswer(ctx context.Context, params FactParams) (*types.AskResponse, error) {
	keys := factKeysForQuery(params.Query)
	if len(keys) == 0 {
		return nil, nil
	}
	intent := primaryIntent(params.Query)

	rows, err := s.factRepo.SearchVisible(ctx, nil, repos.FactSearchParams{
		WorkspaceID:    params.WorkspaceID,
		Scope:          params.Scope,
		Keys:           keys,
		ExcludeGeneral: !params.UseGeneralKnowledge,
		Limit:          24,
	})
	if err != nil {
		return nil, err
	}

	// Highest-confidence row wins per key; rows come back ordered.
	byKey := map[string]*repos.RetrievedFact{}
	for _, row := range rows {
		if strings.HasPrefix(row.URL, untrustedURLPrefix) {
			continue
		}
		if _, exists := byKey[row.FactKey]; exists {
			continue
		}
		byKey[row.FactKey] = row
	}
	if len(byKey) == 0 {
		return nil, nil
	}

	maxBullets := maxBulletsFromConciseness(params.Conciseness)
	switch intent {
	case "zero_trust":
		maxBullets = max(maxBullets, 6)
	case "request_path", "incident", "dr":
		maxBullets = max(maxBullets, 4)
	}

	var ordered []string
	seenLabel := map[string]struct{}{}
	for _, key := range keys {
		fact, ok := byKey[key]
		if !ok {
			continue
		}
		label := renderCanonicalLabel(fact.FactValue, params.Persona, params.TechnicalDepth)
		if _, dup := seenLabel[label]; dup {
			continue
		}
		seenLabel[label] = struct{}{}
		ordered = append(ordered, label)
		if len(ordered) >= maxBullets {
			break
		}
	}
	if len(ordered) == 0 {
		return nil, nil
	}

	seenKeys := make(map[string]struct{}, len(byKey))
	for key := range byKey {
		seenKeys[key] = struct{}{}
	}
	if !meetsFactCoverage(intent, seenKeys) {
		return nil, nil
	}

	lead := tonePrefix(params.OutputTone)
	if intent == "zero_trust" {
		lead = "TechNova enforces zero-trust with layered controls across network and production access:"
	}
	var sb strings.Builder
	sb.WriteString(lead)
	for _, label := range ordered {
		sb.WriteString("\n- ")
		sb.WriteString(label)
	}

	var citations []types.Citation
	seenDoc := map[string]struct{}{}
	maxCitations := maxCitationsFromConciseness(params.Conciseness)
	for _, key := range keys {
		fact, ok := byKey[key]
		if !ok {
			continue
		}
		docKey := fact.DocumentID.String()
		if _, dup := seenDoc[docKey]; dup {
			continue
		}
		seenDoc[docKey] = struct{}{}
		citations = append(citations, types.Citation{
			DocumentID: fact.DocumentID,
			Title:      fact.Title,
			URL:        fact.URL,
			ChunkID:    fact.ChunkID,
		})
		if len(citations) >= maxCitations {
			break
		}
	}

	var confSum float64
	for _, fact := range byKey {
		confSum += fact.Confidence
	}
	confidence := clamp01(confSum / float64(len(byKey)))

	return &types.AskResponse{
		Answer:             sb.String(),
		Citations:          citations,
		Confidence:         confidence,
		SuggestedFollowups: []string{"Show source excerpts"},
		Mode:               types.ModeFact,
	}, nil
}
