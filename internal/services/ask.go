package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/repos"
	"github.com/technova/corpusd/internal/types"
)

// answerVersion participates in every cache key; bumping it invalidates all
// cached answers at once.
const answerVersion = "v42"

var ErrUserNotFound = errors.New("user not found")

const (
	noContextAnswer    = "I could not find any accessible sources for this request. Which source or folder should I search?"
	citationsOnlyLead  = `High-confidence grounded result. Use "explain" for a richer synthesis.`
	partialEvidenceMsg = "I found partial evidence but not enough to answer with high confidence. Please narrow scope (account, system, or date range)."
)

// AskService drives the full resolution chain for one question: basic
// deterministic answers, cached answers, fact-first shortcuts, confidence
// gated citation shortcuts, fast extractive mode, grounded synthesis, and the
// follow-up terminal when evidence stays thin.
type AskService interface {
	Answer(ctx context.Context, req *types.AskRequest) (*types.AskResponse, error)
	ResetContext(ctx context.Context, workspaceID uuid.UUID, userID uuid.UUID, persona string, sessionID string)
}

type askService struct {
	users     repos.UserRepo
	retrieval RetrievalService
	facts     FactService
	cache     CacheService
	contexts  ContextService
	embedder  Embedder
	synth     Synthesizer
	log       *logger.Logger
}

func NewAskService(
	users repos.UserRepo,
	retrieval RetrievalService,
	facts FactService,
	cache CacheService,
	contexts ContextService,
	embedder Embedder,
	synth Synthesizer,
	baseLog *logger.Logger,
) AskService {
	return &askService{
		users:     users,
		retrieval: retrieval,
		facts:     facts,
		cache:     cache,
		contexts:  contexts,
		embedder:  embedder,
		synth:     synth,
		log:       baseLog.With("service", "AskService"),
	}
}

func answerCacheKey(persona, query, depth, tone, concisenessBucket, conversationBucket string, fastMode bool, contextHash string) string {
	fast := 0
	if fastMode {
		fast = 1
	}
	raw := fmt.Sprintf("%s:%s:%s:%s:%s:%s:%d:%s:%s",
		answerVersion, persona, depth, tone, concisenessBucket, conversationBucket, fast, normalizeQuery(query), contextHash)
	return sha256Hex(raw)
}

func contextHash(chunks []*repos.RetrievedChunk) string {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return sha256Hex(strings.Join(texts, "\n"))
}

func (s *askService) ResetContext(ctx context.Context, workspaceID uuid.UUID, userID uuid.UUID, persona string, sessionID string) {
	s.contexts.Reset(ctx, s.contexts.Key(workspaceID, userID, persona, sessionID))
}

func (s *askService) Answer(ctx context.Context, req *types.AskRequest) (*types.AskResponse, error) {
	policy := GetPolicy(req.Persona)
	depth := normalizeDepth(req.TechnicalDepth, req.Persona)
	conversationalness := clamp01(req.Conversationalness)
	conciseness := clamp01(req.Conciseness)
	tone := normalizeTone(req.OutputTone)
	fastMode := req.FastMode
	cacheTTL := time.Duration(policy.CacheTTLSeconds) * time.Second

	user, err := s.users.GetByIDAndTenant(ctx, nil, req.UserID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	groupIDs, err := s.users.GroupIDsForUser(ctx, nil, req.UserID)
	if err != nil {
		return nil, err
	}
	scope := repos.ACLScope{UserID: req.UserID, Email: user.Email, GroupIDs: groupIDs}

	contextKey := s.contexts.Key(req.WorkspaceID, req.UserID, req.Persona, req.SessionID)
	var state ContextState
	if req.ContextEnabled() {
		state = s.contexts.Load(ctx, contextKey)
	}
	effectiveQuery := req.Query
	if req.ContextEnabled() {
		effectiveQuery = s.contexts.RewriteQuery(req.Query, state)
	}

	saveTurn := func(answer string) {
		if req.ContextEnabled() {
			s.contexts.Save(ctx, contextKey, s.contexts.AppendTurn(state, req.Query, answer))
		}
	}

	// Deterministic basic queries always evaluate on the raw input, not the
	// context-augmented text.
	if basic := basicQueryAnswer(req.Query, state.Turns); basic != nil {
		saveTurn(basic.Answer)
		return basic, nil
	}

	normalized := normalizeQuery(effectiveQuery)
	vector, cached := s.cache.GetQueryEmbedding(ctx, normalized)
	if !cached {
		vector = s.embedder.Embed(ctx, effectiveQuery)
		s.cache.SetQueryEmbedding(ctx, normalized, vector)
	}

	topK := policy.RetrievalTopK
	if fastMode {
		topK = max(4, min(6, policy.RetrievalTopK/2))
	}

	var sourceIDs []uuid.UUID
	if req.Filters != nil {
		sourceIDs = req.Filters.SourceIDs
	}
	chunks, err := s.retrieval.Retrieve(ctx, RetrievalParams{
		WorkspaceID:         req.WorkspaceID,
		Scope:               scope,
		Query:               effectiveQuery,
		Vector:              pgvector.NewVector(vector),
		SourceIDs:           sourceIDs,
		UseGeneralKnowledge: req.GeneralKnowledge(),
		TopK:                topK,
		MinConfidence:       policy.MinConfidence,
	})
	if err != nil {
		// Storage failures degrade to the no-context terminal instead of
		// aborting the request.
		s.log.Warn("retrieval failed, treating as no accessible results", "error", err)
		chunks = nil
	}

	if len(chunks) == 0 {
		return &types.AskResponse{
			Answer:             noContextAnswer,
			Citations:          []types.Citation{},
			Confidence:         0.0,
			SuggestedFollowups: []string{"Specify a source", "Request access to a document"},
			Mode:               types.ModeFollowup,
		}, nil
	}

	confidence := confidenceScore(chunks)
	cacheKey := answerCacheKey(
		req.Persona,
		effectiveQuery,
		depth,
		tone,
		concisenessBucket(conciseness),
		conversationBucket(conversationalness),
		fastMode,
		contextHash(chunks),
	)

	if hit, ok := s.cache.GetAnswer(ctx, cacheKey); ok {
		hit.CacheHit = true
		saveTurn(hit.Answer)
		return hit, nil
	}

	finish := func(payload *types.AskResponse) (*types.AskResponse, error) {
		s.cache.SetAnswer(ctx, cacheKey, payload, cacheTTL)
		saveTurn(payload.Answer)
		return payload, nil
	}

	// Fact answers are terse; explain requests always continue to synthesis.
	if !req.Explain {
		fact, factErr := s.facts.FactFirstAnswer(ctx, FactParams{
			WorkspaceID:         req.WorkspaceID,
			Scope:               scope,
			Query:               req.Query,
			Persona:             req.Persona,
			TechnicalDepth:      depth,
			OutputTone:          tone,
			Conciseness:         conciseness,
			UseGeneralKnowledge: req.GeneralKnowledge(),
		})
		if factErr != nil {
			s.log.Warn("fact lookup failed, continuing down the chain", "error", factErr)
		} else if fact != nil {
			return finish(fact)
		}
	}

	qterms := queryTerms(req.Query)

	if confidence >= 0.9 && !req.Explain && !fastMode {
		chunkIDs := make([]string, 0, len(chunks))
		for _, c := range chunks {
			chunkIDs = append(chunkIDs, c.ChunkID.String())
		}
		payload := &types.AskResponse{
			Answer:             citationsOnlyLead,
			Citations:          citationsFromChunkIDs(chunks, chunkIDs, qterms, maxCitationsFromConciseness(conciseness), s.retrieval.Trusted),
			Confidence:         confidence,
			SuggestedFollowups: []string{"Explain this in more detail", "Compare with last quarter"},
			Mode:               types.ModeCitationsOnly,
		}
		return finish(payload)
	}

	if fastMode && !req.Explain {
		fastConciseness := clamp01(max(0.75, conciseness))
		if canonical, canonicalIDs := intentCanonicalAnswer(req.Query, chunks, req.Persona, depth, maxBulletsFromConciseness(fastConciseness), tone); canonical != "" {
			payload := &types.AskResponse{
				Answer:             canonical,
				Citations:          citationsFromChunkIDs(chunks, canonicalIDs, qterms, min(2, maxCitationsFromConciseness(conciseness)), s.retrieval.Trusted),
				Confidence:         confidence,
				SuggestedFollowups: []string{"Show source excerpts"},
				Mode:               types.ModeFast,
			}
			return finish(payload)
		}
		llm := fallbackExtractiveAnswer(effectiveQuery, chunks, tone, fastConciseness)
		followups := llm.Followups
		if len(followups) == 0 {
			followups = []string{"Ask for explain mode"}
		}
		payload := &types.AskResponse{
			Answer:             llm.Answer,
			Citations:          citationsFromChunkIDs(chunks, llm.CitedChunkIDs, qterms, min(2, maxCitationsFromConciseness(conciseness)), s.retrieval.Trusted),
			Confidence:         confidence,
			SuggestedFollowups: followups,
			Mode:               types.ModeFast,
		}
		return finish(payload)
	}

	llm, synthErr := s.synth.Synthesize(ctx, SynthesisParams{
		Query:              effectiveQuery,
		Persona:            req.Persona,
		Chunks:             chunks,
		TechnicalDepth:     depth,
		Conversationalness: conversationalness,
		OutputTone:         tone,
		Conciseness:        conciseness,
	})
	if synthErr != nil {
		s.log.Warn("synthesis failed, falling back to extraction", "error", synthErr)
		llm = fallbackExtractiveAnswer(effectiveQuery, chunks, tone, conciseness)
	} else if isWeakLlmAnswer(llm.Answer) {
		llm = fallbackExtractiveAnswer(effectiveQuery, chunks, tone, conciseness)
	}

	if supported, supportedIDs := supportedAnswerLines(llm.Answer, chunks, req.Query); supported != "" {
		citedIDs := supportedIDs
		if len(citedIDs) == 0 {
			citedIDs = llm.CitedChunkIDs
		}
		llm = &LlmAnswer{
			Answer:        supported,
			Followups:     llm.Followups,
			CitedChunkIDs: citedIDs,
		}
	} else if !llm.InsufficientEvidence && confidence >= policy.MinConfidence {
		// Keep the synthesized answer as-is.
	} else if !llm.InsufficientEvidence {
		llm = fallbackExtractiveAnswer(effectiveQuery, chunks, tone, conciseness)
	} else if confidence >= policy.MinConfidence {
		if candidate := fallbackExtractiveAnswer(effectiveQuery, chunks, tone, conciseness); !candidate.InsufficientEvidence {
			llm = candidate
		}
	}

	citations := citationsFromChunkIDs(chunks, llm.CitedChunkIDs, qterms, maxCitationsFromConciseness(conciseness), s.retrieval.Trusted)

	var payload *types.AskResponse
	if llm.InsufficientEvidence || confidence < max(0.25, policy.MinConfidence-0.2) {
		followups := llm.Followups
		if len(followups) == 0 {
			followups = []string{"Narrow time window", "Specify target system or document"}
		}
		payload = &types.AskResponse{
			Answer:             partialEvidenceMsg,
			Citations:          citations,
			Confidence:         confidence,
			SuggestedFollowups: followups,
			Mode:               types.ModeFollowup,
		}
	} else {
		followups := llm.Followups
		if len(followups) == 0 {
			followups = []string{"Show sources", "Provide a deeper technical explanation"}
		}
		payload = &types.AskResponse{
			Answer:             llm.Answer,
			Citations:          citations,
			Confidence:         confidence,
			SuggestedFollowups: followups,
			Mode:               types.ModeGrounded,
		}
	}
	return finish(payload)
}
