package services

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/repos"
	"github.com/technova/corpusd/internal/types"
	"github.com/technova/corpusd/internal/utils"
)

const defaultIgnoredSourcePatterns = "*readme*,*license*,*changelog*,.ds_store,*q1 enterprise notes*"

// untrustedURLPrefix marks seeded placeholder documents that must never be
// surfaced or cited.
const untrustedURLPrefix = "https://example.local"

// RetrievalParams carries one resolved ask through lane-based retrieval.
type RetrievalParams struct {
	WorkspaceID         uuid.UUID
	Scope               repos.ACLScope
	Query               string
	Vector              pgvector.Vector
	SourceIDs           []uuid.UUID
	UseGeneralKnowledge bool
	TopK                int
	MinConfidence       float64
}

// RetrievalService returns ACL-visible chunks for a query, routing between
// the tenant-internal lane and the general-knowledge lane and blending the
// two when internal evidence is weak.
type RetrievalService interface {
	Retrieve(ctx context.Context, params RetrievalParams) ([]*repos.RetrievedChunk, error)
	// Trusted reports whether a chunk may be cited: placeholder URLs and
	// ignored document titles are excluded.
	Trusted(c *repos.RetrievedChunk) bool
}

type retrievalService struct {
	chunkRepo       repos.ChunkRepo
	sourceRepo      repos.SourceRepo
	log             *logger.Logger
	ignoredPatterns []string
}

func NewRetrievalService(chunkRepo repos.ChunkRepo, sourceRepo repos.SourceRepo, baseLog *logger.Logger) RetrievalService {
	svcLog := baseLog.With("service", "RetrievalService")
	raw := utils.GetEnv("IGNORED_SOURCE_NAME_PATTERNS", defaultIgnoredSourcePatterns, svcLog)
	var patterns []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.ToLower(strings.TrimSpace(p)); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return &retrievalService{
		chunkRepo:       chunkRepo,
		sourceRepo:      sourceRepo,
		log:             svcLog,
		ignoredPatterns: patterns,
	}
}

func (s *retrievalService) isIgnoredName(name string) bool {
	lowered := strings.ToLower(name)
	for _, pattern := range s.ignoredPatterns {
		if ok, err := path.Match(pattern, lowered); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *retrievalService) isNoisyChunk(c *repos.RetrievedChunk) bool {
	if strings.HasPrefix(c.URL, untrustedURLPrefix) {
		return true
	}
	return s.isIgnoredName(c.Title)
}

func (s *retrievalService) Trusted(c *repos.RetrievedChunk) bool {
	return !s.isNoisyChunk(c)
}

func (s *retrievalService) dropNoisy(chunks []*repos.RetrievedChunk) []*repos.RetrievedChunk {
	out := chunks[:0]
	for _, c := range chunks {
		if !s.isNoisyChunk(c) {
			out = append(out, c)
		}
	}
	return out
}

// lanes splits the workspace's active sources into the internal and
// general-knowledge lanes, skipping sources whose names match the ignore
// patterns.
func (s *retrievalService) lanes(ctx context.Context, workspaceID uuid.UUID) (internal []uuid.UUID, general []uuid.UUID, err error) {
	sources, err := s.sourceRepo.ListActiveByWorkspace(ctx, nil, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	for _, src := range sources {
		if s.isIgnoredName(src.Name) {
			continue
		}
		if strings.HasPrefix(src.Name, types.GeneralKnowledgePrefix) {
			general = append(general, src.ID)
		} else {
			internal = append(internal, src.ID)
		}
	}
	return internal, general, nil
}

func (s *retrievalService) vectorSearch(ctx context.Context, tx *gorm.DB, params RetrievalParams, sourceIDs []uuid.UUID, limit int) ([]*repos.RetrievedChunk, error) {
	rows, err := s.chunkRepo.SearchBySimilarity(ctx, tx, repos.SimilaritySearchParams{
		WorkspaceID: params.WorkspaceID,
		Scope:       params.Scope,
		Vector:      params.Vector,
		SourceIDs:   sourceIDs,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		row.Score = clamp01(1.0 - row.Distance/2.0)
	}
	return rows, nil
}

// lexicalSearch matches any of the terms with ILIKE and scores rows by term
// overlap on a lane-specific scale.
func (s *retrievalService) lexicalSearch(ctx context.Context, tx *gorm.DB, params RetrievalParams, sourceIDs []uuid.UUID, terms []string, termCap int, limit int, base float64, slope float64, ceiling float64) ([]*repos.RetrievedChunk, error) {
	if len(sourceIDs) == 0 || len(terms) == 0 {
		return nil, nil
	}
	capped := terms
	if len(capped) > termCap {
		capped = capped[:termCap]
	}
	rows, err := s.chunkRepo.SearchByKeywords(ctx, tx, repos.KeywordSearchParams{
		WorkspaceID: params.WorkspaceID,
		Scope:       params.Scope,
		Terms:       capped,
		SourceIDs:   sourceIDs,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		overlap := overlapCount(terms, tokenSet(row.Text))
		row.Score = base + slope*float64(overlap)
		if row.Score > ceiling {
			row.Score = ceiling
		}
	}
	return rows, nil
}

func (s *retrievalService) Retrieve(ctx context.Context, params RetrievalParams) ([]*repos.RetrievedChunk, error) {
	topK := params.TopK
	terms := queryTerms(params.Query)

	// Explicit source filter bypasses lane routing entirely.
	if len(params.SourceIDs) > 0 {
		raw, err := s.vectorSearch(ctx, nil, params, params.SourceIDs, max(topK*4, 20))
		if err != nil {
			s.log.Warn("filtered vector search failed, treating as no results", "error", err)
			raw = nil
		}
		reranked := hybridRerank(raw, terms, topK*2)
		out := s.dropNoisy(reranked)
		if len(out) > topK {
			out = out[:topK]
		}
		return out, nil
	}

	internalIDs, generalIDs, err := s.lanes(ctx, params.WorkspaceID)
	if err != nil {
		// Without the lane split we cannot scope any search, so every lane
		// yields nothing rather than falling back to an unscoped query.
		s.log.Warn("source lane lookup failed, treating all lanes as empty", "error", err)
		return []*repos.RetrievedChunk{}, nil
	}
	if !params.UseGeneralKnowledge {
		generalIDs = nil
	}

	intentTerms := intentLexicalTerms(params.Query)
	combined := mergeTerms(terms, intentTerms)
	laneTerms := combined
	if len(laneTerms) == 0 {
		laneTerms = terms
	}

	// Open-domain questions go lexical-first against the general lane.
	if isGeneralQuery(params.Query) && len(generalIDs) > 0 {
		general, err := s.lexicalSearch(ctx, nil, params, generalIDs, laneTerms, 8, topK, 0.45, 0.08, 0.95)
		if err != nil {
			s.log.Warn("general lexical search failed, treating lane as empty", "error", err)
			general = nil
		}
		general = s.dropNoisy(general)
		if len(general) == 0 {
			raw, err := s.vectorSearch(ctx, nil, params, generalIDs, max(topK*2, 12))
			if err != nil {
				s.log.Warn("general vector search failed, treating lane as empty", "error", err)
				raw = nil
			}
			general = s.dropNoisy(hybridRerank(raw, laneTerms, topK))
		}
		if len(general) > 0 {
			if len(general) > topK {
				general = general[:topK]
			}
			return general, nil
		}
	}

	// Each lane query degrades to empty on failure; neither goroutine returns
	// an error, so one lane's failure never cancels the other.
	var internalRaw, internalLexical []*repos.RetrievedChunk
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		rows, err := s.vectorSearch(groupCtx, nil, params, internalIDs, max(topK*4, 24))
		if err != nil {
			s.log.Warn("internal vector search failed, treating lane as empty", "error", err)
			return nil
		}
		internalRaw = rows
		return nil
	})
	group.Go(func() error {
		rows, err := s.lexicalSearch(groupCtx, nil, params, internalIDs, combined, 12, max(8, topK*2), 0.52, 0.07, 0.98)
		if err != nil {
			s.log.Warn("internal lexical search failed, treating lane as empty", "error", err)
			return nil
		}
		internalLexical = rows
		return nil
	})
	_ = group.Wait()

	internal := hybridRerank(append(internalRaw, internalLexical...), laneTerms, topK*2)
	internal = s.dropNoisy(internal)
	if len(internal) > topK {
		internal = internal[:topK]
	}

	if len(generalIDs) == 0 {
		return internal, nil
	}

	internalConf := confidenceScore(internal)
	internalOverlap := maxChunkOverlap(internal, terms)
	if len(internal) > 0 && internalConf >= params.MinConfidence && internalOverlap >= 1 {
		return internal, nil
	}

	// Internal evidence is weak; blend in the general lane.
	general, err := s.lexicalSearch(ctx, nil, params, generalIDs, laneTerms, 8, max(3, topK/2), 0.45, 0.08, 0.95)
	if err != nil {
		s.log.Warn("general lexical search failed, treating lane as empty", "error", err)
		general = nil
	}
	general = s.dropNoisy(general)
	if len(general) == 0 {
		raw, err := s.vectorSearch(ctx, nil, params, generalIDs, max(12, topK*2))
		if err != nil {
			s.log.Warn("general vector search failed, treating lane as empty", "error", err)
			raw = nil
		}
		general = s.dropNoisy(hybridRerank(raw, laneTerms, max(6, topK)))
		if cut := max(3, topK/2); len(general) > cut {
			general = general[:cut]
		}
	}

	if len(general) == 0 {
		if len(internal) > topK {
			internal = internal[:topK]
		}
		return internal, nil
	}
	if len(internal) == 0 {
		if len(general) > topK {
			general = general[:topK]
		}
		return general, nil
	}

	generalSlots := min(max(2, topK/3), len(general))
	internalSlots := max(0, topK-generalSlots)
	if len(internal) > internalSlots {
		internal = internal[:internalSlots]
	}
	return append(internal, general[:generalSlots]...), nil
}

// mergeTerms unions two term lists, keeping first-seen order.
func mergeTerms(a []string, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range [][]string{a, b} {
		for _, term := range list {
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			out = append(out, term)
		}
	}
	return out
}
