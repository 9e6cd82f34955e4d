package services

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/repos"
	"github.com/technova/corpusd/internal/types"
)

const queryEmbedTTL = time.Hour

// CacheService layers the fast store over the durable Postgres tier. Reads
// prefer the fast tier; writes go through to both. Storage failures are
// logged and swallowed so caching never fails a request.
type CacheService interface {
	GetAnswer(ctx context.Context, key string) (*types.AskResponse, bool)
	SetAnswer(ctx context.Context, key string, payload *types.AskResponse, ttl time.Duration)
	GetQueryEmbedding(ctx context.Context, normalizedQuery string) ([]float32, bool)
	SetQueryEmbedding(ctx context.Context, normalizedQuery string, vector []float32)
}

type cacheService struct {
	store      FastStore
	answerRepo repos.AnswerCacheRepo
	toolRepo   repos.ToolCacheRepo
	log        *logger.Logger
}

func NewCacheService(store FastStore, answerRepo repos.AnswerCacheRepo, toolRepo repos.ToolCacheRepo, baseLog *logger.Logger) CacheService {
	return &cacheService{
		store:      store,
		answerRepo: answerRepo,
		toolRepo:   toolRepo,
		log:        baseLog.With("service", "CacheService"),
	}
}

func (s *cacheService) GetAnswer(ctx context.Context, key string) (*types.AskResponse, bool) {
	if raw, ok := s.store.Get(ctx, "answer:"+key); ok {
		var payload types.AskResponse
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			return &payload, true
		}
	}
	row, err := s.answerRepo.Get(ctx, nil, key)
	if err != nil {
		s.log.Warn("durable answer cache read failed", "error", err)
		return nil, false
	}
	if row == nil {
		return nil, false
	}
	var payload types.AskResponse
	if err := json.Unmarshal(row.Answer, &payload); err != nil {
		return nil, false
	}
	return &payload, true
}

func (s *cacheService) SetAnswer(ctx context.Context, key string, payload *types.AskResponse, ttl time.Duration) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("answer payload not serializable", "error", err)
		return
	}
	s.store.Set(ctx, "answer:"+key, string(encoded), ttl)
	expiresAt := time.Now().UTC().Add(ttl)
	if err := s.answerRepo.Upsert(ctx, nil, key, datatypes.JSON(encoded), expiresAt); err != nil {
		s.log.Warn("durable answer cache write failed", "error", err)
	}
}

func queryEmbedKey(normalizedQuery string) string {
	return "query_embed:" + sha256Hex(normalizedQuery)
}

func (s *cacheService) GetQueryEmbedding(ctx context.Context, normalizedQuery string) ([]float32, bool) {
	key := queryEmbedKey(normalizedQuery)
	if raw, ok := s.store.Get(ctx, key); ok {
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err == nil && len(vec) > 0 {
			return vec, true
		}
	}
	row, err := s.toolRepo.Get(ctx, nil, key)
	if err != nil {
		s.log.Warn("durable embedding cache read failed", "error", err)
		return nil, false
	}
	if row == nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(row.Value, &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (s *cacheService) SetQueryEmbedding(ctx context.Context, normalizedQuery string, vector []float32) {
	encoded, err := json.Marshal(vector)
	if err != nil {
		return
	}
	key := queryEmbedKey(normalizedQuery)
	s.store.Set(ctx, key, string(encoded), queryEmbedTTL)
	expiresAt := time.Now().UTC().Add(queryEmbedTTL)
	if err := s.toolRepo.Upsert(ctx, nil, key, datatypes.JSON(encoded), expiresAt); err != nil {
		s.log.Warn("durable embedding cache write failed", "error", err)
	}
}
