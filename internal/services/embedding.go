package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"

	"github.com/technova/corpusd/internal/clients/ollama"
	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/types"
)

// Embedder turns text into a unit vector of the corpus dimension. It never
// fails: backend errors degrade to a deterministic hash-derived vector so the
// pipeline stays available.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

type embeddingService struct {
	client ollama.Client
	memo   *vectorMemo
	log    *logger.Logger
}

func NewEmbeddingService(client ollama.Client, baseLog *logger.Logger) Embedder {
	return &embeddingService{
		client: client,
		memo:   newVectorMemo(1024),
		log:    baseLog.With("service", "EmbeddingService"),
	}
}

func (s *embeddingService) Embed(ctx context.Context, text string) []float32 {
	key := sha256Hex(text)
	if cached, ok := s.memo.Get(key); ok {
		return cached
	}

	vec := s.embedRemote(ctx, text)
	s.memo.Set(key, vec)
	return vec
}

func (s *embeddingService) embedRemote(ctx context.Context, text string) []float32 {
	raw, err := s.client.Embed(ctx, text)
	if err != nil {
		s.log.Warn("embedding backend unavailable, using hash fallback", "error", err)
		return fallbackHashEmbedding(text)
	}
	vec := l2Normalize(fitDim(raw, types.EmbeddingDim))
	if isZeroVector(vec) {
		return fallbackHashEmbedding(text)
	}
	return vec
}

// fitDim folds an arbitrary-length vector onto the target dimension by
// summing wrapped positions, then rescales by the fold factor.
func fitDim(vec []float32, targetDim int) []float32 {
	out := make([]float32, targetDim)
	if len(vec) == 0 {
		return out
	}
	if len(vec) == targetDim {
		return vec
	}
	for i, v := range vec {
		out[i%targetDim] += v
	}
	scale := len(vec) / targetDim
	if scale < 1 {
		scale = 1
	}
	for i := range out {
		out[i] /= float32(scale)
	}
	return out
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm <= 1e-12 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// fallbackHashEmbedding derives a stable unit vector from the sha256 digest
// of the text, so identical inputs embed identically with no backend.
func fallbackHashEmbedding(text string) []float32 {
	digest := sha256.Sum256([]byte(text))
	out := make([]float32, types.EmbeddingDim)
	for i := range out {
		b := digest[i%len(digest)]
		out[i] = (float32(b)/255.0)*2.0 - 1.0
	}
	return l2Normalize(out)
}

func isZeroVector(vec []float32) bool {
	for _, v := range vec {
		if math.Abs(float64(v)) > 1e-12 {
			return false
		}
	}
	return true
}

func sha256Hex(text string) string {
	digest := sha256.Sum256([]byte(text))
	return hex.EncodeToString(digest[:])
}
