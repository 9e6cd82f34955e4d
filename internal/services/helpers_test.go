package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/repos"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

// memStore is an in-memory FastStore for tests. TTLs are recorded but not
// enforced.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memStore) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
}

func (m *memStore) Del(ctx context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.ttls, key)
}

func testChunk(docID uuid.UUID, text string, score float64) *repos.RetrievedChunk {
	return &repos.RetrievedChunk{
		ChunkID:    uuid.New(),
		DocumentID: docID,
		Title:      "Platform Runbook",
		URL:        "https://docs.internal/runbook",
		SourceName: "notion",
		Text:       text,
		Score:      score,
	}
}
