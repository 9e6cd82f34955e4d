package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/technova/corpusd/internal/types"
)

type fakeOllamaClient struct {
	embedCalls int
	embedVec   []float32
	embedErr   error
	chatOut    string
	chatErr    error
	lastSystem string
	lastUser   string
}

func (f *fakeOllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	return f.embedVec, f.embedErr
}

func (f *fakeOllamaClient) ChatJSON(ctx context.Context, system string, user string) (string, error) {
	f.lastSystem = system
	f.lastUser = user
	return f.chatOut, f.chatErr
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestFitDim_FoldsLongerVectors(t *testing.T) {
	long := make([]float32, types.EmbeddingDim*2)
	for i := range long {
		long[i] = 1
	}
	out := fitDim(long, types.EmbeddingDim)
	if len(out) != types.EmbeddingDim {
		t.Fatalf("got dim %d", len(out))
	}
	// Each target position receives two contributions scaled by the fold factor.
	if out[0] != 1 || out[types.EmbeddingDim-1] != 1 {
		t.Fatalf("unexpected folded values: %v %v", out[0], out[types.EmbeddingDim-1])
	}
}

func TestFitDim_PadsShorterVectors(t *testing.T) {
	out := fitDim([]float32{1, 2}, 4)
	if len(out) != 4 || out[0] != 1 || out[1] != 2 || out[2] != 0 {
		t.Fatalf("got %v", out)
	}
}

func TestL2Normalize_UnitNorm(t *testing.T) {
	out := l2Normalize([]float32{3, 4})
	if math.Abs(vectorNorm(out)-1.0) > 1e-6 {
		t.Fatalf("norm %v", vectorNorm(out))
	}
	zero := l2Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector must pass through, got %v", zero)
	}
}

func TestFallbackHashEmbedding_DeterministicUnitVector(t *testing.T) {
	a := fallbackHashEmbedding("what is our rto")
	b := fallbackHashEmbedding("what is our rto")
	c := fallbackHashEmbedding("different text")
	if len(a) != types.EmbeddingDim {
		t.Fatalf("got dim %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("not deterministic at %d", i)
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different inputs must not collide")
	}
	if math.Abs(vectorNorm(a)-1.0) > 1e-6 {
		t.Fatalf("norm %v", vectorNorm(a))
	}
}

func TestEmbed_BackendFailureDegradesToHashFallback(t *testing.T) {
	client := &fakeOllamaClient{embedErr: errors.New("connection refused")}
	svc := NewEmbeddingService(client, testLogger(t))

	got := svc.Embed(context.Background(), "what is our rto")
	want := fallbackHashEmbedding("what is our rto")
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d", i)
		}
	}
}

func TestEmbed_MemoizesPerText(t *testing.T) {
	vec := make([]float32, types.EmbeddingDim)
	vec[0] = 1
	client := &fakeOllamaClient{embedVec: vec}
	svc := NewEmbeddingService(client, testLogger(t))

	first := svc.Embed(context.Background(), "repeat me")
	second := svc.Embed(context.Background(), "repeat me")
	if client.embedCalls != 1 {
		t.Fatalf("expected one backend call, got %d", client.embedCalls)
	}
	if first[0] != second[0] {
		t.Fatalf("memoized vector differs")
	}
}

func TestEmbed_ZeroBackendVectorDegradesToFallback(t *testing.T) {
	client := &fakeOllamaClient{embedVec: make([]float32, types.EmbeddingDim)}
	svc := NewEmbeddingService(client, testLogger(t))

	got := svc.Embed(context.Background(), "zero case")
	want := fallbackHashEmbedding("zero case")
	if got[0] != want[0] || got[100] != want[100] {
		t.Fatalf("expected hash fallback")
	}
}

func TestVectorMemo_EvictsOldestAtCapacity(t *testing.T) {
	memo := newVectorMemo(2)
	memo.Set("a", []float32{1})
	memo.Set("b", []float32{2})
	memo.Set("c", []float32{3})

	if memo.Len() != 2 {
		t.Fatalf("got len %d", memo.Len())
	}
	if _, ok := memo.Get("a"); ok {
		t.Fatalf("oldest entry should be evicted")
	}
	if v, ok := memo.Get("c"); !ok || v[0] != 3 {
		t.Fatalf("newest entry missing")
	}
}

func TestVectorMemo_OverwriteKeepsSlot(t *testing.T) {
	memo := newVectorMemo(2)
	memo.Set("a", []float32{1})
	memo.Set("a", []float32{9})
	if memo.Len() != 1 {
		t.Fatalf("got len %d", memo.Len())
	}
	if v, _ := memo.Get("a"); v[0] != 9 {
		t.Fatalf("got %v", v)
	}
}
