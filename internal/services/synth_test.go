package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/technova/corpusd/internal/repos"
)

func TestSynthesize_ParsesStructuredOutput(t *testing.T) {
	client := &fakeOllamaClient{
		chatOut: `{"answer":"Traffic flows CDN to WAF to the load balancer.","followups":["a","b","c","d"],"cited_chunk_ids":["c1"],"insufficient_evidence":false}`,
	}
	svc := NewSynthesizer(client, testLogger(t))

	chunk := testChunk(uuid.New(), "CDN fronts the WAF and the load balancer.", 0.8)
	got, err := svc.Synthesize(context.Background(), SynthesisParams{
		Query:          "request path",
		Persona:        "engineering",
		Chunks:         []*repos.RetrievedChunk{chunk},
		TechnicalDepth: "high",
		OutputTone:     "direct",
		Conciseness:    0.5,
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if got.Answer != "Traffic flows CDN to WAF to the load balancer." {
		t.Fatalf("got %q", got.Answer)
	}
	if len(got.Followups) != 3 {
		t.Fatalf("followups not capped: %v", got.Followups)
	}
	if len(got.CitedChunkIDs) != 1 || got.CitedChunkIDs[0] != "c1" {
		t.Fatalf("got %v", got.CitedChunkIDs)
	}
	if client.lastSystem != synthesisSystemPrompt {
		t.Fatalf("unexpected system prompt")
	}
	if !strings.Contains(client.lastUser, chunk.ChunkID.String()) {
		t.Fatalf("evidence missing from payload")
	}
}

func TestSynthesize_EmptyAnswerGetsPlaceholder(t *testing.T) {
	client := &fakeOllamaClient{chatOut: `{"answer":"  ","followups":[],"cited_chunk_ids":[]}`}
	svc := NewSynthesizer(client, testLogger(t))
	got, err := svc.Synthesize(context.Background(), SynthesisParams{Query: "q"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if got.Answer != "I could not produce a grounded answer from the available evidence." {
		t.Fatalf("got %q", got.Answer)
	}
}

func TestSynthesize_PropagatesBackendAndParseErrors(t *testing.T) {
	svc := NewSynthesizer(&fakeOllamaClient{chatErr: errors.New("down")}, testLogger(t))
	if _, err := svc.Synthesize(context.Background(), SynthesisParams{Query: "q"}); err == nil {
		t.Fatalf("expected backend error")
	}
	svc = NewSynthesizer(&fakeOllamaClient{chatOut: "not json"}, testLogger(t))
	if _, err := svc.Synthesize(context.Background(), SynthesisParams{Query: "q"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestBuildEvidence_CapsChunkText(t *testing.T) {
	long := testChunk(uuid.New(), strings.Repeat("a", 1200), 0.5)
	items := buildEvidence([]*repos.RetrievedChunk{long})
	if len(items) != 1 || len(items[0].Text) != 900 {
		t.Fatalf("got %d items, text len %d", len(items), len(items[0].Text))
	}
}
