package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/technova/corpusd/internal/repos"
	"github.com/technova/corpusd/internal/types"
)

type fakeFactRepo struct {
	rows       []*repos.RetrievedFact
	lastParams repos.FactSearchParams
	err        error
}

func (f *fakeFactRepo) SearchVisible(ctx context.Context, tx *gorm.DB, params repos.FactSearchParams) ([]*repos.RetrievedFact, error) {
	f.lastParams = params
	return f.rows, f.err
}

func factRow(key, label string, confidence float64, docID uuid.UUID) *repos.RetrievedFact {
	return &repos.RetrievedFact{
		FactKey:    key,
		FactValue:  label,
		Confidence: confidence,
		ChunkID:    uuid.New(),
		DocumentID: docID,
		Title:      "Incident Runbook",
		URL:        "https://docs.internal/incident",
		SourceName: "notion",
	}
}

func incidentParams(query string) FactParams {
	return FactParams{
		WorkspaceID:         uuid.New(),
		Scope:               repos.ACLScope{UserID: uuid.New(), Email: "dev@technova.io"},
		Query:               query,
		Persona:             "engineering",
		TechnicalDepth:      "high",
		OutputTone:          "direct",
		Conciseness:         0.5,
		UseGeneralKnowledge: true,
	}
}

func TestFactFirstAnswer_NilWithoutIntent(t *testing.T) {
	repo := &fakeFactRepo{}
	svc := NewFactService(repo, testLogger(t))
	resp, err := svc.FactFirstAnswer(context.Background(), incidentParams("tell me a story"))
	if err != nil || resp != nil {
		t.Fatalf("got %#v err=%v", resp, err)
	}
}

func TestFactFirstAnswer_BuildsBulletsFromBestFacts(t *testing.T) {
	doc := uuid.New()
	repo := &fakeFactRepo{rows: []*repos.RetrievedFact{
		factRow("incident.p1", "P1", 0.95, doc),
		factRow("incident.p1", "P1", 0.40, doc), // lower-confidence duplicate loses
		factRow("incident.postmortem", "postmortem required", 0.90, doc),
		factRow("incident.72h", "72 hours", 0.85, doc),
	}}
	svc := NewFactService(repo, testLogger(t))

	resp, err := svc.FactFirstAnswer(context.Background(), incidentParams("how does p1 incident response and postmortem work?"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp == nil {
		t.Fatalf("expected a fact answer")
	}
	if resp.Mode != types.ModeFact {
		t.Fatalf("got mode %q", resp.Mode)
	}
	if !strings.HasPrefix(resp.Answer, "Answer:") {
		t.Fatalf("unexpected lead: %q", resp.Answer)
	}
	for _, label := range []string{"P1", "postmortem required", "72 hours"} {
		if !strings.Contains(resp.Answer, "\n- "+label) {
			t.Fatalf("missing bullet %q in %q", label, resp.Answer)
		}
	}
	want := (0.95 + 0.90 + 0.85) / 3
	if diff := resp.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("confidence %v want %v", resp.Confidence, want)
	}
	// All rows share one document, so citations collapse to one entry.
	if len(resp.Citations) != 1 || resp.Citations[0].DocumentID != doc {
		t.Fatalf("unexpected citations: %#v", resp.Citations)
	}
	if len(resp.SuggestedFollowups) != 1 || resp.SuggestedFollowups[0] != "Show source excerpts" {
		t.Fatalf("unexpected followups: %v", resp.SuggestedFollowups)
	}
}

func TestFactFirstAnswer_DeclinesBelowCoverage(t *testing.T) {
	// incident requires four keys; two hits miss the 60% floor of three.
	repo := &fakeFactRepo{rows: []*repos.RetrievedFact{
		factRow("incident.p1", "P1", 0.95, uuid.New()),
		factRow("incident.postmortem", "postmortem required", 0.90, uuid.New()),
	}}
	svc := NewFactService(repo, testLogger(t))
	resp, err := svc.FactFirstAnswer(context.Background(), incidentParams("how does p1 incident response and postmortem work?"))
	if err != nil || resp != nil {
		t.Fatalf("expected decline, got %#v err=%v", resp, err)
	}
}

func TestFactFirstAnswer_SkipsUntrustedSources(t *testing.T) {
	planted := factRow("incident.p1", "P1", 0.99, uuid.New())
	planted.URL = "https://example.local/fake"
	repo := &fakeFactRepo{rows: []*repos.RetrievedFact{planted}}
	svc := NewFactService(repo, testLogger(t))
	resp, err := svc.FactFirstAnswer(context.Background(), incidentParams("how does p1 incident response work?"))
	if err != nil || resp != nil {
		t.Fatalf("expected decline, got %#v err=%v", resp, err)
	}
}

func TestFactFirstAnswer_ExcludesGeneralLaneWhenDisabled(t *testing.T) {
	repo := &fakeFactRepo{}
	svc := NewFactService(repo, testLogger(t))
	params := incidentParams("how does p1 incident response work?")
	params.UseGeneralKnowledge = false
	if _, err := svc.FactFirstAnswer(context.Background(), params); err != nil {
		t.Fatalf("err: %v", err)
	}
	if !repo.lastParams.ExcludeGeneral {
		t.Fatalf("expected ExcludeGeneral to be set")
	}
	if repo.lastParams.Limit != 24 {
		t.Fatalf("got limit %d", repo.lastParams.Limit)
	}
}

func TestFactFirstAnswer_LowDepthSoftensLabels(t *testing.T) {
	doc := uuid.New()
	repo := &fakeFactRepo{rows: []*repos.RetrievedFact{
		factRow("incident.p1", "P1", 0.95, doc),
		factRow("incident.postmortem", "postmortem required", 0.90, doc),
		factRow("incident.72h", "72 hours", 0.85, doc),
		factRow("incident.gdpr", "GDPR procedures", 0.80, doc),
	}}
	svc := NewFactService(repo, testLogger(t))
	params := incidentParams("how does p1 incident response and postmortem work?")
	params.Persona = "sales"
	params.TechnicalDepth = "low"
	params.OutputTone = "friendly"

	resp, err := svc.FactFirstAnswer(context.Background(), params)
	if err != nil || resp == nil {
		t.Fatalf("got %#v err=%v", resp, err)
	}
	if !strings.HasPrefix(resp.Answer, "Here is the short answer:") {
		t.Fatalf("unexpected lead: %q", resp.Answer)
	}
}
