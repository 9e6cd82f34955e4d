package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/technova/corpusd/internal/repos"
	"github.com/technova/corpusd/internal/types"
)

type fakeUserRepo struct {
	user   *types.User
	groups []uuid.UUID
	err    error
}

func (f *fakeUserRepo) GetByIDAndTenant(ctx context.Context, tx *gorm.DB, id uuid.UUID, tenantID uuid.UUID) (*types.User, error) {
	return f.user, f.err
}

func (f *fakeUserRepo) GroupIDsForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error) {
	return f.groups, nil
}

type fakeRetrievalService struct {
	chunks     []*repos.RetrievedChunk
	err        error
	calls      int
	lastParams RetrievalParams
}

func (f *fakeRetrievalService) Retrieve(ctx context.Context, params RetrievalParams) ([]*repos.RetrievedChunk, error) {
	f.calls++
	f.lastParams = params
	return f.chunks, f.err
}

func (f *fakeRetrievalService) Trusted(c *repos.RetrievedChunk) bool {
	return !strings.HasPrefix(c.URL, untrustedURLPrefix)
}

type fakeFactService struct {
	resp  *types.AskResponse
	err   error
	calls int
}

func (f *fakeFactService) FactFirstAnswer(ctx context.Context, params FactParams) (*types.AskResponse, error) {
	f.calls++
	return f.resp, f.err
}

type stubEmbedder struct{ calls int }

func (s *stubEmbedder) Embed(ctx context.Context, text string) []float32 {
	s.calls++
	vec := make([]float32, types.EmbeddingDim)
	vec[0] = 1
	return vec
}

type fakeSynthesizer struct {
	out   *LlmAnswer
	err   error
	calls int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, params SynthesisParams) (*LlmAnswer, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type askFixture struct {
	users     *fakeUserRepo
	retrieval *fakeRetrievalService
	facts     *fakeFactService
	store     *memStore
	answers   *fakeAnswerCacheRepo
	embedder  *stubEmbedder
	synth     *fakeSynthesizer
	svc       AskService
	req       *types.AskRequest
}

func newAskFixture(t *testing.T) *askFixture {
	t.Helper()
	log := testLogger(t)
	userID := uuid.New()
	tenantID := uuid.New()

	f := &askFixture{
		users: &fakeUserRepo{user: &types.User{
			ID: userID, TenantID: tenantID, Email: "dev@technova.io", IsActive: true,
		}},
		retrieval: &fakeRetrievalService{},
		facts:     &fakeFactService{},
		store:     newMemStore(),
		answers:   newFakeAnswerCacheRepo(),
		embedder:  &stubEmbedder{},
		synth:     &fakeSynthesizer{},
	}
	f.retrieval.chunks = []*repos.RetrievedChunk{
		testChunk(uuid.New(), "Quarterly failover drills validate recovery procedures between us-east-1 and us-west-2 with automated backup systems.", 0.6),
	}
	f.synth.out = &LlmAnswer{
		Answer:    "- Quarterly failover drills validate recovery procedures with automated backup systems.",
		Followups: []string{"Dig into the runbook"},
	}

	cache := NewCacheService(f.store, f.answers, newFakeToolCacheRepo(), log)
	contexts := NewContextService(f.store, log)
	f.svc = NewAskService(f.users, f.retrieval, f.facts, cache, contexts, f.embedder, f.synth, log)
	f.req = &types.AskRequest{
		UserID:      userID,
		TenantID:    tenantID,
		WorkspaceID: uuid.New(),
		Persona:     "engineering",
		Query:       "how do failover drills and backups work",
	}
	return f
}

func (f *askFixture) contextKeyCount() int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	count := 0
	for key := range f.store.data {
		if strings.HasPrefix(key, "ctx:") {
			count++
		}
	}
	return count
}

func TestAnswer_UserNotFound(t *testing.T) {
	f := newAskFixture(t)
	f.users.user = nil
	if _, err := f.svc.Answer(context.Background(), f.req); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("got err %v", err)
	}
}

func TestAnswer_BasicShortCircuitSkipsRetrieval(t *testing.T) {
	f := newAskFixture(t)
	f.req.Query = "12 * (3 + 4)"

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeBasic || resp.Answer != "84" {
		t.Fatalf("got %#v", resp)
	}
	if f.retrieval.calls != 0 || f.embedder.calls != 0 {
		t.Fatalf("retrieval/embedding must not run for basic queries")
	}
	if f.contextKeyCount() != 1 {
		t.Fatalf("basic answers still append a conversation turn")
	}
}

func TestAnswer_NoChunksReturnsFollowupWithoutCaching(t *testing.T) {
	f := newAskFixture(t)
	f.retrieval.chunks = nil

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeFollowup || resp.Answer != noContextAnswer {
		t.Fatalf("got %#v", resp)
	}
	if resp.Confidence != 0.0 {
		t.Fatalf("got confidence %v", resp.Confidence)
	}
	if len(f.answers.rows) != 0 {
		t.Fatalf("no-context terminal must not be cached")
	}
	if f.contextKeyCount() != 0 {
		t.Fatalf("no-context terminal must not append a turn")
	}
}

func TestAnswer_RetrievalFailureDegradesToNoContextFollowup(t *testing.T) {
	f := newAskFixture(t)
	f.retrieval.err = errors.New("pg connection reset")

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("storage failure must not surface: %v", err)
	}
	if resp.Mode != types.ModeFollowup || resp.Answer != noContextAnswer {
		t.Fatalf("got %#v", resp)
	}
	if resp.Confidence != 0.0 {
		t.Fatalf("got confidence %v", resp.Confidence)
	}
	if len(f.answers.rows) != 0 {
		t.Fatalf("degraded terminal must not be cached")
	}
}

func TestAnswer_FactStoreFailureContinuesDownChain(t *testing.T) {
	f := newAskFixture(t)
	f.facts.err = errors.New("fact store down")

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("storage failure must not surface: %v", err)
	}
	if resp.Mode != types.ModeGrounded {
		t.Fatalf("got mode %q", resp.Mode)
	}
	if f.synth.calls != 1 {
		t.Fatalf("synthesis must still run, got %d calls", f.synth.calls)
	}
}

func TestAnswer_GroundedSynthesisPath(t *testing.T) {
	f := newAskFixture(t)

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeGrounded {
		t.Fatalf("got mode %q", resp.Mode)
	}
	if !strings.HasPrefix(resp.Answer, "Answer:\n- Quarterly failover drills") {
		t.Fatalf("got %q", resp.Answer)
	}
	if len(resp.Citations) != 1 {
		t.Fatalf("got citations %#v", resp.Citations)
	}
	if len(resp.SuggestedFollowups) != 1 || resp.SuggestedFollowups[0] != "Dig into the runbook" {
		t.Fatalf("got followups %v", resp.SuggestedFollowups)
	}
	if len(f.answers.rows) != 1 {
		t.Fatalf("grounded answers are cached")
	}
	if f.contextKeyCount() != 1 {
		t.Fatalf("grounded answers append a turn")
	}
}

func TestAnswer_SecondIdenticalAskHitsCache(t *testing.T) {
	f := newAskFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Answer(ctx, f.req); err != nil {
		t.Fatalf("first ask: %v", err)
	}
	resp, err := f.svc.Answer(ctx, f.req)
	if err != nil {
		t.Fatalf("second ask: %v", err)
	}
	if !resp.CacheHit {
		t.Fatalf("expected cache hit")
	}
	if f.synth.calls != 1 {
		t.Fatalf("synthesis ran %d times", f.synth.calls)
	}
	if f.facts.calls != 1 {
		t.Fatalf("fact lookup ran %d times", f.facts.calls)
	}
}

func TestAnswer_FactFirstTerminal(t *testing.T) {
	f := newAskFixture(t)
	f.facts.resp = &types.AskResponse{
		Answer:     "Answer:\n- P1\n- postmortem required",
		Citations:  []types.Citation{},
		Confidence: 0.9,
		Mode:       types.ModeFact,
	}

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeFact {
		t.Fatalf("got mode %q", resp.Mode)
	}
	if f.synth.calls != 0 {
		t.Fatalf("fact terminal must skip synthesis")
	}
	if len(f.answers.rows) != 1 {
		t.Fatalf("fact answers are cached")
	}
}

func TestAnswer_ExplainSkipsFactShortcut(t *testing.T) {
	f := newAskFixture(t)
	f.facts.resp = &types.AskResponse{
		Answer:     "Answer:\n- P1\n- postmortem required",
		Citations:  []types.Citation{},
		Confidence: 0.9,
		Mode:       types.ModeFact,
	}
	f.req.Explain = true

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode == types.ModeFact {
		t.Fatalf("explain requests must not take the fact shortcut")
	}
	if f.facts.calls != 0 {
		t.Fatalf("fact lookup ran %d times", f.facts.calls)
	}
	if f.synth.calls != 1 {
		t.Fatalf("explain requests synthesize, got %d calls", f.synth.calls)
	}
}

func TestAnswer_CitationsOnlyGate(t *testing.T) {
	f := newAskFixture(t)
	f.retrieval.chunks = []*repos.RetrievedChunk{
		testChunk(uuid.New(), "Quarterly failover drills validate recovery procedures.", 1.0),
	}

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeCitationsOnly || resp.Answer != citationsOnlyLead {
		t.Fatalf("got %#v", resp)
	}
	if resp.Confidence < 0.9 {
		t.Fatalf("got confidence %v", resp.Confidence)
	}
	if f.synth.calls != 0 {
		t.Fatalf("citations-only must skip synthesis")
	}
}

func TestAnswer_ExplainDisablesCitationsOnlyGate(t *testing.T) {
	f := newAskFixture(t)
	f.retrieval.chunks = []*repos.RetrievedChunk{
		testChunk(uuid.New(), "Quarterly failover drills validate recovery procedures between regions with automated backup systems.", 1.0),
	}
	f.req.Explain = true

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeGrounded {
		t.Fatalf("got mode %q", resp.Mode)
	}
	if f.synth.calls != 1 {
		t.Fatalf("explain forces synthesis, got %d calls", f.synth.calls)
	}
}

func TestAnswer_FastModeSkipsSynthesisAndNarrowsTopK(t *testing.T) {
	f := newAskFixture(t)
	f.req.FastMode = true

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeFast {
		t.Fatalf("got mode %q", resp.Mode)
	}
	if f.synth.calls != 0 {
		t.Fatalf("fast mode must skip synthesis")
	}
	// engineering topK is 10; fast mode narrows to max(4, min(6, 5)).
	if f.retrieval.lastParams.TopK != 5 {
		t.Fatalf("got topK %d", f.retrieval.lastParams.TopK)
	}
	if !strings.Contains(resp.Answer, "\n- ") {
		t.Fatalf("expected bullet answer, got %q", resp.Answer)
	}
}

func TestAnswer_FastModeCanonicalShortcut(t *testing.T) {
	f := newAskFixture(t)
	f.req.FastMode = true

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	// The evidence confirms three canonical recovery facts for the intent.
	want := "Answer:\n- failover between us-east-1 and us-west-2\n- automated backup systems\n- quarterly failover drills"
	if resp.Answer != want {
		t.Fatalf("got %q", resp.Answer)
	}
	if resp.Mode != types.ModeFast {
		t.Fatalf("got mode %q", resp.Mode)
	}
	if len(resp.SuggestedFollowups) != 1 || resp.SuggestedFollowups[0] != "Show source excerpts" {
		t.Fatalf("got followups %v", resp.SuggestedFollowups)
	}
	if len(resp.Citations) != 1 {
		t.Fatalf("got citations %#v", resp.Citations)
	}
	if len(f.answers.rows) != 1 {
		t.Fatalf("canonical fast answers are cached")
	}
}

func TestAnswer_FastModeExtractionWithoutCanonicalIntent(t *testing.T) {
	f := newAskFixture(t)
	f.req.FastMode = true
	f.req.Query = "summarize the quarterly drill procedures"

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeFast {
		t.Fatalf("got mode %q", resp.Mode)
	}
	if !strings.Contains(resp.Answer, "Quarterly failover drills validate") {
		t.Fatalf("expected extractive evidence, got %q", resp.Answer)
	}
}

func TestAnswer_WeakSynthesisFallsBackToExtraction(t *testing.T) {
	f := newAskFixture(t)
	f.synth.out = &LlmAnswer{Answer: "The key mechanisms are in place."}

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeGrounded {
		t.Fatalf("got mode %q", resp.Mode)
	}
	if !strings.Contains(resp.Answer, "Quarterly failover drills") {
		t.Fatalf("expected extractive evidence, got %q", resp.Answer)
	}
	if strings.Contains(resp.Answer, "key mechanisms") {
		t.Fatalf("weak synthesis leaked through: %q", resp.Answer)
	}
}

func TestAnswer_SynthesisErrorFallsBackToExtraction(t *testing.T) {
	f := newAskFixture(t)
	f.synth.err = errors.New("backend down")

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeGrounded {
		t.Fatalf("got mode %q", resp.Mode)
	}
	if !strings.Contains(resp.Answer, "Quarterly failover drills") {
		t.Fatalf("got %q", resp.Answer)
	}
}

func TestAnswer_LowConfidenceReturnsPartialEvidence(t *testing.T) {
	f := newAskFixture(t)
	f.retrieval.chunks = []*repos.RetrievedChunk{
		testChunk(uuid.New(), "Vaguely related operations note without much substance here.", 0.1),
	}
	f.synth.out = &LlmAnswer{
		Answer:               "I could not find enough grounded evidence to answer this question precisely.",
		Followups:            []string{"Name the system"},
		InsufficientEvidence: true,
	}

	resp, err := f.svc.Answer(context.Background(), f.req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Mode != types.ModeFollowup || resp.Answer != partialEvidenceMsg {
		t.Fatalf("got %#v", resp)
	}
	if len(resp.SuggestedFollowups) != 1 || resp.SuggestedFollowups[0] != "Name the system" {
		t.Fatalf("got followups %v", resp.SuggestedFollowups)
	}
}

func TestAnswer_ContextDisabledSkipsConversationState(t *testing.T) {
	f := newAskFixture(t)
	off := false
	f.req.UseContext = &off
	f.req.Filters = &types.AskFilters{SourceIDs: []uuid.UUID{uuid.New()}}

	if _, err := f.svc.Answer(context.Background(), f.req); err != nil {
		t.Fatalf("err: %v", err)
	}
	if f.contextKeyCount() != 0 {
		t.Fatalf("context disabled must not persist turns")
	}
	if len(f.retrieval.lastParams.SourceIDs) != 1 || f.retrieval.lastParams.SourceIDs[0] != f.req.Filters.SourceIDs[0] {
		t.Fatalf("source filter not forwarded: %#v", f.retrieval.lastParams.SourceIDs)
	}
}

func TestResetContext_ClearsSession(t *testing.T) {
	f := newAskFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Answer(ctx, f.req); err != nil {
		t.Fatalf("err: %v", err)
	}
	if f.contextKeyCount() != 1 {
		t.Fatalf("expected stored context")
	}
	f.svc.ResetContext(ctx, f.req.WorkspaceID, f.req.UserID, f.req.Persona, f.req.SessionID)
	if f.contextKeyCount() != 0 {
		t.Fatalf("expected cleared context")
	}
}
