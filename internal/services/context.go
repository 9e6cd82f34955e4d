package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/technova/corpusd/internal/logger"
)

const (
	ctxMaxTurns        = 4
	ctxSummaryMaxChars = 1200
	ctxTTL             = 7 * 24 * time.Hour
)

type ContextTurn struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// ContextState is the per-session conversation window: a rolling compacted
// summary plus the most recent turns.
type ContextState struct {
	Summary string        `json:"summary"`
	Turns   []ContextTurn `json:"turns"`
}

// ContextService keeps short-lived conversation state in the fast store and
// rewrites follow-up queries against it. All failures degrade to an empty
// state; conversation memory is never load-bearing.
type ContextService interface {
	Key(workspaceID uuid.UUID, userID uuid.UUID, persona string, sessionID string) string
	Load(ctx context.Context, key string) ContextState
	AppendTurn(state ContextState, query string, answer string) ContextState
	Save(ctx context.Context, key string, state ContextState)
	Reset(ctx context.Context, key string)
	RewriteQuery(query string, state ContextState) string
}

type contextService struct {
	store FastStore
	log   *logger.Logger
}

func NewContextService(store FastStore, baseLog *logger.Logger) ContextService {
	return &contextService{store: store, log: baseLog.With("service", "ContextService")}
}

func (s *contextService) Key(workspaceID uuid.UUID, userID uuid.UUID, persona string, sessionID string) string {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		sid = fmt.Sprintf("%s:%s", userID, persona)
	}
	return fmt.Sprintf("ctx:%s:%s:%s:%s", workspaceID, userID, persona, sid)
}

func (s *contextService) Load(ctx context.Context, key string) ContextState {
	raw, ok := s.store.Get(ctx, key)
	if !ok || raw == "" {
		return ContextState{}
	}

	// An early format stored a bare turn list with no summary.
	var legacy []ContextTurn
	if err := json.Unmarshal([]byte(raw), &legacy); err == nil {
		if len(legacy) > ctxMaxTurns {
			legacy = legacy[len(legacy)-ctxMaxTurns:]
		}
		return ContextState{Turns: legacy}
	}

	var state ContextState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return ContextState{}
	}
	state.Summary = compactText(state.Summary, ctxSummaryMaxChars)
	if len(state.Turns) > ctxMaxTurns {
		state.Turns = state.Turns[len(state.Turns)-ctxMaxTurns:]
	}
	return state
}

func mergeContextSummary(existing string, older []ContextTurn) string {
	var lines []string
	if strings.TrimSpace(existing) != "" {
		lines = append(lines, compactText(existing, 500))
	}
	for _, turn := range older {
		q := compactText(turn.Q, 120)
		a := compactText(turn.A, 180)
		if q == "" && a == "" {
			continue
		}
		lines = append(lines, strings.TrimSpace(fmt.Sprintf("Q: %s A: %s", q, a)))
	}
	return compactText(strings.Join(lines, " | "), ctxSummaryMaxChars)
}

// compactState enforces the retention window. Turns that fall out of the
// window fold into the summary instead of disappearing.
func compactState(state ContextState) ContextState {
	if len(state.Turns) <= ctxMaxTurns {
		return ContextState{
			Summary: compactText(state.Summary, ctxSummaryMaxChars),
			Turns:   state.Turns,
		}
	}
	older := state.Turns[:len(state.Turns)-ctxMaxTurns]
	recent := state.Turns[len(state.Turns)-ctxMaxTurns:]
	return ContextState{
		Summary: mergeContextSummary(state.Summary, older),
		Turns:   recent,
	}
}

func (s *contextService) AppendTurn(state ContextState, query string, answer string) ContextState {
	turns := append(append([]ContextTurn{}, state.Turns...), ContextTurn{
		Q: compactText(query, 240),
		A: compactText(answer, 320),
	})
	return compactState(ContextState{Summary: state.Summary, Turns: turns})
}

func (s *contextService) Save(ctx context.Context, key string, state ContextState) {
	compacted := compactState(state)
	encoded, err := json.Marshal(compacted)
	if err != nil {
		s.log.Warn("context state not serializable", "error", err)
		return
	}
	s.store.Set(ctx, key, string(encoded), ctxTTL)
}

func (s *contextService) Reset(ctx context.Context, key string) {
	s.store.Del(ctx, key)
}

var followupPrefixes = []string{
	"what about",
	"and ",
	"also ",
	"that ",
	"it ",
	"those ",
	"them ",
	"same ",
	"how about",
	"what's that",
	"whats that",
}

var followupReference = regexp.MustCompile(`\b(that|it|those|them|same|previous|last)\b`)

func isFollowupQuery(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	for _, prefix := range followupPrefixes {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return followupReference.MatchString(q)
}

// RewriteQuery appends a compact context block to follow-up queries so
// retrieval and synthesis can resolve references to earlier turns.
// Non-follow-ups pass through unchanged.
func (s *contextService) RewriteQuery(query string, state ContextState) string {
	summary := compactText(state.Summary, 600)
	if len(state.Turns) == 0 && summary == "" {
		return query
	}
	if !isFollowupQuery(query) {
		return query
	}

	recent := state.Turns
	if len(recent) > 2 {
		recent = recent[len(recent)-2:]
	}
	var lines []string
	if summary != "" {
		lines = append(lines, "Context summary: "+summary)
	}
	for _, turn := range recent {
		if q := compactText(turn.Q, 180); q != "" {
			lines = append(lines, "User asked: "+q)
		}
		if a := compactText(turn.A, 180); a != "" {
			lines = append(lines, "Assistant answered: "+a)
		}
	}
	if len(lines) == 0 {
		return query
	}
	return query + "\n\nConversation context (for follow-up resolution):\n" + strings.Join(lines, "\n")
}
