package types

import (
	"github.com/google/uuid"
)

// Resolution modes, in the order the fallback chain can produce them.
const (
	ModeBasic         = "basic"
	ModeFact          = "fact"
	ModeCitationsOnly = "citations_only"
	ModeFast          = "fast"
	ModeGrounded      = "grounded"
	ModeFollowup      = "followup"
)

type AskRequest struct {
	UserID              uuid.UUID      `json:"user_id" binding:"required"`
	TenantID            uuid.UUID      `json:"tenant_id" binding:"required"`
	WorkspaceID         uuid.UUID      `json:"workspace_id" binding:"required"`
	Persona             string         `json:"persona"`
	Query               string         `json:"query" binding:"required"`
	TechnicalDepth      string         `json:"technical_depth"`
	Conversationalness  float64        `json:"conversationalness"`
	OutputTone          string         `json:"output_tone"`
	Conciseness         float64        `json:"conciseness"`
	UseGeneralKnowledge *bool          `json:"use_general_knowledge"`
	FastMode            bool           `json:"fast_mode"`
	SessionID           string         `json:"session_id"`
	UseContext          *bool          `json:"use_context"`
	Filters             *AskFilters    `json:"filters,omitempty"`
	Explain             bool           `json:"explain"`
}

type AskFilters struct {
	SourceIDs []uuid.UUID `json:"source_ids,omitempty"`
}

// GeneralKnowledge reports whether the general-knowledge lane is enabled
// (default true when the field is omitted).
func (r *AskRequest) GeneralKnowledge() bool {
	return r.UseGeneralKnowledge == nil || *r.UseGeneralKnowledge
}

// ContextEnabled reports whether conversational context is in play
// (default true when the field is omitted).
func (r *AskRequest) ContextEnabled() bool {
	return r.UseContext == nil || *r.UseContext
}

type Citation struct {
	DocumentID  uuid.UUID `json:"document_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	HeadingPath *string   `json:"heading_path,omitempty"`
	ChunkID     uuid.UUID `json:"chunk_id"`
}

type AskResponse struct {
	Answer             string     `json:"answer"`
	Citations          []Citation `json:"citations"`
	Confidence         float64    `json:"confidence"`
	SuggestedFollowups []string   `json:"suggested_followups"`
	CacheHit           bool       `json:"cache_hit"`
	Mode               string     `json:"mode"`
}
