package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/technova/corpusd/internal/clients/ollama"
	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/repos"
)

// LlmAnswer is the structured synthesis output. CitedChunkIDs reference the
// evidence chunks the model claims support the answer; they are re-verified
// before citation.
type LlmAnswer struct {
	Answer               string   `json:"answer"`
	Followups            []string `json:"followups"`
	CitedChunkIDs        []string `json:"cited_chunk_ids"`
	InsufficientEvidence bool     `json:"insufficient_evidence"`
}

type SynthesisParams struct {
	Query              string
	Persona            string
	Chunks             []*repos.RetrievedChunk
	TechnicalDepth     string
	Conversationalness float64
	OutputTone         string
	Conciseness        float64
}

// Synthesizer produces a grounded answer from retrieved evidence.
type Synthesizer interface {
	Synthesize(ctx context.Context, params SynthesisParams) (*LlmAnswer, error)
}

type synthService struct {
	client ollama.Client
	log    *logger.Logger
}

func NewSynthesizer(client ollama.Client, baseLog *logger.Logger) Synthesizer {
	return &synthService{client: client, log: baseLog.With("service", "Synthesizer")}
}

const synthesisSystemPrompt = "You are a retrieval-grounded assistant. Use only the provided evidence. " +
	"Return concise direct answers. No speculation. " +
	"If evidence is insufficient, set insufficient_evidence=true and provide a short clarifying question."

type evidenceItem struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentTitle string  `json:"document_title"`
	DocumentURL   string  `json:"document_url"`
	HeadingPath   *string `json:"heading_path"`
	Text          string  `json:"text"`
}

func buildEvidence(chunks []*repos.RetrievedChunk) []evidenceItem {
	out := make([]evidenceItem, 0, len(chunks))
	for _, c := range chunks {
		text := c.Text
		if len(text) > 900 {
			text = text[:900]
		}
		out = append(out, evidenceItem{
			ChunkID:       c.ChunkID.String(),
			DocumentTitle: c.Title,
			DocumentURL:   c.URL,
			HeadingPath:   c.HeadingPath,
			Text:          text,
		})
	}
	return out
}

func depthInstruction(depth string) string {
	switch depth {
	case "low":
		return "Use client-safe language. Minimize jargon and infrastructure acronyms unless necessary."
	case "high":
		return "Use precise technical terminology and architecture details."
	default:
		return "Balance clarity with technical precision."
	}
}

func convoInstruction(conversationalness float64) string {
	switch conversationBucket(conversationalness) {
	case "low":
		return "Keep tone direct and formal. Avoid conversational fillers."
	case "high":
		return "Use friendly conversational wording while staying concise and factual."
	default:
		return "Use clear, plain language with moderate conversational tone."
	}
}

func toneInstruction(tone string) string {
	switch tone {
	case "friendly":
		return "Tone: warm and helpful."
	case "critical":
		return "Tone: skeptical and strict; prioritize precision and caveats."
	default:
		return "Tone: direct and efficient."
	}
}

func lengthInstruction(conciseness float64) string {
	switch {
	case conciseness >= 0.75:
		return "Very concise: 1 sentence or max 2 bullets."
	case conciseness >= 0.5:
		return "Concise: short lead + max 3 bullets."
	default:
		return "Detailed but focused: short lead + max 5 bullets."
	}
}

func (s *synthService) Synthesize(ctx context.Context, params SynthesisParams) (*LlmAnswer, error) {
	conciseness := clamp01(params.Conciseness)
	payload := map[string]any{
		"persona":         params.Persona,
		"technical_depth": params.TechnicalDepth,
		"output_tone":     params.OutputTone,
		"conciseness":     conciseness,
		"query":           params.Query,
		"instructions": []string{
			"Answer with a direct lead sentence, then up to 5 compact bullets for key mechanisms.",
			"Cite only chunk_ids that directly support the answer.",
			"Prefer precise facts over broad summaries.",
			"Do not include unsupported claims.",
			"Synthesize across multiple evidence chunks when the question asks for mechanisms, stack components, or process flow.",
			depthInstruction(params.TechnicalDepth),
			convoInstruction(params.Conversationalness),
			toneInstruction(params.OutputTone),
			lengthInstruction(conciseness),
		},
		"evidence": buildEvidence(params.Chunks),
		"output_schema": map[string]any{
			"answer":                "string",
			"followups":             []string{"string"},
			"cited_chunk_ids":       []string{"string"},
			"insufficient_evidence": "boolean",
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	content, err := s.client.ChatJSON(ctx, synthesisSystemPrompt, string(encoded))
	if err != nil {
		return nil, err
	}

	var parsed LlmAnswer
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("synthesis output not parseable: %w", err)
	}
	if len(parsed.Followups) > 3 {
		parsed.Followups = parsed.Followups[:3]
	}
	parsed.Answer = strings.TrimSpace(parsed.Answer)
	if parsed.Answer == "" {
		parsed.Answer = "I could not produce a grounded answer from the available evidence."
	}
	return &parsed, nil
}
