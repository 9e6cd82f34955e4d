package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/utils"
)

// Client talks to an Ollama-compatible backend for embeddings and grounded
// synthesis. Calls are single-shot with a bounded timeout: the pipeline never
// retries, it degrades to deterministic fallbacks instead.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ChatJSON(ctx context.Context, system string, user string) (string, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	model      string
	embedModel string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) Client {
	baseURL := strings.TrimRight(utils.GetEnv("OLLAMA_BASE_URL", "http://127.0.0.1:11434", log), "/")
	model := utils.GetEnv("OLLAMA_MODEL", "llama3.1:8b", log)
	embedModel := utils.GetEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text", log)
	timeoutSec := utils.GetEnvAsInt("OLLAMA_TIMEOUT_SECONDS", 45, log)
	if timeoutSec < 5 {
		timeoutSec = 5
	}

	return &client{
		log:        log.With("service", "OllamaClient"),
		baseURL:    baseURL,
		model:      model,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("ollama http %d: %s", e.StatusCode, e.Body)
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("ollama decode error: %w", err)
	}
	return nil
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > 8000 {
		text = text[:8000]
	}
	var resp embeddingsResponse
	if err := c.do(ctx, "/api/embeddings", embeddingsRequest{Model: c.embedModel, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format"`
	Messages []chatMessage  `json:"messages"`
	Options  map[string]any `json:"options"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// ChatJSON sends a system+user exchange with format=json and returns the raw
// assistant content, which callers parse against their own output schema.
func (c *client) ChatJSON(ctx context.Context, system string, user string) (string, error) {
	req := chatRequest{
		Model:  c.model,
		Stream: false,
		Format: "json",
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Options: map[string]any{"temperature": 0},
	}
	var resp chatResponse
	if err := c.do(ctx, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
