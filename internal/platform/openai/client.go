// Package openai wraps the two OpenAI surfaces the backend relies on:
// embeddings for fact deduplication and structured JSON generation for
// fact extraction and video scripting. Everything else the API offers is
// out of scope here.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dewiapp/dewi-backend/internal/pkg/httpx"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/utils"
)

// Client is the narrow surface services consume. Both methods block until
// the API answers or ctx is done; retries happen inside.
type Client interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// GenerateJSON asks the model for output conforming to the given JSON
	// schema and returns the raw JSON payload for the caller to decode.
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error)
}

type client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	retry      httpx.RetryPolicy
	log        *logger.Logger
}

// NewClient reads configuration from the environment. OPENAI_API_KEY is
// required; everything else has a default.
func NewClient(baseLog *logger.Logger) (Client, error) {
	log := baseLog.With("component", "openai_client")
	apiKey := utils.GetEnv("OPENAI_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("openai: OPENAI_API_KEY is not set")
	}
	timeout := time.Duration(utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 180, log)) * time.Second
	return &client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log), "/"),
		apiKey:     apiKey,
		model:      utils.GetEnv("OPENAI_MODEL", "gpt-5.2", log),
		embedModel: utils.GetEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small", log),
		retry: httpx.RetryPolicy{
			MaxAttempts: utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 4, log),
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
		},
		log: log,
	}, nil
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

// doJSON posts payload to path and decodes the response into out. The
// *http.Response handed back to the retry policy steers Retry-After waits.
func (c *client) doJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("openai: marshal request: %w", err)
	}
	return c.retry.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
		if err != nil {
			return resp, fmt.Errorf("openai: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &httpError{StatusCode: resp.StatusCode, Body: truncateBody(raw)}
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, fmt.Errorf("openai: decode response: %w", err)
		}
		return resp, nil
	})
}

func truncateBody(raw []byte) string {
	const max = 2048
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embeddingsResponse
	if err := c.doJSON(ctx, "/v1/embeddings", embeddingsRequest{Model: c.embedModel, Input: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai: missing embedding for input %d", i)
		}
	}
	return out, nil
}

type responsesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesTextFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type responsesRequest struct {
	Model string             `json:"model"`
	Input []responsesMessage `json:"input"`
	Text  struct {
		Format responsesTextFormat `json:"format"`
	} `json:"text"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text"`
			Refusal string `json:"refusal"`
		} `json:"content"`
	} `json:"output"`
}

func (c *client) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	req := responsesRequest{
		Model: c.model,
		Input: []responsesMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	req.Text.Format = responsesTextFormat{
		Type:   "json_schema",
		Name:   schemaName,
		Schema: schema,
		Strict: true,
	}
	var resp responsesResponse
	if err := c.doJSON(ctx, "/v1/responses", req, &resp); err != nil {
		return nil, err
	}
	text, err := extractOutputText(&resp)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("openai: model returned invalid JSON for schema %q", schemaName)
	}
	return json.RawMessage(text), nil
}

// extractOutputText digs the message text out of the responses payload. A
// refusal surfaces as an error so callers never mistake it for content.
func extractOutputText(resp *responsesResponse) (string, error) {
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Refusal != "" {
				return "", fmt.Errorf("openai: model refused: %s", part.Refusal)
			}
			if part.Type == "output_text" && part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", fmt.Errorf("openai: response contained no output text")
}
