// Package elevenlabs synthesizes the spoken track for generated video
// scripts. Only text-to-speech is wrapped; voices are configured per
// deployment, not per request.
package elevenlabs

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

type Client interface {
	// Synthesize returns MP3 audio for text.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	VoiceID    string
	ModelID    string
	Stability  float64
	Similarity float64
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv(log *logger.Logger) Config {
	return Config{
		APIKey:     utils.GetEnv("ELEVENLABS_API_KEY", "", log),
		BaseURL:    utils.GetEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io", log),
		VoiceID:    utils.GetEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM", log),
		ModelID:    utils.GetEnv("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2", log),
		Stability:  utils.GetEnvAsFloat("ELEVENLABS_STABILITY", 0.5, log),
		Similarity: utils.GetEnvAsFloat("ELEVENLABS_SIMILARITY", 0.75, log),
		Timeout:    time.Duration(utils.GetEnvAsInt("ELEVENLABS_TIMEOUT_SECONDS", 60, log)) * time.Second,
		MaxRetries: utils.GetEnvAsInt("ELEVENLABS_MAX_RETRIES", 3, log),
	}
}

func NewFromEnv(baseLog *logger.Logger) (Client, error) {
	log := baseLog.With("component", "elevenlabs_client")
	return New(log, ConfigFromEnv(log))
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("elevenlabs: ELEVENLABS_API_KEY is not set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &client{
		log:        log,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry: httpx.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
		},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	retry      httpx.RetryPolicy
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2048 {
		msg = msg[:2048] + "..."
	}
	return fmt.Sprintf("elevenlabs http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

type speechRequest struct {
	Text          string `json:"text"`
	ModelID       string `json:"model_id"`
	VoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	} `json:"voice_settings"`
}

func (c *client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("elevenlabs: text required")
	}

	payload := speechRequest{Text: text, ModelID: c.cfg.ModelID}
	payload.VoiceSettings.Stability = c.cfg.Stability
	payload.VoiceSettings.SimilarityBoost = c.cfg.Similarity
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", c.cfg.BaseURL, c.cfg.VoiceID)
	var audio []byte
	err = c.retry.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("xi-api-key", c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return resp, fmt.Errorf("elevenlabs: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if len(raw) == 0 {
			return resp, fmt.Errorf("elevenlabs: empty audio response")
		}
		audio = raw
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}
