// Package real implements the AI client against the external generative
// backend (OpenAI-compatible chat completions API).
package real

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/polisim/ai-gateway/internal/adapter/ai/tokencount"
	"github.com/polisim/ai-gateway/internal/adapter/observability"
	"github.com/polisim/ai-gateway/internal/config"
	"github.com/polisim/ai-gateway/internal/domain"
)

// Client implements domain.AIClient. Every call is a single attempt with a
// fixed timeout; the circuit breaker above this layer owns failure handling,
// so there is no per-request retry here.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	secrets domain.SecretProvider
	tokens  *tokencount.Counter
}

// New constructs a backend client. The API key is resolved from the secret
// provider once per call, never cached.
func New(cfg config.Config, secrets domain.SecretProvider) *Client {
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: cfg.RequestTimeout},
		secrets: secrets,
		tokens:  tokencount.NewCounter(),
	}
}

// Chat calls the chat completions endpoint and returns the first choice's
// message content. Timeouts, non-2xx statuses and unparseable payloads all
// surface as errors for the circuit breaker to count.
func (c *Client) Chat(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	key, ok := c.secrets.GetSecret(c.cfg.BackendKeyName)
	if !ok || key == "" {
		return "", fmt.Errorf("op=ai.Chat: %w: %s not configured", domain.ErrUnavailable, c.cfg.BackendKeyName)
	}

	if n, err := c.tokens.CountChat(systemPrompt, userPrompt, c.cfg.BackendModel); err == nil {
		if n > c.cfg.PromptTokenLimit {
			slog.Warn("prompt exceeds token limit, truncating user prompt",
				slog.Int("tokens", n),
				slog.Int("limit", c.cfg.PromptTokenLimit))
			userPrompt = truncate(userPrompt, c.cfg.PromptTokenLimit)
		}
	}

	body := map[string]any{
		"model":       c.cfg.BackendModel,
		"temperature": c.cfg.Temperature,
		"max_tokens":  maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=ai.Chat: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BackendBaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("op=ai.Chat: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	observability.AIRequestsTotal.WithLabelValues("backend", outcomeLabel(err)).Inc()
	observability.AIRequestDuration.WithLabelValues("backend").Observe(time.Since(start).Seconds())
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			slog.Warn("backend request timed out", slog.Duration("timeout", c.cfg.RequestTimeout))
			return "", fmt.Errorf("op=ai.Chat: %w: %v", domain.ErrUpstreamTimeout, err)
		}
		return "", fmt.Errorf("op=ai.Chat: transport: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("op=ai.Chat: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(bodyBytes)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		slog.Error("backend non-2xx",
			slog.Int("status", resp.StatusCode),
			slog.String("model", c.cfg.BackendModel),
			slog.String("body", snippet))
		return "", fmt.Errorf("op=ai.Chat: status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		slog.Error("backend decode error", slog.Any("error", err))
		return "", fmt.Errorf("op=ai.Chat: %w: %v", domain.ErrMalformedResponse, err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("op=ai.Chat: %w: empty choices", domain.ErrMalformedResponse)
	}

	slog.Debug("backend call succeeded",
		slog.String("model", c.cfg.BackendModel),
		slog.Duration("elapsed", time.Since(start)))
	return out.Choices[0].Message.Content, nil
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// truncate cuts s to roughly limit tokens using a 4-bytes-per-token estimate.
// Exact truncation is not worth a second encode pass.
func truncate(s string, limit int) string {
	maxBytes := limit * 4
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}
