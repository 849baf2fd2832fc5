// Package tokencount estimates prompt token counts for backend calls.
//
// It uses tiktoken-go to size representative prompts before dispatch, so the
// pipeline can clamp oversized prompts and track token usage per batch.
package tokencount

import (
	"strings"
	"sync"

	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting with per-model encoding cache.
type Counter struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewCounter creates a token counter.
func NewCounter() *Counter {
	return &Counter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// CountChat estimates the token count for a chat completion request,
// including the per-message structural overhead of OpenAI-compatible APIs.
func (c *Counter) CountChat(systemPrompt, userPrompt, model string) (int, error) {
	enc, err := c.encodingFor(model)
	if err != nil {
		return 0, err
	}
	// 3 tokens of framing per message plus 1 for the role.
	const perMessage, perRole = 3, 1
	n := 0
	for _, msg := range []struct{ role, content string }{
		{"system", systemPrompt},
		{"user", userPrompt},
	} {
		n += perMessage + perRole
		n += len(enc.Encode(msg.role, nil, nil))
		n += len(enc.Encode(msg.content, nil, nil))
	}
	// Every reply is primed with 3 tokens.
	return n + 3, nil
}

func (c *Counter) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	name := normalize(model)

	c.mu.RLock()
	enc, ok := c.encodings[name]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodings[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.encodings[name] = enc
	return enc, nil
}

// normalize maps provider-prefixed model IDs (e.g. "meta/llama-3.1-8b-instruct")
// onto tiktoken-compatible names. Non-OpenAI families approximate well with
// the gpt-4 encoding.
func normalize(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}
