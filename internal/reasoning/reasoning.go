// Package reasoning wraps the external language-model service used to turn
// open-ended phrasing into query plans.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmetk3436/ppmchat/internal/config"
)

// Reasoner sends one system prompt plus one user message and returns the
// model's free-text reply.
type Reasoner interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ErrNotConfigured is returned by the fallback reasoner when no API key is set.
var ErrNotConfigured = errors.New("reasoning service not configured")

// New picks a provider from configuration. Without an API key the returned
// Reasoner always fails with ErrNotConfigured, so deterministic paths keep
// working.
func New(cfg *config.Config) Reasoner {
	if cfg.ReasoningAPIKey == "" {
		return unconfigured{}
	}

	timeout := cfg.ReasoningTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	switch strings.ToLower(cfg.ReasoningProvider) {
	case "anthropic", "claude":
		return NewAnthropic(cfg.ReasoningAPIKey, cfg.ReasoningAPIURL, cfg.ReasoningModel, timeout)
	default:
		return NewOpenAI(cfg.ReasoningAPIKey, cfg.ReasoningAPIURL, cfg.ReasoningModel, timeout)
	}
}

type unconfigured struct{}

func (unconfigured) Complete(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

// ExtractJSONObject returns the first well-formed JSON object embedded in
// text. Models often wrap the object in prose or code fences.
func ExtractJSONObject(text string) (map[string]any, error) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var obj map[string]any
		if err := dec.Decode(&obj); err == nil {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("no JSON object found in reply of %d bytes", len(text))
}
