package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahmetk3436/ppmchat/internal/metrics"
)

type Anthropic struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
}

func NewAnthropic(apiKey, baseURL, model string, timeout time.Duration) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, model: model, timeout: timeout}
}

func (a *Anthropic) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}

	message, err := a.client.Messages.New(ctx, params)
	metrics.RecordReasoningCall("anthropic", err)
	if err != nil {
		slog.Error("Reasoning request failed", "provider", "anthropic", "error", err)
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		sb.WriteString(block.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response content")
	}

	slog.Debug("Reasoning response received", "provider", "anthropic", "content_length", sb.Len())
	return sb.String(), nil
}
