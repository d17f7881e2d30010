package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ahmetk3436/ppmchat/internal/metrics"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint (OpenAI,
// GLM, local gateways) through openai-go.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: model, timeout: timeout}
}

func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	metrics.RecordReasoningCall("openai", err)
	if err != nil {
		slog.Error("Reasoning request failed", "provider", "openai", "error", err)
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}
	content := completion.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty response content")
	}

	slog.Debug("Reasoning response received", "provider", "openai", "content_length", len(content))
	return content, nil
}
