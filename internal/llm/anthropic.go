package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for Claude and Anthropic-compatible
// APIs (gateways exposing the Messages format under a different base URL).
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	name   string // provider name override ("openrouter", etc.)
}

// NewAnthropic creates an Anthropic provider with a static API key.
func NewAnthropic(apiKey, model string) *AnthropicProvider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)

	if model == "" {
		model = "claude-sonnet-4-5"
	}

	return &AnthropicProvider{
		client: &client,
		model:  model,
	}
}

// NewAnthropicCompat creates an Anthropic-compatible provider with a custom
// base URL, for gateway providers that speak the Messages API.
func NewAnthropicCompat(name, baseURL, apiKey, model string) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client: &client,
		model:  model,
		name:   name,
	}
}

func (p *AnthropicProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return "anthropic"
}

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	// Stream and accumulate so slow responses keep the connection alive
	// via SSE events instead of tripping the SDK request timeout.
	stream := p.client.Messages.NewStreaming(ctx, params,
		option.WithRequestTimeout(2*time.Minute),
	)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, &ProviderError{
				Message:  fmt.Sprintf("stream accumulate: %v", err),
				Provider: p.Name(),
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, &ProviderError{
			Message:  err.Error(),
			Provider: p.Name(),
		}
	}

	var content string
	for _, block := range message.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += textBlock.Text
		}
	}

	return &CompletionResponse{
		Content:      content,
		Model:        string(message.Model),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
		StopReason:   string(message.StopReason),
	}, nil
}
