package modelinvoke

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// AnthropicInvoker is the domain.ModelInvoker backed by the Anthropic
// Messages API.
type AnthropicInvoker struct {
	client anthropic.Client
}

// NewAnthropicInvoker builds an invoker from an API key.
func NewAnthropicInvoker(apiKey string) *AnthropicInvoker {
	return &AnthropicInvoker{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (a *AnthropicInvoker) Invoke(ctx context.Context, cfg domain.LLMConfig, prompt string, responseSchema map[string]any) (domain.ModelInvocationResult, error) {
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPromptFor(prompt, responseSchema))),
		},
	}
	if cfg.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: cfg.SystemPrompt}}
	}
	if cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(cfg.Temperature)
	}

	start := time.Now()
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return domain.ModelInvocationResult{}, fmt.Errorf("anthropic invoke: %w", err)
	}

	var content string
	for _, block := range msg.Content {
		if text := block.AsAny(); text != nil {
			if tb, ok := text.(anthropic.TextBlock); ok {
				content += tb.Text
			}
		}
	}

	return domain.ModelInvocationResult{
		Content:      content,
		PromptTokens: int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		Latency:      time.Since(start),
	}, nil
}

// userPromptFor appends a schema instruction when the caller asked for
// constrained output — Anthropic's Messages API has no native JSON-schema
// response mode, so this degrades to best-effort prompting the way
// domain.ModelInvoker's doc comment allows ("providers that cannot
// guarantee it degrade to best-effort prompting").
func userPromptFor(prompt string, responseSchema map[string]any) string {
	if responseSchema == nil {
		return prompt
	}
	return prompt + "\n\nRespond with JSON matching this schema only, no prose:\n" + schemaToHint(responseSchema)
}

func schemaToHint(schema map[string]any) string {
	b, err := jsonSchemaDefinition(schema).MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}
