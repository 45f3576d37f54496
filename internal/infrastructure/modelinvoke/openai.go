// Package modelinvoke adapts real LLM provider SDKs — sashabaranov/go-openai,
// anthropic-sdk-go — to domain.ModelInvoker: a per-provider struct with an
// Invoke method that translates a generic request into that provider's
// wire format.
package modelinvoke

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// jsonSchemaDefinition wraps a plain map so it satisfies the
// json.Marshaler the OpenAI SDK's JSONSchema.Schema field requires.
type jsonSchemaDefinition map[string]any

func (d jsonSchemaDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(d))
}

// OpenAIInvoker is the domain.ModelInvoker backed by the OpenAI Chat
// Completions API.
type OpenAIInvoker struct {
	client *openai.Client
}

// NewOpenAIInvoker builds an invoker from an API key.
func NewOpenAIInvoker(apiKey string) *OpenAIInvoker {
	return &OpenAIInvoker{client: openai.NewClient(apiKey)}
}

func (o *OpenAIInvoker) Invoke(ctx context.Context, cfg domain.LLMConfig, prompt string, responseSchema map[string]any) (domain.ModelInvocationResult, error) {
	messages := []openai.ChatCompletionMessage{}
	if cfg.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: cfg.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: float32(cfg.Temperature),
	}
	if cfg.MaxTokens > 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if responseSchema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "aegis_response",
				Schema: jsonSchemaDefinition(responseSchema),
				Strict: true,
			},
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.ModelInvocationResult{}, fmt.Errorf("openai invoke: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.ModelInvocationResult{}, fmt.Errorf("openai invoke: empty choices")
	}

	return domain.ModelInvocationResult{
		Content:      resp.Choices[0].Message.Content,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Latency:      time.Since(start),
	}, nil
}
