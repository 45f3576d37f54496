package modelinvoke

import (
	"context"
	"fmt"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// Dispatcher is a domain.ModelInvoker that routes to a concrete provider
// invoker by domain.LLMConfig.Provider, matching an agent manifest's own
// llm.provider selection.
type Dispatcher struct {
	invokers map[string]domain.ModelInvoker
}

// NewDispatcher builds a Dispatcher over the given provider name ->
// invoker map (e.g. "openai" -> OpenAIInvoker, "anthropic" ->
// AnthropicInvoker).
func NewDispatcher(invokers map[string]domain.ModelInvoker) *Dispatcher {
	return &Dispatcher{invokers: invokers}
}

func (d *Dispatcher) Invoke(ctx context.Context, cfg domain.LLMConfig, prompt string, responseSchema map[string]any) (domain.ModelInvocationResult, error) {
	invoker, ok := d.invokers[cfg.Provider]
	if !ok {
		return domain.ModelInvocationResult{}, fmt.Errorf("no model invoker registered for provider %q", cfg.Provider)
	}
	return invoker.Invoke(ctx, cfg, prompt, responseSchema)
}
