package modelinvoke

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/domain"
)

type fakeInvoker struct {
	result domain.ModelInvocationResult
	err    error
	calls  int
}

func (f *fakeInvoker) Invoke(ctx context.Context, cfg domain.LLMConfig, prompt string, schema map[string]any) (domain.ModelInvocationResult, error) {
	f.calls++
	return f.result, f.err
}

func TestDispatcher_RoutesByProvider(t *testing.T) {
	openaiFake := &fakeInvoker{result: domain.ModelInvocationResult{Content: "from openai"}}
	anthropicFake := &fakeInvoker{result: domain.ModelInvocationResult{Content: "from anthropic"}}
	d := NewDispatcher(map[string]domain.ModelInvoker{
		"openai":    openaiFake,
		"anthropic": anthropicFake,
	})

	got, err := d.Invoke(context.Background(), domain.LLMConfig{Provider: "anthropic"}, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "from anthropic", got.Content)
	assert.Equal(t, 1, anthropicFake.calls)
	assert.Equal(t, 0, openaiFake.calls)
}

func TestDispatcher_UnknownProviderFails(t *testing.T) {
	d := NewDispatcher(map[string]domain.ModelInvoker{"openai": &fakeInvoker{}})
	_, err := d.Invoke(context.Background(), domain.LLMConfig{Provider: "mistral"}, "hi", nil)
	assert.Error(t, err)
}
