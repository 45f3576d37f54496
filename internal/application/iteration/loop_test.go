package iteration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/application/validator"
	"github.com/aegis-run/orchestrator/internal/domain"
)

type fakeInvoker struct {
	outputs []string
	calls   int
}

func (f *fakeInvoker) Invoke(ctx context.Context, cfg domain.LLMConfig, prompt string, schema map[string]any) (domain.ModelInvocationResult, error) {
	out := f.outputs[f.calls%len(f.outputs)]
	f.calls++
	return domain.ModelInvocationResult{Content: out}, nil
}

func TestLoop_Run_NoJudgesPassesImmediately(t *testing.T) {
	invoker := &fakeInvoker{outputs: []string{"final answer"}}
	loop := &Loop{Invoker: invoker, Validator: validator.New(validator.DefaultThresholds())}

	agent := domain.NewAgent("worker", "v1", domain.AgentManifest{LLM: domain.LLMConfig{Provider: "openai", Model: "gpt"}})
	sess, err := loop.Run(context.Background(), agent, domain.NewID(), nil, "do the thing", nil, 3, false)

	require.NoError(t, err)
	assert.Equal(t, domain.AgentExecCompleted, sess.Status)
	assert.Equal(t, 1, sess.CurrentIteration)
	require.NotNil(t, sess.FinalOutput)
	assert.Equal(t, "final answer", *sess.FinalOutput)
}

func TestLoop_Run_RefineThenPass(t *testing.T) {
	invoker := &fakeInvoker{outputs: []string{"draft one", "draft two"}}
	judgeInvoker := &judgeSequence{replies: []string{
		`{"score":0.4,"confidence":0.9,"reasoning":"needs work"}`,
		`{"score":0.9,"confidence":0.9,"reasoning":"good"}`,
	}}
	loop := &Loop{
		Invoker:   combinedInvoker{agent: invoker, judge: judgeInvoker},
		Validator: validator.New(validator.DefaultThresholds()),
	}

	agent := domain.NewAgent("worker", "v1", domain.AgentManifest{LLM: domain.LLMConfig{Provider: "openai", Model: "gpt"}})
	judges := []domain.JudgeConfig{{AgentRef: "judge-1", Weight: 1}}
	sess, err := loop.Run(context.Background(), agent, domain.NewID(), nil, "do the thing", judges, 3, false)

	require.NoError(t, err)
	assert.Equal(t, domain.AgentExecCompleted, sess.Status)
	assert.Equal(t, 2, sess.CurrentIteration)
	assert.True(t, sess.Iterations[0].RefinementApplied)
}

// judgeSequence and combinedInvoker let the two distinct C5 sessions inside
// one Run call (the agent itself, and the judge it spawns) return
// different canned outputs based on which LLMConfig.Provider is invoked.
type judgeSequence struct {
	replies []string
	calls   int
}

type combinedInvoker struct {
	agent domain.ModelInvoker
	judge *judgeSequence
}

func (c combinedInvoker) Invoke(ctx context.Context, cfg domain.LLMConfig, prompt string, schema map[string]any) (domain.ModelInvocationResult, error) {
	if cfg.Provider == "judge" {
		reply := c.judge.replies[c.judge.calls%len(c.judge.replies)]
		c.judge.calls++
		return domain.ModelInvocationResult{Content: reply}, nil
	}
	return c.agent.Invoke(ctx, cfg, prompt, schema)
}
