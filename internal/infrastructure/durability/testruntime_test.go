package durability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/domain"
)

func TestTestRuntime_RecordSideEffect_CachesByName(t *testing.T) {
	rt := NewTestRuntime()
	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	first, err := rt.RecordSideEffect(context.Background(), "fetch-timestamp", fn)
	require.NoError(t, err)
	second, err := rt.RecordSideEffect(context.Background(), "fetch-timestamp", fn)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestTestRuntime_RecordSideEffect_CachesErrors(t *testing.T) {
	rt := NewTestRuntime()
	wantErr := errors.New("boom")
	fn := func(ctx context.Context) (any, error) { return nil, wantErr }

	_, err1 := rt.RecordSideEffect(context.Background(), "flaky", fn)
	_, err2 := rt.RecordSideEffect(context.Background(), "flaky", fn)

	assert.Equal(t, wantErr, err1)
	assert.Equal(t, wantErr, err2)
}

func TestTestRuntime_AwaitSignal_DeliversPayload(t *testing.T) {
	rt := NewTestRuntime()
	go func() {
		time.Sleep(10 * time.Millisecond)
		rt.Signal("human-response", map[string]any{"decision": "approve"})
	}()

	got, err := rt.AwaitSignal(context.Background(), "human-response", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "approve", got.(map[string]any)["decision"])
}

func TestTestRuntime_AwaitSignal_TimesOut(t *testing.T) {
	rt := NewTestRuntime()
	_, err := rt.AwaitSignal(context.Background(), "never-comes", 10*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrSignalTimedOut)
}

func TestTestRuntime_SpawnParallel_RunsConcurrently(t *testing.T) {
	rt := NewTestRuntime()
	fns := []func(ctx context.Context) (any, error){
		func(ctx context.Context) (any, error) { return 1, nil },
		func(ctx context.Context) (any, error) { return 2, nil },
		func(ctx context.Context) (any, error) { return 3, nil },
	}

	results, err := rt.SpawnParallel(context.Background(), fns)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, results)
}

func TestTestRuntime_SpawnParallel_PropagatesError(t *testing.T) {
	rt := NewTestRuntime()
	wantErr := errors.New("branch failed")
	fns := []func(ctx context.Context) (any, error){
		func(ctx context.Context) (any, error) { return 1, nil },
		func(ctx context.Context) (any, error) { return nil, wantErr },
	}

	_, err := rt.SpawnParallel(context.Background(), fns)
	assert.ErrorIs(t, err, wantErr)
}
