package isolation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/domain"
)

func TestLocalProcess_StartWait_CapturesStdoutAndExitCode(t *testing.T) {
	p := NewLocalProcess()
	ctx := context.Background()

	h, err := p.Start(ctx, domain.AgentManifest{}, "echo hello")
	require.NoError(t, err)

	result, err := p.Wait(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)
}

func TestLocalProcess_NonZeroExit(t *testing.T) {
	p := NewLocalProcess()
	ctx := context.Background()

	h, err := p.Start(ctx, domain.AgentManifest{}, "exit 3")
	require.NoError(t, err)

	result, err := p.Wait(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestLocalProcess_WaitRespectsContextTimeout(t *testing.T) {
	p := NewLocalProcess()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	h, err := p.Start(ctx, domain.AgentManifest{}, "sleep 5")
	require.NoError(t, err)

	start := time.Now()
	_, _ = p.Wait(ctx, h)
	assert.Less(t, time.Since(start), 2*time.Second, "Wait should return once the context deadline kills the subprocess, not after the full sleep")
}
