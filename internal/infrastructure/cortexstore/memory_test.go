package cortexstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/domain"
)

func TestMemory_Store_DedupsOnSimilarEmbeddingAndType(t *testing.T) {
	m := NewMemory()
	sig := domain.ErrorSignature{Type: "nil_pointer", MessageNormalized: "nil deref"}
	sol := domain.Solution{Description: "add nil check"}

	id1, err := m.Store(context.Background(), sig, sol, []float32{1, 0, 0}, nil, 0.95, 10)
	require.NoError(t, err)

	id2, err := m.Store(context.Background(), sig, sol, []float32{1, 0, 0.001}, nil, 0.95, 10)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	all, _ := m.ListAll(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, float64(2), all[0].Weight)
}

func TestMemory_Store_DifferentTypeCreatesNew(t *testing.T) {
	m := NewMemory()
	sol := domain.Solution{Description: "fix"}

	id1, _ := m.Store(context.Background(), domain.ErrorSignature{Type: "a"}, sol, []float32{1, 0}, nil, 0.95, 10)
	id2, _ := m.Store(context.Background(), domain.ErrorSignature{Type: "b"}, sol, []float32{1, 0}, nil, 0.95, 10)

	assert.NotEqual(t, id1, id2)
}

func TestMemory_Search_RanksByResonanceNotCosine(t *testing.T) {
	m := NewMemory()
	sol := domain.Solution{Description: "fix"}

	lowWeightID, _ := m.Store(context.Background(), domain.ErrorSignature{Type: "x"}, sol, []float32{1, 0}, nil, 0.95, 10)
	// A distinct pattern, reinforced heavily, with a slightly weaker raw
	// cosine match but a much higher success_score*weight boost.
	highWeightID, _ := m.Store(context.Background(), domain.ErrorSignature{Type: "y"}, sol, []float32{0.99, 0.14}, nil, 0.95, 10)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Reinforce(context.Background(), highWeightID, 1.0, 0.2, 10))
	}

	results, err := m.Search(context.Background(), []float32{1, 0}, 5, 0, 0.2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, highWeightID, results[0].Pattern.PatternID)
	assert.Equal(t, lowWeightID, results[1].Pattern.PatternID)
}

func TestMemory_DecayAndPrune_RemovesBelowMinWeight(t *testing.T) {
	m := NewMemory()
	id, _ := m.Store(context.Background(), domain.ErrorSignature{Type: "z"}, domain.Solution{}, []float32{1}, nil, 0.95, 10)

	m.mu.Lock()
	m.patterns[id].LastUsed = time.Now().Add(-60 * 24 * time.Hour)
	m.patterns[id].Weight = 1
	m.mu.Unlock()

	pruned, err := m.DecayAndPrune(context.Background(), time.Now(), 0.1, 0.5)
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, id, pruned[0].PatternID)

	all, _ := m.ListAll(context.Background())
	assert.Empty(t, all)
}

func TestMemory_FindByTags_MatchesAny(t *testing.T) {
	m := NewMemory()
	_, _ = m.Store(context.Background(), domain.ErrorSignature{Type: "t1"}, domain.Solution{}, []float32{1}, []string{"go", "nil"}, 0.95, 10)
	_, _ = m.Store(context.Background(), domain.ErrorSignature{Type: "t2"}, domain.Solution{}, []float32{1}, []string{"python"}, 0.95, 10)

	found, err := m.FindByTags(context.Background(), []string{"nil", "rust"})
	require.NoError(t, err)
	require.Len(t, found, 1)
}
