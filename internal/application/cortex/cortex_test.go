package cortex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/domain"
)

type memStore struct {
	patterns map[domain.ID]*domain.CortexPattern
}

func newMemStore() *memStore { return &memStore{patterns: make(map[domain.ID]*domain.CortexPattern)} }

func (m *memStore) Store(ctx context.Context, sig domain.ErrorSignature, sol domain.Solution, embedding []float32, tags []string, dedupThreshold, maxWeight float64) (domain.ID, error) {
	p := domain.NewCortexPattern(sig, sol, embedding, tags)
	m.patterns[p.PatternID] = p
	return p.PatternID, nil
}

func (m *memStore) Search(ctx context.Context, queryEmbedding []float32, k int, minResonance, alpha float64) ([]domain.PatternSearchResult, error) {
	return nil, nil
}

func (m *memStore) Reinforce(ctx context.Context, patternID domain.ID, observedSuccess, beta, maxWeight float64) error {
	p, ok := m.patterns[patternID]
	if !ok {
		return domain.NewDomainError(domain.ErrCodeNotFound, "pattern not found", nil)
	}
	p.SuccessScore = (1-beta)*p.SuccessScore + beta*observedSuccess
	p.ExecutionCount++
	p.LastUsed = time.Now()
	if p.Weight+1 < maxWeight {
		p.Weight++
	}
	return nil
}

func (m *memStore) DecayAndPrune(ctx context.Context, now time.Time, lambda, minWeight float64) ([]*domain.CortexPattern, error) {
	var pruned []*domain.CortexPattern
	for id, p := range m.patterns {
		if p.Weight < minWeight {
			pruned = append(pruned, p)
			delete(m.patterns, id)
		}
	}
	return pruned, nil
}

func (m *memStore) Delete(ctx context.Context, patternID domain.ID) error {
	delete(m.patterns, patternID)
	return nil
}

func (m *memStore) ListAll(ctx context.Context) ([]*domain.CortexPattern, error) {
	var out []*domain.CortexPattern
	for _, p := range m.patterns {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) FindByTags(ctx context.Context, tags []string) ([]*domain.CortexPattern, error) {
	return nil, nil
}

func TestService_StoreAndReinforce(t *testing.T) {
	store := newMemStore()
	svc := New(store, DefaultParams(), nil)

	id, err := svc.Store(context.Background(), domain.ErrorSignature{Type: "nil_pointer"}, domain.Solution{Description: "add guard"}, []float32{0.1, 0.2}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Reinforce(context.Background(), id, 0.9))
	assert.InDelta(t, 0.58, store.patterns[id].SuccessScore, 1e-9)
}

func TestService_PruneOnce_RemovesLowWeight(t *testing.T) {
	store := newMemStore()
	svc := New(store, DefaultParams(), nil)

	id, _ := svc.Store(context.Background(), domain.ErrorSignature{Type: "x"}, domain.Solution{Description: "y"}, nil, nil)
	store.patterns[id].Weight = 0.001

	require.NoError(t, svc.PruneOnce(context.Background()))
	_, stillExists := store.patterns[id]
	assert.False(t, stillExists)
}
