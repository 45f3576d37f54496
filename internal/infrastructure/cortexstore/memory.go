// Package cortexstore provides concrete domain.PatternStore backends: an
// in-memory backend (default, computing cosine similarity directly) and a
// Postgres backend storing the embedding as a `float4[]` column with
// application-side cosine, over the same Bun/Postgres stack the rest of
// this repo's storage uses rather than a dedicated vector database.
//
// Both backends own only storage, similarity ranking, and the mechanical
// parts of the dedup/reinforce/decay math (resonance formula, EMA update,
// exponential decay); the operational constants (dedup threshold, β, λ,
// min_weight) are supplied per-call by internal/application/cortex, which
// owns the fixed parameters and the pruning pass.
package cortexstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// Memory is an in-process, mutex-guarded domain.PatternStore.
type Memory struct {
	mu       sync.Mutex
	patterns map[domain.ID]*domain.CortexPattern
}

// NewMemory builds an empty in-memory pattern store.
func NewMemory() *Memory {
	return &Memory{patterns: make(map[domain.ID]*domain.CortexPattern)}
}

func (m *Memory) Store(ctx context.Context, sig domain.ErrorSignature, sol domain.Solution, embedding []float32, tags []string, dedupThreshold float64, maxWeight float64) (domain.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.patterns {
		if p.ErrorSignature.Type != sig.Type {
			continue
		}
		if cosine(embedding, p.Embedding) < dedupThreshold {
			continue
		}
		if p.Weight+1 < maxWeight {
			p.Weight++
		} else {
			p.Weight = maxWeight
		}
		p.LastUsed = time.Now()
		return p.PatternID, nil
	}

	p := domain.NewCortexPattern(sig, sol, embedding, tags)
	m.patterns[p.PatternID] = p
	return p.PatternID, nil
}

func (m *Memory) Search(ctx context.Context, queryEmbedding []float32, k int, minResonance float64, alpha float64) ([]domain.PatternSearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]domain.PatternSearchResult, 0, len(m.patterns))
	for _, p := range m.patterns {
		r := resonance(queryEmbedding, p, alpha)
		if r >= minResonance {
			results = append(results, domain.PatternSearchResult{Pattern: p, Resonance: r})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Resonance != results[j].Resonance {
			return results[i].Resonance > results[j].Resonance
		}
		return results[i].Pattern.PatternID.String() < results[j].Pattern.PatternID.String()
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) Reinforce(ctx context.Context, patternID domain.ID, observedSuccess float64, beta float64, maxWeight float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patterns[patternID]
	if !ok {
		return domain.NewDomainError(domain.ErrCodeNotFound, "pattern not found", nil)
	}
	p.SuccessScore = (1-beta)*p.SuccessScore + beta*observedSuccess
	p.ExecutionCount++
	p.LastUsed = time.Now()
	if p.Weight+1 < maxWeight {
		p.Weight++
	} else {
		p.Weight = maxWeight
	}
	return nil
}

func (m *Memory) DecayAndPrune(ctx context.Context, now time.Time, lambda float64, minWeight float64) ([]*domain.CortexPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned []*domain.CortexPattern
	for id, p := range m.patterns {
		days := now.Sub(p.LastUsed).Hours() / 24
		if days > 0 {
			p.Weight *= math.Exp(-lambda * days)
		}
		if p.Weight < minWeight {
			pruned = append(pruned, p)
			delete(m.patterns, id)
		}
	}
	return pruned, nil
}

func (m *Memory) Delete(ctx context.Context, patternID domain.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.patterns, patternID)
	return nil
}

func (m *Memory) ListAll(ctx context.Context) ([]*domain.CortexPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.CortexPattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) FindByTags(ctx context.Context, tags []string) ([]*domain.CortexPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}

	var out []*domain.CortexPattern
	for _, p := range m.patterns {
		for _, t := range p.Tags {
			if want[t] {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

// resonance computes cosine(q, p.embedding) * (1 + α · p.success_score · p.weight).
func resonance(query []float32, p *domain.CortexPattern, alpha float64) float64 {
	return cosine(query, p.Embedding) * (1 + alpha*p.SuccessScore*p.Weight)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
