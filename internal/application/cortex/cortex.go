// Package cortex wraps the Pattern Store port (domain.PatternStore) with
// the fixed operational parameters (dedup threshold, reinforcement β,
// decay λ, min-weight pruning threshold), and runs a periodic pruning
// pass as a time.Ticker-driven background job.
package cortex

import (
	"context"
	"math"
	"time"

	"github.com/aegis-run/orchestrator/internal/domain"
	"github.com/aegis-run/orchestrator/internal/infrastructure/monitoring"
)

// Params holds the Cortex/Pruner operational constants.
type Params struct {
	DedupThreshold float64
	ReinforceBeta  float64
	MaxWeight      float64
	MinWeight      float64
	DecayHalfLife  time.Duration
	PruneInterval  time.Duration
}

// DefaultParams returns conservative defaults (dedup 0.95, min_weight
// 0.01, half-life 30 days, prune every 24h).
func DefaultParams() Params {
	return Params{
		DedupThreshold: 0.95,
		ReinforceBeta:  0.2,
		MaxWeight:      10.0,
		MinWeight:      0.01,
		DecayHalfLife:  30 * 24 * time.Hour,
		PruneInterval:  24 * time.Hour,
	}
}

func (p Params) lambda() float64 {
	halfLifeDays := p.DecayHalfLife.Hours() / 24
	return math.Ln2 / halfLifeDays // per-day λ = ln2/τ(days)
}

// Service is the application-layer façade over the Pattern Store port.
type Service struct {
	store    domain.PatternStore
	params   Params
	observer *monitoring.ObserverManager
}

// New constructs a Cortex service.
func New(store domain.PatternStore, params Params, observer *monitoring.ObserverManager) *Service {
	return &Service{store: store, params: params, observer: observer}
}

// Store deduplicates-or-creates a pattern.
func (s *Service) Store(ctx context.Context, sig domain.ErrorSignature, sol domain.Solution, embedding []float32, tags []string) (domain.ID, error) {
	return s.store.Store(ctx, sig, sol, embedding, tags, s.params.DedupThreshold, s.params.MaxWeight)
}

// Search ranks candidates by resonance, not raw cosine.
func (s *Service) Search(ctx context.Context, queryEmbedding []float32, k int, minResonance, alpha float64) ([]domain.PatternSearchResult, error) {
	return s.store.Search(ctx, queryEmbedding, k, minResonance, alpha)
}

// Reinforce updates a pattern's success_score and weight after an observed
// outcome. Failures here are non-fatal to the caller — an otherwise
// successful iteration should not fail just because reinforcement could
// not be persisted.
func (s *Service) Reinforce(ctx context.Context, patternID domain.ID, observedSuccess float64) error {
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = s.store.Reinforce(ctx, patternID, observedSuccess, s.params.ReinforceBeta, s.params.MaxWeight); err == nil {
			if s.observer != nil {
				s.observer.NotifyPatternReinforced(patternID, observedSuccess)
			}
			return nil
		}
	}
	return err
}

// Delete removes a pattern outright.
func (s *Service) Delete(ctx context.Context, patternID domain.ID) error {
	return s.store.Delete(ctx, patternID)
}

// ListAll returns every stored pattern.
func (s *Service) ListAll(ctx context.Context) ([]*domain.CortexPattern, error) {
	return s.store.ListAll(ctx)
}

// FindByTags returns patterns matching any of tags.
func (s *Service) FindByTags(ctx context.Context, tags []string) ([]*domain.CortexPattern, error) {
	return s.store.FindByTags(ctx, tags)
}

// PruneOnce runs one decay-and-prune pass over every pattern.
func (s *Service) PruneOnce(ctx context.Context) error {
	pruned, err := s.store.DecayAndPrune(ctx, time.Now(), s.params.lambda(), s.params.MinWeight)
	if err != nil {
		return err
	}
	if s.observer != nil {
		for _, p := range pruned {
			s.observer.NotifyPatternPruned(p.PatternID, p.Weight, "weight below min_weight_threshold")
		}
	}
	return nil
}

// Pruner runs PruneOnce on a fixed interval until its context is cancelled.
type Pruner struct {
	service  *Service
	interval time.Duration
}

// NewPruner returns a Pruner using service's configured PruneInterval.
func NewPruner(service *Service) *Pruner {
	return &Pruner{service: service, interval: service.params.PruneInterval}
}

// Run blocks, ticking PruneOnce every interval, until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.service.PruneOnce(ctx)
		}
	}
}
