package cortexstore

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// patternModel is the row shape for the "cortex_patterns" table. The
// embedding is stored as a plain float4[] column rather than a dedicated
// vector-database type, since bun/Postgres is already this repo's storage
// stack for everything else.
type patternModel struct {
	bun.BaseModel `bun:"table:cortex_patterns,alias:cp"`

	PatternID         domain.ID `bun:"pattern_id,pk"`
	ErrorType         string    `bun:"error_type"`
	MessageNormalized string    `bun:"message_normalized"`
	SolutionDesc      string    `bun:"solution_description"`
	SolutionCodeDiff  *string   `bun:"solution_code_diff"`
	Embedding         []float32 `bun:"embedding,type:float4[]"`
	Weight            float64   `bun:"weight"`
	SuccessScore      float64   `bun:"success_score"`
	ExecutionCount    int       `bun:"execution_count"`
	CreatedAt         time.Time `bun:"created_at"`
	LastUsed          time.Time `bun:"last_used"`
	Tags              []string  `bun:"tags,type:text[]"`
}

// BunStore is the Postgres-backed domain.PatternStore implementation.
type BunStore struct {
	db *bun.DB
}

// NewBunStore wraps an already-open *bun.DB (see
// internal/infrastructure/storage.Open).
func NewBunStore(db *bun.DB) *BunStore { return &BunStore{db: db} }

// InitSchema creates the cortex_patterns table if missing.
func (s *BunStore) InitSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*patternModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (s *BunStore) Store(ctx context.Context, sig domain.ErrorSignature, sol domain.Solution, embedding []float32, tags []string, dedupThreshold float64, maxWeight float64) (domain.ID, error) {
	var candidates []patternModel
	if err := s.db.NewSelect().Model(&candidates).Where("error_type = ?", sig.Type).Scan(ctx); err != nil {
		return domain.ID{}, err
	}
	for _, c := range candidates {
		if cosine(embedding, c.Embedding) < dedupThreshold {
			continue
		}
		newWeight := c.Weight + 1
		if newWeight > maxWeight {
			newWeight = maxWeight
		}
		_, err := s.db.NewUpdate().Model((*patternModel)(nil)).
			Set("weight = ?", newWeight).
			Set("last_used = ?", time.Now()).
			Where("pattern_id = ?", c.PatternID).
			Exec(ctx)
		if err != nil {
			return domain.ID{}, err
		}
		return c.PatternID, nil
	}

	p := domain.NewCortexPattern(sig, sol, embedding, tags)
	model := toModel(p)
	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		return domain.ID{}, err
	}
	return p.PatternID, nil
}

func (s *BunStore) Search(ctx context.Context, queryEmbedding []float32, k int, minResonance float64, alpha float64) ([]domain.PatternSearchResult, error) {
	var models []patternModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}

	results := make([]domain.PatternSearchResult, 0, len(models))
	for i := range models {
		p := models[i].toDomain()
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

func (s *BunStore) Reinforce(ctx context.Context, patternID domain.ID, observedSuccess float64, beta float64, maxWeight float64) error {
	model := new(patternModel)
	if err := s.db.NewSelect().Model(model).Where("pattern_id = ?", patternID).Scan(ctx); err != nil {
		return domain.NewDomainError(domain.ErrCodeNotFound, "pattern not found", err)
	}

	newScore := (1-beta)*model.SuccessScore + beta*observedSuccess
	newWeight := model.Weight + 1
	if newWeight > maxWeight {
		newWeight = maxWeight
	}

	_, err := s.db.NewUpdate().Model((*patternModel)(nil)).
		Set("success_score = ?", newScore).
		Set("execution_count = execution_count + 1").
		Set("weight = ?", newWeight).
		Set("last_used = ?", time.Now()).
		Where("pattern_id = ?", patternID).
		Exec(ctx)
	return err
}

func (s *BunStore) DecayAndPrune(ctx context.Context, now time.Time, lambda float64, minWeight float64) ([]*domain.CortexPattern, error) {
	var models []patternModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}

	var pruned []*domain.CortexPattern
	for _, m := range models {
		days := now.Sub(m.LastUsed).Hours() / 24
		newWeight := m.Weight
		if days > 0 {
			newWeight = m.Weight * math.Exp(-lambda*days)
		}
		if newWeight < minWeight {
			if _, err := s.db.NewDelete().Model((*patternModel)(nil)).Where("pattern_id = ?", m.PatternID).Exec(ctx); err != nil {
				return pruned, err
			}
			m.Weight = newWeight
			pruned = append(pruned, m.toDomain())
			continue
		}
		if _, err := s.db.NewUpdate().Model((*patternModel)(nil)).
			Set("weight = ?", newWeight).
			Where("pattern_id = ?", m.PatternID).
			Exec(ctx); err != nil {
			return pruned, err
		}
	}
	return pruned, nil
}

func (s *BunStore) Delete(ctx context.Context, patternID domain.ID) error {
	_, err := s.db.NewDelete().Model((*patternModel)(nil)).Where("pattern_id = ?", patternID).Exec(ctx)
	return err
}

func (s *BunStore) ListAll(ctx context.Context) ([]*domain.CortexPattern, error) {
	var models []patternModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.CortexPattern, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}

func (s *BunStore) FindByTags(ctx context.Context, tags []string) ([]*domain.CortexPattern, error) {
	var models []patternModel
	if err := s.db.NewSelect().Model(&models).Where("tags && ?", tags).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.CortexPattern, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}

func toModel(p *domain.CortexPattern) *patternModel {
	return &patternModel{
		PatternID:         p.PatternID,
		ErrorType:         p.ErrorSignature.Type,
		MessageNormalized: p.ErrorSignature.MessageNormalized,
		SolutionDesc:      p.Solution.Description,
		SolutionCodeDiff:  p.Solution.CodeDiff,
		Embedding:         p.Embedding,
		Weight:            p.Weight,
		SuccessScore:      p.SuccessScore,
		ExecutionCount:    p.ExecutionCount,
		CreatedAt:         p.CreatedAt,
		LastUsed:          p.LastUsed,
		Tags:              p.Tags,
	}
}

func (m *patternModel) toDomain() *domain.CortexPattern {
	return &domain.CortexPattern{
		PatternID:      m.PatternID,
		ErrorSignature: domain.ErrorSignature{Type: m.ErrorType, MessageNormalized: m.MessageNormalized},
		Solution:       domain.Solution{Description: m.SolutionDesc, CodeDiff: m.SolutionCodeDiff},
		Embedding:      m.Embedding,
		Weight:         m.Weight,
		SuccessScore:   m.SuccessScore,
		ExecutionCount: m.ExecutionCount,
		CreatedAt:      m.CreatedAt,
		LastUsed:       m.LastUsed,
		Tags:           m.Tags,
	}
}
