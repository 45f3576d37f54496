// Package validator implements the Multi-Judge Validator: it aggregates a
// set of judge scores into one GradientResult via a weighted mean, a
// weighted population variance, and a consensus-confidence formula, then
// assigns a pass/refine/fail verdict against configured thresholds.
// Parsing of a single judge's raw JSON reply is also owned here since it
// shares the same "reject malformed or out-of-range output" failure mode
// as aggregation.
package validator

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// Thresholds holds the configured verdict boundaries.
type Thresholds struct {
	PassScore       float64
	ConfidenceScore float64
	RefineScore     float64
}

// DefaultThresholds returns conservative defaults: pass 0.70, confidence
// 0.5, refine 0.30.
func DefaultThresholds() Thresholds {
	return Thresholds{PassScore: 0.70, ConfidenceScore: 0.5, RefineScore: 0.30}
}

// Validator aggregates judge scores into a GradientResult.
type Validator struct {
	thresholds Thresholds
}

// New constructs a Validator with the given thresholds.
func New(thresholds Thresholds) *Validator {
	return &Validator{thresholds: thresholds}
}

// judgeReply is the JSON shape every judge agent must return: a JSON
// object with score ∈ [0,1], confidence ∈ [0,1], and reasoning.
type judgeReply struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ParseJudgeOutput decodes a single judge's raw model output into a
// JudgeScore, rejecting output that doesn't parse or whose score/confidence
// fall outside [0,1].
func ParseJudgeOutput(judgeID string, weight float64, raw string) (domain.JudgeScore, error) {
	var reply judgeReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return domain.JudgeScore{}, domain.NewDomainError(domain.ErrJudgeUnparseable, "judge output is not valid JSON", err)
	}
	if reply.Score < 0 || reply.Score > 1 || reply.Confidence < 0 || reply.Confidence > 1 {
		return domain.JudgeScore{}, domain.NewDomainError(domain.ErrJudgeUnparseable, "judge score or confidence out of [0,1] range", nil)
	}
	return domain.JudgeScore{
		JudgeID:    judgeID,
		Score:      reply.Score,
		Confidence: reply.Confidence,
		Reasoning:  reply.Reasoning,
		Weight:     weight,
	}, nil
}

// Aggregate computes the weighted-mean score, weighted population variance,
// consensus confidence, and verdict for one set of judge scores. scores
// must be supplied in configuration order; that order is preserved on the
// Individual field so output stays deterministic.
func (v *Validator) Aggregate(scores []domain.JudgeScore) domain.GradientResult {
	if len(scores) == 0 {
		return domain.GradientResult{Verdict: domain.VerdictFail}
	}

	ordered := make([]domain.JudgeScore, len(scores))
	copy(ordered, scores)

	var weightSum, scoreSum, confidenceSum float64
	for _, s := range ordered {
		weightSum += s.Weight
		scoreSum += s.Weight * s.Score
		confidenceSum += s.Weight * s.Confidence
	}
	if weightSum == 0 {
		weightSum = float64(len(ordered))
		for i := range ordered {
			ordered[i].Weight = 1
		}
		scoreSum, confidenceSum = 0, 0
		for _, s := range ordered {
			scoreSum += s.Score
			confidenceSum += s.Confidence
		}
	}

	finalScore := scoreSum / weightSum
	avgConfidence := confidenceSum / weightSum

	var varianceSum float64
	for _, s := range ordered {
		d := s.Score - finalScore
		varianceSum += s.Weight * d * d
	}
	variance := varianceSum / weightSum

	consensusConfidence := (1 - math.Min(variance, 1)) * avgConfidence

	verdict := v.verdictFor(finalScore, consensusConfidence)

	return domain.GradientResult{
		Score:      finalScore,
		Confidence: consensusConfidence,
		Reasoning:  combinedReasoning(ordered),
		Individual: ordered,
		Variance:   variance,
		Verdict:    verdict,
	}
}

func (v *Validator) verdictFor(finalScore, consensusConfidence float64) domain.IterationVerdict {
	if finalScore >= v.thresholds.PassScore && consensusConfidence >= v.thresholds.ConfidenceScore {
		return domain.VerdictPass
	}
	if finalScore >= v.thresholds.RefineScore {
		return domain.VerdictRefine
	}
	return domain.VerdictFail
}

func combinedReasoning(scores []domain.JudgeScore) string {
	ids := make([]string, 0, len(scores))
	for _, s := range scores {
		if s.Reasoning != "" {
			ids = append(ids, s.JudgeID+": "+s.Reasoning)
		}
	}
	sort.Strings(ids)
	out := ""
	for i, r := range ids {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}
