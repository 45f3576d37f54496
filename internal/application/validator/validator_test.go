package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/domain"
)

func TestParseJudgeOutput_Valid(t *testing.T) {
	score, err := ParseJudgeOutput("judge-1", 1.0, `{"score":0.8,"confidence":0.9,"reasoning":"solid"}`)
	require.NoError(t, err)
	assert.Equal(t, 0.8, score.Score)
	assert.Equal(t, 0.9, score.Confidence)
}

func TestParseJudgeOutput_Malformed(t *testing.T) {
	_, err := ParseJudgeOutput("judge-1", 1.0, `not json`)
	require.Error(t, err)
	assert.Equal(t, domain.ErrJudgeUnparseable, domain.CodeOf(err))
}

func TestParseJudgeOutput_OutOfRange(t *testing.T) {
	_, err := ParseJudgeOutput("judge-1", 1.0, `{"score":1.5,"confidence":0.9,"reasoning":""}`)
	require.Error(t, err)
	assert.Equal(t, domain.ErrJudgeUnparseable, domain.CodeOf(err))
}

func TestAggregate_Pass(t *testing.T) {
	v := New(DefaultThresholds())
	result := v.Aggregate([]domain.JudgeScore{
		{JudgeID: "a", Score: 0.9, Confidence: 0.9, Weight: 1},
		{JudgeID: "b", Score: 0.85, Confidence: 0.95, Weight: 1},
	})
	assert.Equal(t, domain.VerdictPass, result.Verdict)
	assert.InDelta(t, 0.875, result.Score, 0.001)
}

func TestAggregate_Refine(t *testing.T) {
	v := New(DefaultThresholds())
	result := v.Aggregate([]domain.JudgeScore{
		{JudgeID: "a", Score: 0.5, Confidence: 0.9, Weight: 1},
	})
	assert.Equal(t, domain.VerdictRefine, result.Verdict)
}

func TestAggregate_Fail(t *testing.T) {
	v := New(DefaultThresholds())
	result := v.Aggregate([]domain.JudgeScore{
		{JudgeID: "a", Score: 0.1, Confidence: 0.9, Weight: 1},
	})
	assert.Equal(t, domain.VerdictFail, result.Verdict)
}

func TestAggregate_LowConfidenceFallsBackToRefine(t *testing.T) {
	v := New(DefaultThresholds())
	result := v.Aggregate([]domain.JudgeScore{
		{JudgeID: "a", Score: 0.95, Confidence: 0.1, Weight: 1},
	})
	assert.Equal(t, domain.VerdictRefine, result.Verdict)
}

func TestAggregate_WeightedMean(t *testing.T) {
	v := New(DefaultThresholds())
	result := v.Aggregate([]domain.JudgeScore{
		{JudgeID: "a", Score: 1.0, Confidence: 1.0, Weight: 3},
		{JudgeID: "b", Score: 0.0, Confidence: 1.0, Weight: 1},
	})
	assert.InDelta(t, 0.75, result.Score, 0.001)
}

func TestAggregate_Deterministic(t *testing.T) {
	v := New(DefaultThresholds())
	scores := []domain.JudgeScore{
		{JudgeID: "a", Score: 0.6, Confidence: 0.7, Weight: 1},
		{JudgeID: "b", Score: 0.8, Confidence: 0.6, Weight: 2},
	}
	r1 := v.Aggregate(scores)
	r2 := v.Aggregate(scores)
	assert.Equal(t, r1, r2)
}
