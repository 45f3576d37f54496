package domain

import "time"

// ErrorSignature classifies the failure a Cortex Pattern was learned from.
type ErrorSignature struct {
	Type              string
	MessageNormalized string
}

// Solution is the remembered fix for an ErrorSignature.
type Solution struct {
	Description string
	CodeDiff    *string
}

// CortexPattern is one entry of the weighted semantic pattern memory.
// Embedding dimension is fixed per deployment; the core treats it as an
// opaque vector of floats and never interprets its dimensions.
type CortexPattern struct {
	PatternID      ID
	ErrorSignature ErrorSignature
	Solution       Solution
	Embedding      []float32
	Weight         float64
	SuccessScore   float64
	ExecutionCount int
	CreatedAt      time.Time
	LastUsed       time.Time
	Tags           []string
}

// NewCortexPattern creates a fresh pattern with the defaults assigned on
// first store: weight=1, success_score=0.5.
func NewCortexPattern(sig ErrorSignature, sol Solution, embedding []float32, tags []string) *CortexPattern {
	now := time.Now()
	return &CortexPattern{
		PatternID:      NewID(),
		ErrorSignature: sig,
		Solution:       sol,
		Embedding:      embedding,
		Weight:         1,
		SuccessScore:   0.5,
		CreatedAt:      now,
		LastUsed:       now,
		Tags:           tags,
	}
}
