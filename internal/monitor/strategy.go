// Package monitor detects unauthorized lock access and runs the periodic
// monitoring scheduler.
package monitor

import (
	"math/rand"

	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// DetectionStrategy decides whether subjectID's activity on a lock looks
// unauthorized. Implementations only need to fill Detected and Confidence;
// the Detector stamps the lock, subject and time.
type DetectionStrategy interface {
	Evaluate(history []models.HistoryEntry, lock models.Lock, subjectID string) models.DetectionResult
}

// StrategyFunc adapts a plain function to DetectionStrategy.
type StrategyFunc func(history []models.HistoryEntry, lock models.Lock, subjectID string) models.DetectionResult

// Evaluate calls f.
func (f StrategyFunc) Evaluate(history []models.HistoryEntry, lock models.Lock, subjectID string) models.DetectionResult {
	return f(history, lock, subjectID)
}

// RandomStrategy is the placeholder model: a uniform draw above 0.7 counts as
// a detection, with an independent uniform confidence in [0,100).
type RandomStrategy struct {
	// Float64 returns a value in [0,1). Defaults to math/rand/v2.
	Float64 func() float64
}

// NewRandomStrategy returns a RandomStrategy backed by the global generator.
func NewRandomStrategy() *RandomStrategy {
	return &RandomStrategy{Float64: rand.Float64}
}

// Evaluate ignores its inputs and draws.
func (s *RandomStrategy) Evaluate(_ []models.HistoryEntry, _ models.Lock, _ string) models.DetectionResult {
	draw := s.Float64
	if draw == nil {
		draw = rand.Float64
	}
	return models.DetectionResult{
		Detected:   draw() > 0.7,
		Confidence: draw() * 100,
	}
}
