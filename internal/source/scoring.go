package source

import (
	"fmt"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// ScoringStrategy computes a source's next reliability from its current
// score and the outcome of one fetch. Results are clamped by the caller.
type ScoringStrategy interface {
	Next(current float64, success bool) float64
}

// FixedStepScorer adds Reward on success and subtracts Penalty on failure.
type FixedStepScorer struct {
	Reward  float64
	Penalty float64
}

// DefaultScorer is the scoring used when none is configured.
var DefaultScorer = FixedStepScorer{Reward: 5, Penalty: 10}

func (s FixedStepScorer) Next(current float64, success bool) float64 {
	if success {
		return current + s.Reward
	}
	return current - s.Penalty
}

// EMAScorer moves reliability toward 100 on success and 0 on failure,
// weighting the newest outcome by Alpha.
type EMAScorer struct {
	Alpha float64
}

func (s EMAScorer) Next(current float64, success bool) float64 {
	target := domain.MinScore
	if success {
		target = domain.MaxScore
	}
	return s.Alpha*target + (1-s.Alpha)*current
}

// NewScorer builds a strategy by name: "fixed" or "ema".
func NewScorer(name string, reward, penalty, alpha float64) (ScoringStrategy, error) {
	switch name {
	case "", "fixed":
		if reward < 0 || penalty < 0 {
			return nil, fmt.Errorf("reward and penalty must be non-negative: %w", domain.ErrInvalidInput)
		}
		return FixedStepScorer{Reward: reward, Penalty: penalty}, nil
	case "ema":
		if alpha <= 0 || alpha > 1 {
			return nil, fmt.Errorf("ema alpha %v outside (0,1]: %w", alpha, domain.ErrInvalidInput)
		}
		return EMAScorer{Alpha: alpha}, nil
	default:
		return nil, fmt.Errorf("unknown scoring strategy %q: %w", name, domain.ErrInvalidInput)
	}
}
