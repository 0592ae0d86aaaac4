package oracle

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// StatusCounts tallies predictions by lifecycle state.
type StatusCounts struct {
	Total             int     `json:"total"`
	Pending           int     `json:"pending"`
	Accepted          int     `json:"accepted"`
	Rejected          int     `json:"rejected"`
	AverageConfidence float64 `json:"averageConfidence"`
	AcceptanceRate    float64 `json:"acceptanceRate"` // accepted / (accepted + rejected), 0 when none resolved
}

// ModelPerformance is StatusCounts for one model version.
type ModelPerformance struct {
	ModelVersion string `json:"modelVersion"`
	StatusCounts
}

// PerformanceSummary describes oracle output over a time range.
type PerformanceSummary struct {
	StatusCounts
	ByModel []ModelPerformance `json:"byModel"`
}

// FeatureSummary is the averaged influence of one feature across predictions.
type FeatureSummary struct {
	Feature        string  `json:"feature"`
	MeanImportance float64 `json:"meanImportance"`
	MeanDirection  float64 `json:"meanDirection"` // in [-1, 1]
	Occurrences    int     `json:"occurrences"`
}

// PerformanceSummary counts predictions submitted in rng by status, overall
// and per model version.
func (s *Service) PerformanceSummary(ctx context.Context, rng domain.TimeRange) (PerformanceSummary, error) {
	if !rng.Valid() {
		return PerformanceSummary{}, fmt.Errorf("range start after end: %w", domain.ErrInvalidInput)
	}
	predictions, err := s.repo.ListRange(ctx, rng)
	if err != nil {
		return PerformanceSummary{}, fmt.Errorf("listing predictions: %w", err)
	}

	byModel := lo.GroupBy(predictions, func(p domain.Prediction) string { return p.ModelVersion })
	models := lo.MapToSlice(byModel, func(version string, group []domain.Prediction) ModelPerformance {
		return ModelPerformance{ModelVersion: version, StatusCounts: countStatuses(group)}
	})
	slices.SortFunc(models, func(a, b ModelPerformance) int {
		return cmp.Compare(a.ModelVersion, b.ModelVersion)
	})

	return PerformanceSummary{StatusCounts: countStatuses(predictions), ByModel: models}, nil
}

func countStatuses(predictions []domain.Prediction) StatusCounts {
	c := StatusCounts{Total: len(predictions)}
	for _, p := range predictions {
		switch p.Status {
		case domain.PredictionPending:
			c.Pending++
		case domain.PredictionAccepted:
			c.Accepted++
		case domain.PredictionRejected:
			c.Rejected++
		}
	}
	if c.Total > 0 {
		c.AverageConfidence = lo.SumBy(predictions, func(p domain.Prediction) float64 {
			return p.ConfidenceScore
		}) / float64(c.Total)
	}
	if resolved := c.Accepted + c.Rejected; resolved > 0 {
		c.AcceptanceRate = float64(c.Accepted) / float64(resolved)
	}
	return c
}

// FeatureImportanceSummary flattens the feature importance of every
// prediction submitted in rng and averages it per feature.
func (s *Service) FeatureImportanceSummary(ctx context.Context, rng domain.TimeRange) ([]FeatureSummary, error) {
	if !rng.Valid() {
		return nil, fmt.Errorf("range start after end: %w", domain.ErrInvalidInput)
	}
	predictions, err := s.repo.ListRange(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}

	features := lo.FlatMap(predictions, func(p domain.Prediction, _ int) []domain.FeatureImportance {
		return p.FeatureImportance
	})
	grouped := lo.GroupBy(features, func(f domain.FeatureImportance) string { return f.Feature })

	out := lo.MapToSlice(grouped, func(name string, group []domain.FeatureImportance) FeatureSummary {
		n := float64(len(group))
		return FeatureSummary{
			Feature:        name,
			MeanImportance: lo.SumBy(group, func(f domain.FeatureImportance) float64 { return f.Importance }) / n,
			MeanDirection:  lo.SumBy(group, func(f domain.FeatureImportance) float64 { return f.Direction.Sign() }) / n,
			Occurrences:    len(group),
		}
	})
	slices.SortFunc(out, func(a, b FeatureSummary) int {
		if c := cmp.Compare(b.MeanImportance, a.MeanImportance); c != 0 {
			return c
		}
		return cmp.Compare(a.Feature, b.Feature)
	})
	return out, nil
}
