// Package oracle runs the prediction pipeline: AI valuations are submitted
// as pending predictions and promoted into the valuation store and ledger
// on acceptance.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/rwaoracle/internal/domain"
	"github.com/mtlprog/rwaoracle/internal/metrics"
)

// LedgerSourceName is the source name recorded on ledger entries produced
// by accepted predictions.
const LedgerSourceName = "ai-oracle"

// AssetLookup resolves an asset by token id.
type AssetLookup interface {
	Get(ctx context.Context, tokenID int64) (domain.Asset, error)
}

// Valuator applies an accepted prediction to the current valuation.
type Valuator interface {
	ApplyAcceptedPrediction(ctx context.Context, tokenID int64, native decimal.Decimal, confidence float64) (domain.Valuation, error)
}

// LedgerAppender records realized prices, at most once per prediction.
type LedgerAppender interface {
	AppendOnce(ctx context.Context, tokenID int64, entry domain.PriceHistoryEntry) (domain.PriceHistoryEntry, error)
}

// PredictionInput is the oracle-supplied part of a prediction.
type PredictionInput struct {
	PredictedPrice     decimal.Decimal            `json:"predictedPrice"`
	ConfidenceScore    float64                    `json:"confidenceScore"`
	SourcesUsed        []string                   `json:"sourcesUsed"`
	ModelVersion       string                     `json:"modelVersion"`
	Inputs             json.RawMessage            `json:"inputs,omitempty"`
	FeatureImportance  []domain.FeatureImportance `json:"featureImportance"`
	PerformanceMetrics map[string]float64         `json:"performanceMetrics,omitempty"`
}

// AcceptResult is everything written by a successful Accept.
type AcceptResult struct {
	Prediction  domain.Prediction        `json:"prediction"`
	Valuation   domain.Valuation         `json:"valuation"`
	LedgerEntry domain.PriceHistoryEntry `json:"ledgerEntry"`
}

// Service is the Oracle Prediction Pipeline.
type Service struct {
	repo       Repository
	assets     AssetLookup
	valuations Valuator
	ledger     LedgerAppender
	now        func() time.Time
}

// NewService creates a new oracle Service.
func NewService(repo Repository, assets AssetLookup, valuations Valuator, ledger LedgerAppender) *Service {
	return &Service{
		repo:       repo,
		assets:     assets,
		valuations: valuations,
		ledger:     ledger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a pending prediction for an existing asset.
func (s *Service) Submit(ctx context.Context, tokenID int64, in PredictionInput) (domain.Prediction, error) {
	if err := validateInput(in); err != nil {
		return domain.Prediction{}, err
	}
	if _, err := s.assets.Get(ctx, tokenID); err != nil {
		return domain.Prediction{}, fmt.Errorf("submitting prediction: %w", err)
	}

	p := domain.Prediction{
		ID:                 uuid.NewString(),
		TokenID:            tokenID,
		Timestamp:          s.now(),
		PredictedPrice:     in.PredictedPrice,
		ConfidenceScore:    in.ConfidenceScore,
		SourcesUsed:        lo.Uniq(in.SourcesUsed),
		ModelVersion:       in.ModelVersion,
		Inputs:             in.Inputs,
		FeatureImportance:  in.FeatureImportance,
		PerformanceMetrics: in.PerformanceMetrics,
		Status:             domain.PredictionPending,
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return domain.Prediction{}, err
	}

	metrics.PredictionSubmitted(created.ModelVersion)
	slog.Info("prediction submitted", "id", created.ID, "tokenId", tokenID,
		"price", created.PredictedPrice.String(), "confidence", created.ConfidenceScore, "model", created.ModelVersion)
	return created, nil
}

// Accept promotes a pending prediction. The valuation update, ledger append
// and status change run in that order; a failure in any of them returns an
// *AcceptError naming the step. Calling Accept again after such a failure
// completes the remaining steps without duplicating the ledger entry.
func (s *Service) Accept(ctx context.Context, id string, chainRef *domain.ChainRef) (AcceptResult, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return AcceptResult{}, err
	}
	if p.Status != domain.PredictionPending {
		return AcceptResult{}, fmt.Errorf("prediction %s is %s: %w", id, p.Status, domain.ErrInvalidState)
	}

	acceptedAt := s.now()
	if acceptedAt.Before(p.Timestamp) {
		acceptedAt = p.Timestamp
	}

	valuation, err := s.valuations.ApplyAcceptedPrediction(ctx, p.TokenID, p.PredictedPrice, p.ConfidenceScore)
	if err != nil {
		return AcceptResult{}, s.acceptFailed(StepValuation, p, err)
	}

	confidence := p.ConfidenceScore
	entry, err := s.ledger.AppendOnce(ctx, p.TokenID, domain.PriceHistoryEntry{
		Price:     p.PredictedPrice,
		PriceUSD:  valuation.ValueUSD,
		Timestamp: acceptedAt,
		Source: domain.PriceSource{
			Kind:         domain.SourceKindOracle,
			SourceName:   LedgerSourceName,
			ModelVersion: p.ModelVersion,
			PredictionID: p.ID,
		},
		ConfidenceScore: &confidence,
		Factors:         factorsFrom(p.FeatureImportance),
		ChainRef:        chainRef,
	})
	if err != nil {
		return AcceptResult{}, s.acceptFailed(StepLedger, p, err)
	}

	accepted, err := s.repo.Resolve(ctx, id, Resolution{
		Status:     domain.PredictionAccepted,
		ChainRef:   chainRef,
		ResolvedAt: acceptedAt,
	})
	if err != nil {
		return AcceptResult{}, s.acceptFailed(StepStatus, p, err)
	}

	metrics.PredictionResolved(string(domain.PredictionAccepted))
	slog.Info("prediction accepted", "id", id, "tokenId", p.TokenID,
		"value", valuation.Value.String(), "valueUsd", valuation.ValueUSD.String(), "ledgerEntry", entry.ID)
	return AcceptResult{Prediction: accepted, Valuation: valuation, LedgerEntry: entry}, nil
}

func (s *Service) acceptFailed(step AcceptStep, p domain.Prediction, err error) error {
	acceptErr := &AcceptError{Step: step, PredictionID: p.ID, Err: err}
	if acceptErr.Partial() {
		metrics.AcceptFailed(string(step))
	}
	slog.Warn("prediction accept failed", "id", p.ID, "tokenId", p.TokenID, "step", step, "error", err)
	return acceptErr
}

// Reject moves a pending prediction to rejected with an optional reason.
func (s *Service) Reject(ctx context.Context, id, reason string) (domain.Prediction, error) {
	rejected, err := s.repo.Resolve(ctx, id, Resolution{
		Status:          domain.PredictionRejected,
		RejectionReason: reason,
		ResolvedAt:      s.now(),
	})
	if err != nil {
		return domain.Prediction{}, err
	}
	metrics.PredictionResolved(string(domain.PredictionRejected))
	slog.Info("prediction rejected", "id", id, "tokenId", rejected.TokenID, "reason", reason)
	return rejected, nil
}

// Get returns a prediction by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Prediction, error) {
	return s.repo.Get(ctx, id)
}

// ListByToken returns up to limit predictions for tokenID, newest first.
func (s *Service) ListByToken(ctx context.Context, tokenID int64, limit int, status *domain.PredictionStatus) ([]domain.Prediction, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d: %w", limit, domain.ErrInvalidInput)
	}
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", *status, domain.ErrInvalidInput)
	}
	return s.repo.ListByToken(ctx, tokenID, limit, status)
}

func validateInput(in PredictionInput) error {
	if !in.PredictedPrice.IsPositive() {
		return fmt.Errorf("predicted price must be positive: %w", domain.ErrInvalidInput)
	}
	if !domain.ValidScore(in.ConfidenceScore) {
		return fmt.Errorf("confidence score %v outside [0,100]: %w", in.ConfidenceScore, domain.ErrInvalidInput)
	}
	if in.ModelVersion == "" {
		return fmt.Errorf("model version is required: %w", domain.ErrInvalidInput)
	}
	for _, f := range in.FeatureImportance {
		if f.Feature == "" {
			return fmt.Errorf("feature name is required: %w", domain.ErrInvalidInput)
		}
		if f.Importance < 0 {
			return fmt.Errorf("feature %s has negative importance: %w", f.Feature, domain.ErrInvalidInput)
		}
		if !f.Direction.Valid() {
			return fmt.Errorf("feature %s has unknown direction %q: %w", f.Feature, f.Direction, domain.ErrInvalidInput)
		}
	}
	if len(in.Inputs) > 0 && !json.Valid(in.Inputs) {
		return fmt.Errorf("inputs are not valid JSON: %w", domain.ErrInvalidInput)
	}
	return nil
}

func factorsFrom(features []domain.FeatureImportance) []domain.PriceFactor {
	return lo.Map(features, func(f domain.FeatureImportance, _ int) domain.PriceFactor {
		return domain.PriceFactor{Name: f.Feature, Weight: f.Importance, Impact: f.Direction}
	})
}
