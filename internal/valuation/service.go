// Package valuation owns the authoritative current price of each asset.
// The stored valuation is a cache of the ledger; see Reconciler.
package valuation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// Service is the Asset Valuation Store.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new valuation Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates an asset with its initial valuation.
func (s *Service) Register(ctx context.Context, tokenID int64, value, valueUSD decimal.Decimal) (domain.Asset, error) {
	if tokenID <= 0 {
		return domain.Asset{}, fmt.Errorf("token id must be positive: %w", domain.ErrInvalidInput)
	}
	if value.IsNegative() || valueUSD.IsNegative() {
		return domain.Asset{}, fmt.Errorf("prices must be non-negative: %w", domain.ErrInvalidInput)
	}

	now := s.now()
	asset, err := s.repo.Create(ctx, domain.Asset{
		TokenID:      tokenID,
		CurrentPrice: domain.Valuation{Value: value, ValueUSD: valueUSD, UpdatedAt: now},
		CreatedAt:    now,
	})
	if err != nil {
		return domain.Asset{}, err
	}
	slog.Info("asset registered", "tokenId", tokenID, "value", value.String(), "valueUsd", valueUSD.String())
	return asset, nil
}

// Get returns the asset with its current valuation.
func (s *Service) Get(ctx context.Context, tokenID int64) (domain.Asset, error) {
	return s.repo.Get(ctx, tokenID)
}

// List returns the token ids of all known assets.
func (s *Service) List(ctx context.Context) ([]int64, error) {
	return s.repo.ListTokenIDs(ctx)
}

// SetValuation sets both native and USD prices directly. No rate is inferred.
func (s *Service) SetValuation(ctx context.Context, tokenID int64, native, usd decimal.Decimal, confidence *float64) (domain.Valuation, error) {
	if native.IsNegative() || usd.IsNegative() {
		return domain.Valuation{}, fmt.Errorf("prices must be non-negative: %w", domain.ErrInvalidInput)
	}
	if confidence != nil && !domain.ValidScore(*confidence) {
		return domain.Valuation{}, fmt.Errorf("confidence score %v outside [0,100]: %w", *confidence, domain.ErrInvalidInput)
	}

	asset, err := s.repo.UpdateValuation(ctx, tokenID, domain.Valuation{
		Value:           native,
		ValueUSD:        usd,
		UpdatedAt:       s.now(),
		ConfidenceScore: confidence,
	})
	if err != nil {
		return domain.Valuation{}, err
	}
	return asset.CurrentPrice, nil
}

// ApplyAcceptedPrediction sets the native price and derives the USD price from
// the previously recorded exchange rate. It is a deterministic set, so
// re-running it with the same inputs yields the same valuation.
func (s *Service) ApplyAcceptedPrediction(ctx context.Context, tokenID int64, native decimal.Decimal, confidence float64) (domain.Valuation, error) {
	asset, err := s.repo.Get(ctx, tokenID)
	if err != nil {
		return domain.Valuation{}, err
	}

	rate, err := asset.CurrentPrice.ExchangeRate()
	if err != nil {
		return domain.Valuation{}, fmt.Errorf("asset %d: %w", tokenID, err)
	}

	updated, err := s.repo.UpdateValuation(ctx, tokenID, domain.Valuation{
		Value:           native,
		ValueUSD:        native.Mul(rate),
		UpdatedAt:       s.now(),
		ConfidenceScore: &confidence,
	})
	if err != nil {
		return domain.Valuation{}, err
	}
	return updated.CurrentPrice, nil
}

// overwrite replaces the cached valuation verbatim. Used by the Reconciler.
func (s *Service) overwrite(ctx context.Context, tokenID int64, v domain.Valuation) (domain.Valuation, error) {
	asset, err := s.repo.UpdateValuation(ctx, tokenID, v)
	if err != nil {
		return domain.Valuation{}, err
	}
	return asset.CurrentPrice, nil
}
