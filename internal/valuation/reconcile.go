package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mtlprog/rwaoracle/internal/domain"
	"github.com/mtlprog/rwaoracle/internal/metrics"
)

// LatestEntryReader returns the newest ledger entry for a token, or an error
// wrapping domain.ErrNotFound when the token has no history.
type LatestEntryReader interface {
	Latest(ctx context.Context, tokenID int64) (domain.PriceHistoryEntry, error)
}

// Reconciler treats the cached valuation as a materialized view of the
// ledger and rewrites it when the ledger holds a newer price.
type Reconciler struct {
	valuations *Service
	ledger     LatestEntryReader
}

// NewReconciler creates a Reconciler.
func NewReconciler(valuations *Service, ledger LatestEntryReader) *Reconciler {
	return &Reconciler{valuations: valuations, ledger: ledger}
}

// Reconcile updates the valuation of tokenID from its latest ledger entry if
// that entry is newer than the cached valuation. It reports whether the cache changed.
func (r *Reconciler) Reconcile(ctx context.Context, tokenID int64) (bool, error) {
	asset, err := r.valuations.Get(ctx, tokenID)
	if err != nil {
		return false, err
	}

	latest, err := r.ledger.Latest(ctx, tokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("reading latest ledger entry: %w", err)
	}

	if !latest.Timestamp.After(asset.CurrentPrice.UpdatedAt) {
		return false, nil
	}

	if _, err := r.valuations.overwrite(ctx, tokenID, domain.Valuation{
		Value:           latest.Price,
		ValueUSD:        latest.PriceUSD,
		UpdatedAt:       latest.Timestamp,
		ConfidenceScore: latest.ConfidenceScore,
	}); err != nil {
		return false, fmt.Errorf("rewriting valuation: %w", err)
	}

	metrics.ValuationReconciled()
	slog.Info("valuation reconciled from ledger",
		"tokenId", tokenID, "entryId", latest.ID, "price", latest.Price.String())
	return true, nil
}

// ReconcileAll reconciles every asset and returns the number of rewritten valuations.
// A failure on one asset is logged and does not stop the pass.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := r.valuations.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing assets: %w", err)
	}

	changed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		ok, err := r.Reconcile(ctx, id)
		if err != nil {
			slog.Warn("failed to reconcile valuation", "tokenId", id, "error", err)
			continue
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}
