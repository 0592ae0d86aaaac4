package worker

import (
	"context"
	"log/slog"
	"time"
)

// ValuationReconciler rewrites cached valuations from the ledger.
type ValuationReconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// ReconcileWorker periodically brings every cached valuation in line with
// its newest ledger entry.
type ReconcileWorker struct {
	reconciler ValuationReconciler
	interval   time.Duration
}

// NewReconcileWorker creates a new ReconcileWorker.
func NewReconcileWorker(reconciler ValuationReconciler, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		reconciler: reconciler,
		interval:   interval,
	}
}

func (w *ReconcileWorker) runOnce(ctx context.Context) {
	changed, err := w.reconciler.ReconcileAll(ctx)
	if err != nil {
		slog.Error("ReconcileWorker: pass failed", "error", err)
		return
	}
	slog.Info("ReconcileWorker: pass completed", "changed", changed)
}

// Run starts the reconcile loop. It blocks until the context is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context) {
	slog.Info("ReconcileWorker: starting", "interval", w.interval)

	// Reconcile immediately on startup
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ReconcileWorker: shutting down")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}
