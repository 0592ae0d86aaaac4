package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/rwaoracle/internal/domain"
	"github.com/mtlprog/rwaoracle/internal/testutil"
)

func TestPgRepositoryLifecycle(t *testing.T) {
	pool := testutil.SetupPool(t, "assets", "predictions")
	repo := NewPgRepository(pool)
	ctx := context.Background()

	if _, err := pool.Exec(ctx,
		`INSERT INTO assets (token_id, value, value_usd, price_updated_at) VALUES (1, 100, 100000, NOW())`); err != nil {
		t.Fatalf("seeding asset: %v", err)
	}

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := domain.Prediction{
		ID:              uuid.NewString(),
		TokenID:         1,
		Timestamp:       at,
		PredictedPrice:  decimal.NewFromInt(110),
		ConfidenceScore: 0.85,
		SourcesUsed:     []string{"zillow"},
		ModelVersion:    "v1",
		FeatureImportance: []domain.FeatureImportance{
			{Feature: "rent", Importance: 0.6, Direction: domain.DirectionPositive},
		},
		PerformanceMetrics: map[string]float64{"mae": 1.5},
		Status:             domain.PredictionPending,
	}
	if _, err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(got.FeatureImportance) != 1 || got.PerformanceMetrics["mae"] != 1.5 {
		t.Errorf("Get() = %+v, want stored features and metrics", got)
	}

	resolved, err := repo.Resolve(ctx, p.ID, Resolution{
		Status:     domain.PredictionAccepted,
		ChainRef:   &domain.ChainRef{TxHash: "0xabc", BlockNumber: 7, Timestamp: at},
		ResolvedAt: at.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if resolved.Status != domain.PredictionAccepted || resolved.ChainRef == nil || resolved.ChainRef.TxHash != "0xabc" {
		t.Errorf("Resolve() = %+v, want accepted with chain reference", resolved)
	}

	if _, err := repo.Resolve(ctx, p.ID, Resolution{Status: domain.PredictionRejected, ResolvedAt: at}); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second Resolve() error = %v, want ErrInvalidState", err)
	}
	if _, err := repo.Resolve(ctx, "missing", Resolution{Status: domain.PredictionRejected, ResolvedAt: at}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrNotFound", err)
	}

	pending := domain.PredictionPending
	list, err := repo.ListByToken(ctx, 1, 10, &pending)
	if err != nil {
		t.Fatalf("ListByToken() error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListByToken(pending) = %d items, want 0", len(list))
	}
}
