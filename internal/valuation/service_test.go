package valuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(NewMemoryRepository())
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func register(t *testing.T, svc *Service, tokenID int64, value, valueUSD int64) {
	t.Helper()
	if _, err := svc.Register(context.Background(), tokenID, decimal.NewFromInt(value), decimal.NewFromInt(valueUSD)); err != nil {
		t.Fatalf("register %d: %v", tokenID, err)
	}
}

func TestRegisterAndGet(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, 1, 100, 100000)

	asset, err := svc.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !asset.CurrentPrice.Value.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Value = %s, want 100", asset.CurrentPrice.Value)
	}
	if !asset.CurrentPrice.ValueUSD.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("ValueUSD = %s, want 100000", asset.CurrentPrice.ValueUSD)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, 1, 100, 100000)

	_, err := svc.Register(context.Background(), 1, decimal.NewFromInt(1), decimal.NewFromInt(1))
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestRegisterInvalid(t *testing.T) {
	svc := newTestService(t)
	tests := []struct {
		name     string
		tokenID  int64
		value    int64
		valueUSD int64
	}{
		{"zero token", 0, 1, 1},
		{"negative value", 2, -1, 1},
		{"negative usd", 3, 1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.tokenID, decimal.NewFromInt(tt.value), decimal.NewFromInt(tt.valueUSD))
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), 42)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetValuation(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, 1, 100, 100000)

	conf := 80.0
	v, err := svc.SetValuation(context.Background(), 1, decimal.NewFromInt(50), decimal.NewFromInt(75000), &conf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Value.Equal(decimal.NewFromInt(50)) || !v.ValueUSD.Equal(decimal.NewFromInt(75000)) {
		t.Errorf("valuation = %s/%s, want 50/75000", v.Value, v.ValueUSD)
	}
	if v.ConfidenceScore == nil || *v.ConfidenceScore != 80 {
		t.Errorf("ConfidenceScore = %v, want 80", v.ConfidenceScore)
	}
}

func TestSetValuationErrors(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, 1, 100, 100000)
	bad := 101.0

	tests := []struct {
		name    string
		tokenID int64
		native  int64
		usd     int64
		conf    *float64
		want    error
	}{
		{"unknown token", 9, 1, 1, nil, domain.ErrNotFound},
		{"negative native", 1, -1, 1, nil, domain.ErrInvalidInput},
		{"negative usd", 1, 1, -1, nil, domain.ErrInvalidInput},
		{"confidence out of range", 1, 1, 1, &bad, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetValuation(context.Background(), tt.tokenID, decimal.NewFromInt(tt.native), decimal.NewFromInt(tt.usd), tt.conf)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestApplyAcceptedPredictionPreservesRate(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, 1, 100, 100000)

	v, err := svc.ApplyAcceptedPrediction(context.Background(), 1, decimal.NewFromInt(110), 95)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Value.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Value = %s, want 110", v.Value)
	}
	if !v.ValueUSD.Equal(decimal.NewFromInt(110000)) {
		t.Errorf("ValueUSD = %s, want 110000", v.ValueUSD)
	}
	rate, _ := v.ExchangeRate()
	if !rate.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("rate = %s, want 1000", rate)
	}
}

func TestApplyAcceptedPredictionIsDeterministic(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, 1, 3, 7)

	first, err := svc.ApplyAcceptedPrediction(context.Background(), 1, decimal.NewFromInt(9), 50)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := svc.ApplyAcceptedPrediction(context.Background(), 1, decimal.NewFromInt(9), 50)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !first.ValueUSD.Equal(second.ValueUSD) {
		t.Errorf("re-applying changed USD value: %s -> %s", first.ValueUSD, second.ValueUSD)
	}
}

func TestApplyAcceptedPredictionZeroValue(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, 1, 0, 500)

	_, err := svc.ApplyAcceptedPrediction(context.Background(), 1, decimal.NewFromInt(10), 90)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}

	asset, _ := svc.Get(context.Background(), 1)
	if !asset.CurrentPrice.ValueUSD.Equal(decimal.NewFromInt(500)) {
		t.Error("failed apply must not modify the valuation")
	}
}

func TestApplyAcceptedPredictionUnknownToken(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ApplyAcceptedPrediction(context.Background(), 5, decimal.NewFromInt(10), 90)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, 3, 1, 1)
	register(t, svc, 1, 1, 1)

	ids, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("ids = %v, want [1 3]", ids)
	}
}
