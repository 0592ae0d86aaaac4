package source

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, scorer ScoringStrategy) *Service {
	t.Helper()
	svc := NewService(NewMemoryRepository(), scorer)
	svc.now = func() time.Time { return testNow }
	return svc
}

func create(t *testing.T, svc *Service, name string) domain.DataSource {
	t.Helper()
	ds, err := svc.Create(context.Background(), Input{Name: name, Kind: domain.DataSourceAPI})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return ds
}

func ptr[T any](v T) *T { return &v }

func TestCreateDefaults(t *testing.T) {
	svc := newTestService(t, nil)
	ds := create(t, svc, "zillow")

	if ds.ID == "" {
		t.Error("expected generated id")
	}
	if !ds.Enabled || ds.Reliability != 100 || ds.PriceAccuracy != 100 || ds.Weighting != 1 {
		t.Errorf("defaults = enabled %v reliability %v accuracy %v weighting %v",
			ds.Enabled, ds.Reliability, ds.PriceAccuracy, ds.Weighting)
	}
	if ds.Config.RefreshIntervalSeconds != DefaultRefreshIntervalSeconds {
		t.Errorf("RefreshIntervalSeconds = %d, want %d", ds.Config.RefreshIntervalSeconds, DefaultRefreshIntervalSeconds)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t, nil)
	create(t, svc, "zillow")

	tests := []struct {
		name string
		in   Input
		want error
	}{
		{"duplicate name", Input{Name: "zillow", Kind: domain.DataSourceAPI}, domain.ErrConflict},
		{"empty name", Input{Name: "  ", Kind: domain.DataSourceAPI}, domain.ErrInvalidInput},
		{"bad kind", Input{Name: "x", Kind: "ftp"}, domain.ErrInvalidInput},
		{"negative interval", Input{Name: "x", Kind: domain.DataSourceFile, Config: domain.DataSourceConfig{RefreshIntervalSeconds: -5}}, domain.ErrInvalidInput},
		{"weighting above one", Input{Name: "x", Kind: domain.DataSourceStream, Weighting: ptr(1.5)}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	a := create(t, svc, "a")
	create(t, svc, "b")

	updated, err := svc.Update(ctx, a.ID, Patch{Name: ptr("c"), Weighting: ptr(0.4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "c" || updated.Weighting != 0.4 || updated.Kind != domain.DataSourceAPI {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := svc.Update(ctx, a.ID, Patch{Name: ptr("b")}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("rename to existing err = %v, want ErrConflict", err)
	}
	if _, err := svc.Update(ctx, "missing", Patch{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}

	got, _ := svc.Get(ctx, a.ID)
	if got.Name != "c" {
		t.Errorf("failed update changed name to %q", got.Name)
	}
}

func TestRecordFetchOutcomeFailures(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	ds := create(t, svc, "feed")

	wantReliability := []float64{90, 80, 70}
	for i, want := range wantReliability {
		got, err := svc.RecordFetchOutcome(ctx, ds.ID, FetchOutcome{Success: false, LatencyMs: 1200, Error: "timeout"})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if got.Reliability != want {
			t.Errorf("after failure %d reliability = %v, want %v", i+1, got.Reliability, want)
		}
		if got.ErrorCount != i+1 {
			t.Errorf("after failure %d errorCount = %d, want %d", i+1, got.ErrorCount, i+1)
		}
		if got.LastError != "timeout" {
			t.Errorf("LastError = %q", got.LastError)
		}
	}

	got, err := svc.RecordFetchOutcome(ctx, ds.ID, FetchOutcome{Success: true, LatencyMs: 80})
	if err != nil {
		t.Fatalf("record success: %v", err)
	}
	if got.Reliability != 75 || got.ErrorCount != 0 || got.LastError != "" {
		t.Errorf("after success = reliability %v errorCount %d lastError %q", got.Reliability, got.ErrorCount, got.LastError)
	}
	if got.LatencyMs != 80 {
		t.Errorf("LatencyMs = %d, want 80", got.LatencyMs)
	}
	if got.LastFetchAt == nil || !got.LastFetchAt.Equal(testNow) {
		t.Errorf("LastFetchAt = %v, want %v", got.LastFetchAt, testNow)
	}
	wantNext := testNow.Add(DefaultRefreshIntervalSeconds * time.Second)
	if got.NextFetchAt == nil || !got.NextFetchAt.Equal(wantNext) {
		t.Errorf("NextFetchAt = %v, want %v", got.NextFetchAt, wantNext)
	}
}

func TestRecordFetchOutcomeClampsAtBounds(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	ds := create(t, svc, "feed")

	got, _ := svc.RecordFetchOutcome(ctx, ds.ID, FetchOutcome{Success: true})
	if got.Reliability != 100 {
		t.Errorf("reliability = %v, want capped at 100", got.Reliability)
	}
	for range 15 {
		got, _ = svc.RecordFetchOutcome(ctx, ds.ID, FetchOutcome{Success: false})
	}
	if got.Reliability != 0 {
		t.Errorf("reliability = %v, want floored at 0", got.Reliability)
	}
}

func TestScoresStayInBoundsUnderRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	scorers := map[string]ScoringStrategy{
		"fixed":       DefaultScorer,
		"large steps": FixedStepScorer{Reward: 37, Penalty: 55},
		"ema":         EMAScorer{Alpha: 0.3},
	}

	for name, scorer := range scorers {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(t, scorer)
			ctx := context.Background()
			ds := create(t, svc, "feed")

			for i := range 2000 {
				var (
					got domain.DataSource
					err error
				)
				if rng.IntN(3) == 0 {
					got, err = svc.SetPriceAccuracy(ctx, ds.ID, rng.Float64()*400-150)
				} else {
					got, err = svc.RecordFetchOutcome(ctx, ds.ID, FetchOutcome{Success: rng.IntN(2) == 0, LatencyMs: rng.Int64N(5000)})
				}
				if err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
				if got.Reliability < 0 || got.Reliability > 100 {
					t.Fatalf("step %d: reliability %v out of bounds", i, got.Reliability)
				}
				if got.PriceAccuracy < 0 || got.PriceAccuracy > 100 {
					t.Fatalf("step %d: accuracy %v out of bounds", i, got.PriceAccuracy)
				}
			}
		})
	}
}

func TestSetPriceAccuracyClamps(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	ds := create(t, svc, "feed")

	tests := []struct {
		in, want float64
	}{
		{-20, 0},
		{55.5, 55.5},
		{250, 100},
	}
	for _, tt := range tests {
		got, err := svc.SetPriceAccuracy(ctx, ds.ID, tt.in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.PriceAccuracy != tt.want {
			t.Errorf("SetPriceAccuracy(%v) = %v, want %v", tt.in, got.PriceAccuracy, tt.want)
		}
	}
}

func TestSelectOptimal(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	a := create(t, svc, "a")
	b := create(t, svc, "b")
	c := create(t, svc, "c")
	d := create(t, svc, "d")
	e := create(t, svc, "e")

	svc.SetPriceAccuracy(ctx, a.ID, 80)
	svc.SetPriceAccuracy(ctx, b.ID, 95)
	svc.SetPriceAccuracy(ctx, c.ID, 95)
	svc.Update(ctx, c.ID, Patch{Weighting: ptr(0.5)})
	// d drops below the reliability threshold.
	for range 4 {
		svc.RecordFetchOutcome(ctx, d.ID, FetchOutcome{Success: false})
	}
	svc.SetEnabled(ctx, e.ID, false)

	got, err := svc.SelectOptimal(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := make([]string, len(got))
	for i, ds := range got {
		names[i] = ds.Name
	}
	want := []string{"b", "c", "a"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}

	top, _ := svc.SelectOptimal(ctx, 1)
	if len(top) != 1 || top[0].Name != "b" {
		t.Errorf("top = %v", top)
	}
	if _, err := svc.SelectOptimal(ctx, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("limit 0 err = %v, want ErrInvalidInput", err)
	}
}

func TestDue(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	fetched := create(t, svc, "fetched")
	fresh := create(t, svc, "fresh")
	disabled := create(t, svc, "disabled")
	svc.SetEnabled(ctx, disabled.ID, false)

	// fetched becomes due at testNow+300s.
	svc.RecordFetchOutcome(ctx, fetched.ID, FetchOutcome{Success: true})

	due, err := svc.Due(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 || due[0].ID != fresh.ID {
		t.Fatalf("due = %v, want only never-fetched source", due)
	}

	svc.now = func() time.Time { return testNow.Add(10 * time.Minute) }
	due, _ = svc.Due(ctx, 10)
	if len(due) != 2 || due[0].ID != fresh.ID || due[1].ID != fetched.ID {
		t.Errorf("due after interval = %v, want fresh then fetched", due)
	}

	if _, err := svc.Due(ctx, -1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("negative limit err = %v, want ErrInvalidInput", err)
	}
}

func TestDelete(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	ds := create(t, svc, "feed")

	if err := svc.Delete(ctx, ds.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(ctx, ds.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get after delete err = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, ds.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
