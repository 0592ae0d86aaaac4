package oracle

import (
	"context"
	"math"
	"testing"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

func TestPerformanceSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, 1, "100", "100000")

	a := f.submit(t, 1, "110", 90)
	b := f.submit(t, 1, "120", 60)
	in := validInput("130", 30)
	in.ModelVersion = "v2.0.0"
	if _, err := f.svc.Submit(ctx, 1, in); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.Accept(ctx, a.ID, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.svc.Reject(ctx, b.ID, "outlier"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	sum, err := f.svc.PerformanceSummary(ctx, domain.TimeRange{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Total != 3 || sum.Accepted != 1 || sum.Rejected != 1 || sum.Pending != 1 {
		t.Errorf("counts = %+v", sum.StatusCounts)
	}
	if sum.AverageConfidence != 60 {
		t.Errorf("AverageConfidence = %v, want 60", sum.AverageConfidence)
	}
	if sum.AcceptanceRate != 0.5 {
		t.Errorf("AcceptanceRate = %v, want 0.5", sum.AcceptanceRate)
	}
	if len(sum.ByModel) != 2 {
		t.Fatalf("ByModel = %d, want 2", len(sum.ByModel))
	}
	if sum.ByModel[0].ModelVersion != "v1.2.0" || sum.ByModel[0].Total != 2 {
		t.Errorf("first model = %+v", sum.ByModel[0])
	}
	if sum.ByModel[1].ModelVersion != "v2.0.0" || sum.ByModel[1].Pending != 1 {
		t.Errorf("second model = %+v", sum.ByModel[1])
	}
}

func TestPerformanceSummaryEmpty(t *testing.T) {
	f := newFixture(t)
	sum, err := f.svc.PerformanceSummary(context.Background(), domain.TimeRange{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Total != 0 || sum.AverageConfidence != 0 || sum.AcceptanceRate != 0 || len(sum.ByModel) != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
}

func TestFeatureImportanceSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, 1, "100", "100000")

	f.submit(t, 1, "110", 90)
	in := validInput("120", 70)
	in.FeatureImportance = []domain.FeatureImportance{
		{Feature: "location", Importance: 0.4, Direction: domain.DirectionNegative},
		{Feature: "rent", Importance: 0.9, Direction: domain.DirectionPositive},
	}
	if _, err := f.svc.Submit(ctx, 1, in); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, err := f.svc.FeatureImportanceSummary(ctx, domain.TimeRange{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Feature != "rent" {
		t.Errorf("first feature = %s, want rent", got[0].Feature)
	}

	loc := got[1]
	if loc.Feature != "location" || loc.Occurrences != 2 {
		t.Fatalf("second = %+v, want location x2", loc)
	}
	if math.Abs(loc.MeanImportance-0.5) > 1e-9 {
		t.Errorf("location MeanImportance = %v, want 0.5", loc.MeanImportance)
	}
	if loc.MeanDirection != 0 {
		t.Errorf("location MeanDirection = %v, want 0", loc.MeanDirection)
	}
	if got[2].Feature != "age" || got[2].MeanDirection != -1 {
		t.Errorf("third = %+v, want age with direction -1", got[2])
	}
}
