// Package source is the registry of external price feeds and their
// reliability scores.
package source

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mtlprog/rwaoracle/internal/domain"
	"github.com/mtlprog/rwaoracle/internal/metrics"
)

const (
	// DefaultRefreshIntervalSeconds applies when a source is created without one.
	DefaultRefreshIntervalSeconds = 300
	// OptimalReliability is the minimum reliability for SelectOptimal.
	OptimalReliability = 70.0
)

// Input describes a new data source.
type Input struct {
	Name      string                  `json:"name"`
	Kind      domain.DataSourceKind   `json:"kind"`
	Config    domain.DataSourceConfig `json:"config"`
	Weighting *float64                `json:"weighting,omitempty"`
}

// Patch holds the fields Update may change. Nil fields are left as is.
type Patch struct {
	Name      *string                  `json:"name,omitempty"`
	Kind      *domain.DataSourceKind   `json:"kind,omitempty"`
	Config    *domain.DataSourceConfig `json:"config,omitempty"`
	Weighting *float64                 `json:"weighting,omitempty"`
}

// FetchOutcome is the result of one fetch reported by the scheduler.
type FetchOutcome struct {
	Success   bool   `json:"success"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Service is the Data Source Registry and Reliability Scorer.
type Service struct {
	repo   Repository
	scorer ScoringStrategy
	now    func() time.Time
}

// NewService creates a new registry. A nil scorer uses DefaultScorer.
func NewService(repo Repository, scorer ScoringStrategy) *Service {
	if scorer == nil {
		scorer = DefaultScorer
	}
	return &Service{repo: repo, scorer: scorer, now: func() time.Time { return time.Now().UTC() }}
}

// Create registers a new enabled source with full reliability and accuracy.
func (s *Service) Create(ctx context.Context, in Input) (domain.DataSource, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return domain.DataSource{}, fmt.Errorf("name is required: %w", domain.ErrInvalidInput)
	}
	if in.Config.RefreshIntervalSeconds == 0 {
		in.Config.RefreshIntervalSeconds = DefaultRefreshIntervalSeconds
	}
	weighting := 1.0
	if in.Weighting != nil {
		weighting = *in.Weighting
	}

	now := s.now()
	ds := domain.DataSource{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Kind:          in.Kind,
		Config:        in.Config,
		Enabled:       true,
		Reliability:   domain.MaxScore,
		PriceAccuracy: domain.MaxScore,
		Weighting:     weighting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := validateSource(ds); err != nil {
		return domain.DataSource{}, err
	}

	created, err := s.repo.Create(ctx, ds)
	if err != nil {
		return domain.DataSource{}, err
	}
	slog.Info("data source created", "id", created.ID, "name", created.Name, "kind", created.Kind)
	return created, nil
}

// Update applies a partial change to a source's descriptive fields.
func (s *Service) Update(ctx context.Context, id string, p Patch) (domain.DataSource, error) {
	return s.repo.Mutate(ctx, id, func(ds *domain.DataSource) error {
		if p.Name != nil {
			ds.Name = strings.TrimSpace(*p.Name)
		}
		if p.Kind != nil {
			ds.Kind = *p.Kind
		}
		if p.Config != nil {
			ds.Config = *p.Config
		}
		if p.Weighting != nil {
			ds.Weighting = *p.Weighting
		}
		ds.UpdatedAt = s.now()
		return validateSource(*ds)
	})
}

// SetEnabled turns polling of a source on or off.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (domain.DataSource, error) {
	ds, err := s.repo.Mutate(ctx, id, func(ds *domain.DataSource) error {
		ds.Enabled = enabled
		ds.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.DataSource{}, err
	}
	slog.Info("data source toggled", "id", id, "name", ds.Name, "enabled", enabled)
	return ds, nil
}

// Get returns a source by id.
func (s *Service) Get(ctx context.Context, id string) (domain.DataSource, error) {
	return s.repo.Get(ctx, id)
}

// List returns every source ordered by name.
func (s *Service) List(ctx context.Context) ([]domain.DataSource, error) {
	return s.repo.List(ctx)
}

// Delete removes a source.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("data source deleted", "id", id)
	return nil
}

// RecordFetchOutcome folds one fetch result into the source's reliability
// and schedules its next fetch.
func (s *Service) RecordFetchOutcome(ctx context.Context, id string, out FetchOutcome) (domain.DataSource, error) {
	if out.LatencyMs < 0 {
		return domain.DataSource{}, fmt.Errorf("latency must be non-negative: %w", domain.ErrInvalidInput)
	}

	ds, err := s.repo.Mutate(ctx, id, func(ds *domain.DataSource) error {
		now := s.now()
		next := now.Add(ds.Config.RefreshInterval())

		ds.Reliability = domain.ClampScore(s.scorer.Next(ds.Reliability, out.Success))
		if out.Success {
			ds.ErrorCount = 0
			ds.LastError = ""
		} else {
			ds.ErrorCount++
			ds.LastError = out.Error
		}
		ds.LastFetchAt = &now
		ds.NextFetchAt = &next
		ds.LatencyMs = out.LatencyMs
		ds.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.DataSource{}, err
	}

	metrics.FetchOutcome(ds.Name, out.Success, ds.Reliability)
	if !out.Success {
		slog.Warn("data source fetch failed", "id", id, "name", ds.Name,
			"errorCount", ds.ErrorCount, "reliability", ds.Reliability, "error", out.Error)
	}
	return ds, nil
}

// SetPriceAccuracy records the source's accuracy, clamped to [0,100].
func (s *Service) SetPriceAccuracy(ctx context.Context, id string, accuracy float64) (domain.DataSource, error) {
	return s.repo.Mutate(ctx, id, func(ds *domain.DataSource) error {
		ds.PriceAccuracy = domain.ClampScore(accuracy)
		ds.UpdatedAt = s.now()
		return nil
	})
}

// SelectOptimal returns up to limit enabled sources with reliability of at
// least OptimalReliability, most accurate first, then heaviest weighting.
func (s *Service) SelectOptimal(ctx context.Context, limit int) ([]domain.DataSource, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d: %w", limit, domain.ErrInvalidInput)
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	eligible := lo.Filter(all, func(ds domain.DataSource, _ int) bool {
		return ds.Enabled && ds.Reliability >= OptimalReliability
	})
	slices.SortFunc(eligible, func(a, b domain.DataSource) int {
		if c := cmp.Compare(b.PriceAccuracy, a.PriceAccuracy); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Weighting, a.Weighting); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return lo.Subset(eligible, 0, uint(limit)), nil
}

// Due returns up to limit enabled sources whose next fetch time has passed,
// soonest first. Sources never fetched come first.
func (s *Service) Due(ctx context.Context, limit int) ([]domain.DataSource, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d: %w", limit, domain.ErrInvalidInput)
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	due := lo.Filter(all, func(ds domain.DataSource, _ int) bool {
		return ds.Enabled && (ds.NextFetchAt == nil || !ds.NextFetchAt.After(now))
	})
	slices.SortFunc(due, func(a, b domain.DataSource) int {
		switch {
		case a.NextFetchAt == nil && b.NextFetchAt == nil:
			return cmp.Compare(a.Name, b.Name)
		case a.NextFetchAt == nil:
			return -1
		case b.NextFetchAt == nil:
			return 1
		}
		if c := a.NextFetchAt.Compare(*b.NextFetchAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return lo.Subset(due, 0, uint(limit)), nil
}

func validateSource(ds domain.DataSource) error {
	if ds.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrInvalidInput)
	}
	if !ds.Kind.Valid() {
		return fmt.Errorf("unknown source kind %q: %w", ds.Kind, domain.ErrInvalidInput)
	}
	if ds.Config.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("refresh interval must be positive: %w", domain.ErrInvalidInput)
	}
	if ds.Weighting < 0 || ds.Weighting > 1 {
		return fmt.Errorf("weighting %v outside [0,1]: %w", ds.Weighting, domain.ErrInvalidInput)
	}
	return nil
}
