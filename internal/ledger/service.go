// Package ledger is the append-only price history of every asset.
package ledger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/rwaoracle/internal/domain"
	"github.com/mtlprog/rwaoracle/internal/metrics"
	"github.com/mtlprog/rwaoracle/internal/stats"
)

// DefaultQueryLimit is the page size transports use when the caller gives none.
const DefaultQueryLimit = 100

// AssetLookup resolves an asset by token id.
type AssetLookup interface {
	Get(ctx context.Context, tokenID int64) (domain.Asset, error)
}

// Bucket is one calendar-aligned aggregate of ledger prices.
type Bucket struct {
	BucketKey   string          `json:"bucketKey"`
	AvgPrice    decimal.Decimal `json:"avgPrice"`
	MinPrice    decimal.Decimal `json:"minPrice"`
	MaxPrice    decimal.Decimal `json:"maxPrice"`
	AvgPriceUSD decimal.Decimal `json:"avgPriceUsd"`
	Count       int             `json:"count"`
	Timestamp   time.Time       `json:"timestamp"` // bucket start
}

// SourceShare is the share of a token's entries that came from one source kind.
type SourceShare struct {
	Kind       domain.SourceKind `json:"kind"`
	Count      int               `json:"count"`
	Percentage float64           `json:"percentage"`
}

// Service is the Price History Ledger.
type Service struct {
	repo   Repository
	assets AssetLookup
	now    func() time.Time
}

// NewService creates a new ledger Service.
func NewService(repo Repository, assets AssetLookup) *Service {
	return &Service{repo: repo, assets: assets, now: func() time.Time { return time.Now().UTC() }}
}

// Append validates and persists a new immutable entry for tokenID.
// A zero Timestamp is replaced with the server time.
func (s *Service) Append(ctx context.Context, tokenID int64, entry domain.PriceHistoryEntry) (domain.PriceHistoryEntry, error) {
	if err := validateEntry(entry); err != nil {
		return domain.PriceHistoryEntry{}, err
	}
	if _, err := s.assets.Get(ctx, tokenID); err != nil {
		return domain.PriceHistoryEntry{}, fmt.Errorf("appending to ledger: %w", err)
	}

	now := s.now()
	entry.ID = uuid.NewString()
	entry.TokenID = tokenID
	entry.CreatedAt = now
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	entry.Timestamp = entry.Timestamp.UTC()

	created, err := s.repo.Insert(ctx, entry)
	if err != nil {
		return domain.PriceHistoryEntry{}, err
	}
	metrics.LedgerAppended(string(created.Source.Kind))
	slog.Debug("ledger entry appended",
		"tokenId", tokenID, "entryId", created.ID, "kind", created.Source.Kind, "price", created.Price.String())
	return created, nil
}

// AppendOnce appends entry unless an entry for the same prediction already
// exists, in which case the existing entry is returned. Entries without a
// prediction id are always appended.
func (s *Service) AppendOnce(ctx context.Context, tokenID int64, entry domain.PriceHistoryEntry) (domain.PriceHistoryEntry, error) {
	predictionID := entry.Source.PredictionID
	if predictionID == "" {
		return s.Append(ctx, tokenID, entry)
	}

	existing, err := s.repo.FindByPrediction(ctx, predictionID)
	if err == nil {
		return recorded(existing, tokenID, entry)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.PriceHistoryEntry{}, err
	}

	created, err := s.Append(ctx, tokenID, entry)
	if errors.Is(err, domain.ErrConflict) {
		// Lost a race with a concurrent append for the same prediction.
		existing, err := s.repo.FindByPrediction(ctx, predictionID)
		if err != nil {
			return domain.PriceHistoryEntry{}, err
		}
		return recorded(existing, tokenID, entry)
	}
	return created, err
}

// recorded returns existing when it is the entry want would have produced:
// same kind, token and price. Anything else holding the prediction id is a conflict.
func recorded(existing domain.PriceHistoryEntry, tokenID int64, want domain.PriceHistoryEntry) (domain.PriceHistoryEntry, error) {
	if existing.Source.Kind != want.Source.Kind || existing.TokenID != tokenID || !existing.Price.Equal(want.Price) {
		return domain.PriceHistoryEntry{}, fmt.Errorf("entry %s already holds prediction %s with a different price: %w",
			existing.ID, want.Source.PredictionID, domain.ErrConflict)
	}
	return existing, nil
}

// Query returns up to limit entries newest first.
func (s *Service) Query(ctx context.Context, tokenID int64, limit int, rng domain.TimeRange) ([]domain.PriceHistoryEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d: %w", limit, domain.ErrInvalidInput)
	}
	if !rng.Valid() {
		return nil, fmt.Errorf("range start after end: %w", domain.ErrInvalidInput)
	}
	return s.repo.List(ctx, tokenID, limit, rng)
}

// Latest returns the newest entry for tokenID.
func (s *Service) Latest(ctx context.Context, tokenID int64) (domain.PriceHistoryEntry, error) {
	entries, err := s.repo.List(ctx, tokenID, 1, domain.TimeRange{})
	if err != nil {
		return domain.PriceHistoryEntry{}, err
	}
	if len(entries) == 0 {
		return domain.PriceHistoryEntry{}, fmt.Errorf("no history for token %d: %w", tokenID, domain.ErrNotFound)
	}
	return entries[0], nil
}

// AtOrBefore returns the newest entry with Timestamp <= t.
func (s *Service) AtOrBefore(ctx context.Context, tokenID int64, t time.Time) (domain.PriceHistoryEntry, error) {
	entries, err := s.repo.List(ctx, tokenID, 1, domain.TimeRange{To: &t})
	if err != nil {
		return domain.PriceHistoryEntry{}, err
	}
	if len(entries) == 0 {
		return domain.PriceHistoryEntry{}, fmt.Errorf("no history for token %d at or before %s: %w",
			tokenID, t.Format(time.RFC3339), domain.ErrNotFound)
	}
	return entries[0], nil
}

// Since returns every entry with Timestamp >= t, oldest first.
func (s *Service) Since(ctx context.Context, tokenID int64, t time.Time) ([]domain.PriceHistoryEntry, error) {
	return s.repo.Scan(ctx, tokenID, domain.TimeRange{From: &t})
}

// All returns every entry for tokenID, oldest first.
func (s *Service) All(ctx context.Context, tokenID int64) ([]domain.PriceHistoryEntry, error) {
	return s.repo.Scan(ctx, tokenID, domain.TimeRange{})
}

// Aggregate partitions entries in range into calendar-aligned buckets,
// ordered ascending by bucket start.
func (s *Service) Aggregate(ctx context.Context, tokenID int64, period Period, rng domain.TimeRange) ([]Bucket, error) {
	if _, err := ParsePeriod(string(period)); err != nil {
		return nil, err
	}
	if !rng.Valid() {
		return nil, fmt.Errorf("range start after end: %w", domain.ErrInvalidInput)
	}

	entries, err := s.repo.Scan(ctx, tokenID, rng)
	if err != nil {
		return nil, err
	}
	return BuildBuckets(entries, period), nil
}

// BuildBuckets groups entries by calendar bucket. Each entry lands in
// exactly one bucket.
func BuildBuckets(entries []domain.PriceHistoryEntry, period Period) []Bucket {
	groups := lo.GroupBy(entries, func(e domain.PriceHistoryEntry) string {
		return BucketKey(e.Timestamp, period)
	})

	buckets := make([]Bucket, 0, len(groups))
	for key, group := range groups {
		prices := lo.Map(group, func(e domain.PriceHistoryEntry, _ int) decimal.Decimal { return e.Price })
		usd := lo.Map(group, func(e domain.PriceHistoryEntry, _ int) decimal.Decimal { return e.PriceUSD })
		minPrice, maxPrice := stats.MinMax(prices)
		buckets = append(buckets, Bucket{
			BucketKey:   key,
			AvgPrice:    stats.Mean(prices),
			MinPrice:    minPrice,
			MaxPrice:    maxPrice,
			AvgPriceUSD: stats.Mean(usd),
			Count:       len(group),
			Timestamp:   BucketStart(group[0].Timestamp, period),
		})
	}

	slices.SortFunc(buckets, func(a, b Bucket) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return buckets
}

// SourceDistribution returns the percentage of entries per source kind,
// largest share first.
func (s *Service) SourceDistribution(ctx context.Context, tokenID int64) ([]SourceShare, error) {
	counts, err := s.repo.CountByKind(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	total := lo.Sum(lo.Values(counts))
	if total == 0 {
		return []SourceShare{}, nil
	}

	shares := lo.MapToSlice(counts, func(kind domain.SourceKind, n int) SourceShare {
		return SourceShare{Kind: kind, Count: n, Percentage: float64(n) * 100 / float64(total)}
	})
	slices.SortFunc(shares, func(a, b SourceShare) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
	return shares, nil
}

// DeleteRange removes entries of tokenID whose timestamps fall in [from, to].
// This is the only mutation the ledger permits after append.
func (s *Service) DeleteRange(ctx context.Context, tokenID int64, from, to time.Time) (int64, error) {
	if from.After(to) {
		return 0, fmt.Errorf("range start after end: %w", domain.ErrInvalidInput)
	}
	n, err := s.repo.DeleteRange(ctx, tokenID, domain.TimeRange{From: &from, To: &to})
	if err != nil {
		return 0, err
	}
	slog.Warn("ledger range deleted", "tokenId", tokenID,
		"from", from.Format(time.RFC3339), "to", to.Format(time.RFC3339), "deleted", n)
	return n, nil
}

func validateEntry(e domain.PriceHistoryEntry) error {
	if e.Price.IsNegative() || e.PriceUSD.IsNegative() {
		return fmt.Errorf("price and priceUsd must be non-negative: %w", domain.ErrInvalidInput)
	}
	if !e.Source.Kind.Valid() {
		return fmt.Errorf("unknown source kind %q: %w", e.Source.Kind, domain.ErrInvalidInput)
	}
	if e.Source.PredictionID != "" && e.Source.Kind != domain.SourceKindOracle {
		return fmt.Errorf("only oracle entries may reference a prediction: %w", domain.ErrInvalidInput)
	}
	if e.ConfidenceScore != nil && !domain.ValidScore(*e.ConfidenceScore) {
		return fmt.Errorf("confidence score %v outside [0,100]: %w", *e.ConfidenceScore, domain.ErrInvalidInput)
	}
	return nil
}
