// Package analytics derives trend, volatility and confidence statistics
// from the ledger and the current valuation. It never writes.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/rwaoracle/internal/domain"
	"github.com/mtlprog/rwaoracle/internal/ledger"
	"github.com/mtlprog/rwaoracle/internal/stats"
)

// VolatilityWindow is the trailing window volatility is measured over.
const VolatilityWindow = 30 * 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// AssetLookup resolves an asset by token id.
type AssetLookup interface {
	Get(ctx context.Context, tokenID int64) (domain.Asset, error)
}

// HistoryReader is the read side of the ledger.
type HistoryReader interface {
	AtOrBefore(ctx context.Context, tokenID int64, t time.Time) (domain.PriceHistoryEntry, error)
	Since(ctx context.Context, tokenID int64, t time.Time) ([]domain.PriceHistoryEntry, error)
	All(ctx context.Context, tokenID int64) ([]domain.PriceHistoryEntry, error)
	Aggregate(ctx context.Context, tokenID int64, period ledger.Period, rng domain.TimeRange) ([]ledger.Bucket, error)
}

// Summary is the analytics snapshot for one asset.
type Summary struct {
	TokenID           int64            `json:"tokenId"`
	Current           domain.Valuation `json:"current"`
	Change24h         decimal.Decimal  `json:"change24h"`
	Change7d          decimal.Decimal  `json:"change7d"`
	Change30d         decimal.Decimal  `json:"change30d"`
	AverageConfidence float64          `json:"averageConfidence"`
	Volatility        decimal.Decimal  `json:"volatility"`
	EntryCount        int              `json:"entryCount"`
}

// Direction is the overall movement across a trend.
type Direction string

const (
	TrendUp   Direction = "up"
	TrendDown Direction = "down"
	TrendFlat Direction = "flat"
)

// Trend is a bucketed price series with its overall direction.
type Trend struct {
	TokenID   int64           `json:"tokenId"`
	Period    ledger.Period   `json:"period"`
	Direction Direction       `json:"direction"`
	Change    decimal.Decimal `json:"change"` // percent, first to last bucket average
	Buckets   []ledger.Bucket `json:"buckets"`
}

// Service is the Price Analytics Engine.
type Service struct {
	assets  AssetLookup
	history HistoryReader
	now     func() time.Time
}

// NewService creates a new analytics Service.
func NewService(assets AssetLookup, history HistoryReader) *Service {
	return &Service{assets: assets, history: history, now: func() time.Time { return time.Now().UTC() }}
}

// Analytics computes the current analytics snapshot for tokenID.
func (s *Service) Analytics(ctx context.Context, tokenID int64) (Summary, error) {
	asset, err := s.assets.Get(ctx, tokenID)
	if err != nil {
		return Summary{}, err
	}
	now := s.now()
	current := asset.CurrentPrice

	sum := Summary{TokenID: tokenID, Current: current}
	if sum.Change24h, err = s.changeSince(ctx, tokenID, current.Value, now.Add(-24*time.Hour)); err != nil {
		return Summary{}, err
	}
	if sum.Change7d, err = s.changeSince(ctx, tokenID, current.Value, now.AddDate(0, 0, -7)); err != nil {
		return Summary{}, err
	}
	if sum.Change30d, err = s.changeSince(ctx, tokenID, current.Value, now.AddDate(0, 0, -30)); err != nil {
		return Summary{}, err
	}

	all, err := s.history.All(ctx, tokenID)
	if err != nil {
		return Summary{}, fmt.Errorf("reading history: %w", err)
	}
	sum.EntryCount = len(all)
	sum.AverageConfidence = averageConfidence(all)

	window, err := s.history.Since(ctx, tokenID, now.Add(-VolatilityWindow))
	if err != nil {
		return Summary{}, fmt.Errorf("reading volatility window: %w", err)
	}
	sum.Volatility = Volatility(window)

	return sum, nil
}

// changeSince is the percent change of current against the newest entry at
// or before t. Missing history or a zero past price yields zero.
func (s *Service) changeSince(ctx context.Context, tokenID int64, current decimal.Decimal, t time.Time) (decimal.Decimal, error) {
	past, err := s.history.AtOrBefore(ctx, tokenID, t)
	if errors.Is(err, domain.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading price at %s: %w", t.Format(time.RFC3339), err)
	}
	return domain.PercentChange(current, past.Price), nil
}

// Volatility is the population standard deviation of simple returns
// between consecutive entries, as a percentage. entries must be ascending.
func Volatility(entries []domain.PriceHistoryEntry) decimal.Decimal {
	prices := lo.Map(entries, func(e domain.PriceHistoryEntry, _ int) decimal.Decimal { return e.Price })
	return stats.PopulationStdDev(stats.SimpleReturns(prices)).Mul(hundred)
}

func averageConfidence(entries []domain.PriceHistoryEntry) float64 {
	scored := lo.FilterMap(entries, func(e domain.PriceHistoryEntry, _ int) (float64, bool) {
		if e.ConfidenceScore == nil {
			return 0, false
		}
		return *e.ConfidenceScore, true
	})
	if len(scored) == 0 {
		return 0
	}
	return lo.Sum(scored) / float64(len(scored))
}

// Trend buckets the ledger over rng and reports the direction from the
// first to the last bucket average.
func (s *Service) Trend(ctx context.Context, tokenID int64, period ledger.Period, rng domain.TimeRange) (Trend, error) {
	if _, err := s.assets.Get(ctx, tokenID); err != nil {
		return Trend{}, err
	}
	buckets, err := s.history.Aggregate(ctx, tokenID, period, rng)
	if err != nil {
		return Trend{}, err
	}

	t := Trend{TokenID: tokenID, Period: period, Direction: TrendFlat, Change: decimal.Zero, Buckets: buckets}
	if len(buckets) < 2 {
		return t, nil
	}
	first, last := buckets[0].AvgPrice, buckets[len(buckets)-1].AvgPrice
	t.Change = domain.PercentChange(last, first)
	switch last.Cmp(first) {
	case 1:
		t.Direction = TrendUp
	case -1:
		t.Direction = TrendDown
	}
	return t, nil
}
