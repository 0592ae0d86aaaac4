// Package export publishes analytics and ledger history to spreadsheets.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtlprog/rwaoracle/internal/analytics"
)

// AssetLister lists every registered token id.
type AssetLister interface {
	List(ctx context.Context) ([]int64, error)
}

// AnalyticsProvider computes the analytics snapshot of one asset.
type AnalyticsProvider interface {
	Analytics(ctx context.Context, tokenID int64) (analytics.Summary, error)
}

// RowWriter writes one export run to a spreadsheet destination.
type RowWriter interface {
	Write(ctx context.Context, rows []analytics.Summary, at time.Time) error
}

// Service computes analytics for all assets and delegates writing to a RowWriter.
type Service struct {
	assets    AssetLister
	analytics AnalyticsProvider
	writer    RowWriter
	now       func() time.Time
}

// NewService creates a new export Service.
func NewService(assets AssetLister, analytics AnalyticsProvider, writer RowWriter) *Service {
	return &Service{
		assets:    assets,
		analytics: analytics,
		writer:    writer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Export computes analytics for every asset and writes them as one run.
// Assets whose analytics fail are skipped with a warning.
func (s *Service) Export(ctx context.Context) error {
	ids, err := s.assets.List(ctx)
	if err != nil {
		return fmt.Errorf("listing assets: %w", err)
	}

	rows := make([]analytics.Summary, 0, len(ids))
	for _, id := range ids {
		sum, err := s.analytics.Analytics(ctx, id)
		if err != nil {
			slog.Warn("export: analytics unavailable", "tokenId", id, "error", err)
			continue
		}
		rows = append(rows, sum)
	}

	if err := s.writer.Write(ctx, rows, s.now()); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	slog.Info("export: analytics written", "assets", len(rows))
	return nil
}
