package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// MemoryRepository implements Repository in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []domain.PriceHistoryEntry // insertion order
}

// NewMemoryRepository creates an empty in-memory ledger.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Insert(_ context.Context, e domain.PriceHistoryEntry) (domain.PriceHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Source.PredictionID != "" {
		if _, ok := lo.Find(m.entries, func(x domain.PriceHistoryEntry) bool {
			return x.Source.PredictionID == e.Source.PredictionID
		}); ok {
			return domain.PriceHistoryEntry{}, fmt.Errorf("ledger entry for prediction %s exists: %w", e.Source.PredictionID, domain.ErrConflict)
		}
	}
	e.Factors = slices.Clone(e.Factors)
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *MemoryRepository) FindByPrediction(_ context.Context, predictionID string) (domain.PriceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := lo.Find(m.entries, func(x domain.PriceHistoryEntry) bool {
		return x.Source.PredictionID == predictionID
	})
	if !ok {
		return domain.PriceHistoryEntry{}, fmt.Errorf("ledger entry for prediction %s: %w", predictionID, domain.ErrNotFound)
	}
	return e, nil
}

func (m *MemoryRepository) List(ctx context.Context, tokenID int64, limit int, rng domain.TimeRange) ([]domain.PriceHistoryEntry, error) {
	entries, _ := m.Scan(ctx, tokenID, rng)
	slices.Reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *MemoryRepository) Scan(_ context.Context, tokenID int64, rng domain.TimeRange) ([]domain.PriceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := lo.Filter(m.entries, func(e domain.PriceHistoryEntry, _ int) bool {
		return e.TokenID == tokenID && rng.Contains(e.Timestamp)
	})
	// Stable sort keeps insertion order for equal timestamps.
	slices.SortStableFunc(entries, func(a, b domain.PriceHistoryEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return entries, nil
}

func (m *MemoryRepository) CountByKind(_ context.Context, tokenID int64) (map[domain.SourceKind]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[domain.SourceKind]int)
	for _, e := range m.entries {
		if e.TokenID == tokenID {
			counts[e.Source.Kind]++
		}
	}
	return counts, nil
}

func (m *MemoryRepository) DeleteRange(_ context.Context, tokenID int64, rng domain.TimeRange) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept, removed := lo.FilterReject(m.entries, func(e domain.PriceHistoryEntry, _ int) bool {
		return e.TokenID != tokenID || !rng.Contains(e.Timestamp)
	})
	m.entries = kept
	return int64(len(removed)), nil
}
