package oracle

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// MemoryRepository implements Repository in process memory.
type MemoryRepository struct {
	mu          sync.RWMutex
	predictions map[string]domain.Prediction
}

// NewMemoryRepository creates an empty in-memory prediction store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{predictions: make(map[string]domain.Prediction)}
}

func (m *MemoryRepository) Create(_ context.Context, p domain.Prediction) (domain.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.predictions[p.ID]; ok {
		return domain.Prediction{}, fmt.Errorf("prediction %s exists: %w", p.ID, domain.ErrConflict)
	}
	m.predictions[p.ID] = p
	return p, nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (domain.Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.predictions[id]
	if !ok {
		return domain.Prediction{}, fmt.Errorf("prediction %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (m *MemoryRepository) ListByToken(_ context.Context, tokenID int64, limit int, status *domain.PredictionStatus) ([]domain.Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := lo.Filter(lo.Values(m.predictions), func(p domain.Prediction, _ int) bool {
		return p.TokenID == tokenID && (status == nil || p.Status == *status)
	})
	slices.SortFunc(out, func(a, b domain.Prediction) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) ListRange(_ context.Context, rng domain.TimeRange) ([]domain.Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := lo.Filter(lo.Values(m.predictions), func(p domain.Prediction, _ int) bool {
		return rng.Contains(p.Timestamp)
	})
	slices.SortFunc(out, func(a, b domain.Prediction) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, nil
}

func (m *MemoryRepository) Resolve(_ context.Context, id string, res Resolution) (domain.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.predictions[id]
	if !ok {
		return domain.Prediction{}, fmt.Errorf("prediction %s: %w", id, domain.ErrNotFound)
	}
	if p.Status != domain.PredictionPending {
		return domain.Prediction{}, fmt.Errorf("prediction %s is %s: %w", id, p.Status, domain.ErrInvalidState)
	}
	resolvedAt := res.ResolvedAt
	p.Status = res.Status
	p.RejectionReason = res.RejectionReason
	p.ChainRef = res.ChainRef
	p.ResolvedAt = &resolvedAt
	m.predictions[id] = p
	return p, nil
}
