package valuation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// MemoryRepository implements Repository in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	assets map[int64]domain.Asset
}

// NewMemoryRepository creates an empty in-memory valuation repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{assets: make(map[int64]domain.Asset)}
}

func (m *MemoryRepository) Create(_ context.Context, asset domain.Asset) (domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.assets[asset.TokenID]; ok {
		return domain.Asset{}, fmt.Errorf("asset %d already exists: %w", asset.TokenID, domain.ErrConflict)
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	m.assets[asset.TokenID] = asset
	return asset, nil
}

func (m *MemoryRepository) Get(_ context.Context, tokenID int64) (domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assets[tokenID]
	if !ok {
		return domain.Asset{}, fmt.Errorf("asset %d: %w", tokenID, domain.ErrNotFound)
	}
	return a, nil
}

func (m *MemoryRepository) UpdateValuation(_ context.Context, tokenID int64, v domain.Valuation) (domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assets[tokenID]
	if !ok {
		return domain.Asset{}, fmt.Errorf("asset %d: %w", tokenID, domain.ErrNotFound)
	}
	a.CurrentPrice = v
	m.assets[tokenID] = a
	return a, nil
}

func (m *MemoryRepository) ListTokenIDs(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.assets))
	for id := range m.assets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
