package source

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// MemoryRepository implements Repository in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	sources map[string]domain.DataSource
}

// NewMemoryRepository creates an empty in-memory registry.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sources: make(map[string]domain.DataSource)}
}

func (m *MemoryRepository) Create(_ context.Context, ds domain.DataSource) (domain.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTaken(ds.Name, ds.ID) {
		return domain.DataSource{}, fmt.Errorf("data source name %q is taken: %w", ds.Name, domain.ErrConflict)
	}
	ds = cloneSource(ds)
	m.sources[ds.ID] = ds
	return cloneSource(ds), nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (domain.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds, ok := m.sources[id]
	if !ok {
		return domain.DataSource{}, fmt.Errorf("data source %s: %w", id, domain.ErrNotFound)
	}
	return cloneSource(ds), nil
}

func (m *MemoryRepository) List(_ context.Context) ([]domain.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := lo.Map(lo.Values(m.sources), func(ds domain.DataSource, _ int) domain.DataSource {
		return cloneSource(ds)
	})
	slices.SortFunc(out, func(a, b domain.DataSource) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *MemoryRepository) Mutate(_ context.Context, id string, fn func(*domain.DataSource) error) (domain.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sources[id]
	if !ok {
		return domain.DataSource{}, fmt.Errorf("data source %s: %w", id, domain.ErrNotFound)
	}
	ds := cloneSource(current)
	if err := fn(&ds); err != nil {
		return domain.DataSource{}, err
	}
	if m.nameTaken(ds.Name, id) {
		return domain.DataSource{}, fmt.Errorf("data source name %q is taken: %w", ds.Name, domain.ErrConflict)
	}
	m.sources[id] = cloneSource(ds)
	return ds, nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("data source %s: %w", id, domain.ErrNotFound)
	}
	delete(m.sources, id)
	return nil
}

func (m *MemoryRepository) nameTaken(name, exceptID string) bool {
	_, taken := lo.FindKeyBy(m.sources, func(id string, ds domain.DataSource) bool {
		return id != exceptID && ds.Name == name
	})
	return taken
}

func cloneSource(ds domain.DataSource) domain.DataSource {
	ds.Config.Mapping = maps.Clone(ds.Config.Mapping)
	ds.Config.Auth = maps.Clone(ds.Config.Auth)
	return ds
}
