package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/service"
)

// Memory is an in-memory case reference repository for tests and local
// experiments.
type Memory struct {
	mu   sync.RWMutex
	refs map[uuid.UUID]service.CaseReference
}

// NewMemory constructs an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{refs: make(map[uuid.UUID]service.CaseReference)}
}

func (m *Memory) Create(ctx context.Context, ref service.CaseReference) (service.CaseReference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.refs[ref.ID]; exists {
		return service.CaseReference{}, fmt.Errorf("case reference %s already exists", ref.ID)
	}
	for _, existing := range m.refs {
		if existing.CaseNumber == ref.CaseNumber {
			return service.CaseReference{}, fmt.Errorf("case number %q already exists", ref.CaseNumber)
		}
	}

	now := time.Now().UTC()
	ref.CreatedAt = now
	ref.UpdatedAt = now
	m.refs[ref.ID] = ref
	return ref, nil
}

func (m *Memory) Update(ctx context.Context, ref service.CaseReference) (service.CaseReference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.refs[ref.ID]
	if !ok {
		return service.CaseReference{}, service.ErrCaseNotFound
	}
	ref.CreatedAt = existing.CreatedAt
	ref.UpdatedAt = time.Now().UTC()
	m.refs[ref.ID] = ref
	return ref, nil
}

func (m *Memory) Find(ctx context.Context, id uuid.UUID) (service.CaseReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ref, ok := m.refs[id]
	if !ok {
		return service.CaseReference{}, service.ErrCaseNotFound
	}
	return ref, nil
}

func (m *Memory) FindActive(ctx context.Context, id uuid.UUID) (*service.CaseReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ref, ok := m.refs[id]
	if !ok || !ref.IsActive {
		return nil, nil
	}
	return &ref, nil
}

func (m *Memory) List(ctx context.Context, limit, offset int) ([]service.CaseReference, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]service.CaseReference, 0, len(m.refs))
	for _, ref := range m.refs {
		all = append(all, ref)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *Memory) ListSynced(ctx context.Context) ([]service.CaseReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []service.CaseReference
	for _, ref := range m.refs {
		if ref.TenantCaseID != nil {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.refs[id]; !ok {
		return service.ErrCaseNotFound
	}
	delete(m.refs, id)
	return nil
}
