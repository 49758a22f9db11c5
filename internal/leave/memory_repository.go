package leave

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]Request
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{requests: make(map[uuid.UUID]Request)}
}

func (m *MemoryRepository) Create(_ context.Context, r *Request) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *r
	stored.StartDate = calendar.DateOf(r.StartDate)
	stored.EndDate = calendar.DateOf(r.EndDate)
	stored.UpdatedAt = stored.CreatedAt
	m.requests[stored.ID] = stored
	return &stored, nil
}

func (m *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &r, nil
}

func (m *MemoryRepository) Update(_ context.Context, r *Request, from Status) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.requests[r.ID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if cur.Status != from {
		return nil, ErrStatusChanged
	}
	cur.Status = r.Status
	cur.AdminComment = r.AdminComment
	cur.Reconciliation = r.Reconciliation
	cur.UpdatedAt = r.UpdatedAt
	cur.DecidedAt = r.DecidedAt
	m.requests[r.ID] = cur
	return &cur, nil
}

func (m *MemoryRepository) list(keep func(r *Request) bool, newestFirst bool) []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Request
	for _, r := range m.requests {
		if keep(&r) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if newestFirst {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (m *MemoryRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]Request, error) {
	return m.list(func(r *Request) bool { return r.DoctorID == doctorID }, true), nil
}

func (m *MemoryRepository) ListPending(_ context.Context) ([]Request, error) {
	return m.list(func(r *Request) bool { return r.Status == StatusPending }, false), nil
}

func (m *MemoryRepository) ListOutstanding(_ context.Context) ([]Request, error) {
	return m.list(func(r *Request) bool {
		return r.Status == StatusPending && r.Outstanding()
	}, false), nil
}
