package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
)

type dayKey struct {
	doctorID uuid.UUID
	date     time.Time
}

// MemoryRepository keeps every record version in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[dayKey][]Record // oldest first, active record last
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[dayKey][]Record)}
}

func cloneRecord(r Record) Record {
	if r.Break != nil {
		b := *r.Break
		r.Break = &b
	}
	r.Blocked = append([]Block(nil), r.Blocked...)
	return r
}

func (m *MemoryRepository) GetActive(_ context.Context, doctorID uuid.UUID, date time.Time) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.records[dayKey{doctorID, calendar.DateOf(date)}]
	if len(versions) == 0 {
		return nil, ErrRecordNotFound
	}
	r := cloneRecord(versions[len(versions)-1])
	return &r, nil
}

func (m *MemoryRepository) Replace(_ context.Context, rec *Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dayKey{rec.DoctorID, calendar.DateOf(rec.Date)}
	versions := m.records[key]
	if n := len(versions); n > 0 {
		at := rec.CreatedAt
		versions[n-1].SupersededAt = &at
	}

	stored := cloneRecord(*rec)
	stored.Date = key.date
	stored.SupersededAt = nil
	m.records[key] = append(versions, stored)

	out := cloneRecord(stored)
	return &out, nil
}

func (m *MemoryRepository) ListActive(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rng := calendar.DateRange{Start: from, End: to}
	var result []Record
	for key, versions := range m.records {
		if key.doctorID != doctorID || !rng.Contains(key.date) || len(versions) == 0 {
			continue
		}
		result = append(result, cloneRecord(versions[len(versions)-1]))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *MemoryRepository) History(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.records[dayKey{doctorID, calendar.DateOf(date)}]
	result := make([]Record, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		result = append(result, cloneRecord(versions[i]))
	}
	return result, nil
}
