package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DurationStats tracks a simple moving average of consultation durations per
// doctor. The Redis implementation lives in internal/redis.
type DurationStats interface {
	Record(ctx context.Context, doctorID uuid.UUID, d time.Duration) error
	Average(ctx context.Context, doctorID uuid.UUID) (time.Duration, bool, error)
}

type MemoryStats struct {
	mu      sync.Mutex
	window  int
	samples map[uuid.UUID][]time.Duration
}

func NewMemoryStats(window int) *MemoryStats {
	if window <= 0 {
		window = 10
	}
	return &MemoryStats{window: window, samples: make(map[uuid.UUID][]time.Duration)}
}

func (m *MemoryStats) Record(_ context.Context, doctorID uuid.UUID, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := append(m.samples[doctorID], d)
	if len(s) > m.window {
		s = s[len(s)-m.window:]
	}
	m.samples[doctorID] = s
	return nil
}

func (m *MemoryStats) Average(_ context.Context, doctorID uuid.UUID) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.samples[doctorID]
	if len(s) == 0 {
		return 0, false, nil
	}
	var total time.Duration
	for _, d := range s {
		total += d
	}
	return total / time.Duration(len(s)), true, nil
}
