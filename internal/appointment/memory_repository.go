package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
)

type tokenKey struct {
	doctorID uuid.UUID
	date     time.Time
}

// MemoryRepository backs the engine in STORAGE_DRIVER=memory mode and in
// tests. It implements both Repository and TokenRepository.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Appointment
	tokens map[tokenKey]int
	events []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[uuid.UUID]Appointment),
		tokens: make(map[tokenKey]int),
	}
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *a
	stored.Date = calendar.DateOf(a.Date)
	stored.UpdatedAt = stored.CreatedAt
	m.byID[stored.ID] = stored
	return &stored, nil
}

func (m *MemoryRepository) filter(keep func(a *Appointment) bool) []Appointment {
	var result []Appointment
	for _, a := range m.byID {
		if keep(&a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].Token < result[j].Token
	})
	return result
}

func (m *MemoryRepository) CountActiveInSlot(_ context.Context, doctorID uuid.UUID, date time.Time, slotStart calendar.TimeOfDay) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	date = calendar.DateOf(date)
	n := 0
	for _, a := range m.byID {
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.SlotStart == slotStart && a.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) ListForDay(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	date = calendar.DateOf(date)
	return m.filter(func(a *Appointment) bool {
		return a.DoctorID == doctorID && a.Date.Equal(date)
	}), nil
}

func (m *MemoryRepository) ListActiveInRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rng := calendar.DateRange{Start: from, End: to}
	return m.filter(func(a *Appointment) bool {
		return a.DoctorID == doctorID && rng.Contains(a.Date) && a.Status.Active()
	}), nil
}

func (m *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.filter(func(a *Appointment) bool { return a.PatientID == patientID })
	// newest first, as in postgres
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryRepository) ListActiveUpTo(_ context.Context, date time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	date = calendar.DateOf(date)
	return m.filter(func(a *Appointment) bool {
		return !a.Date.After(date) && a.Status.Active()
	}), nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from Status, ch Change) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusChanged
	}

	at := ch.At
	a.Status = ch.To
	a.UpdatedAt = at
	if ch.Reason != nil {
		a.CancellationReason = ch.Reason
	}
	if ch.Actor != nil {
		a.CancelledBy = ch.Actor
	}
	if ch.Outcome != nil {
		a.Outcome = ch.Outcome
	}
	if ch.RescheduledTo != nil {
		a.RescheduledTo = ch.RescheduledTo
	}
	switch ch.To {
	case StatusInQueue:
		a.CheckedInAt = &at
	case StatusConsulted:
		a.CompletedAt = &at
	}

	m.byID[id] = a
	return &a, nil
}

func (m *MemoryRepository) MoveSlot(_ context.Context, id uuid.UUID, from Status, start, end calendar.TimeOfDay, at time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusChanged
	}
	a.SlotStart, a.SlotEnd, a.UpdatedAt = start, end, at
	m.byID[id] = a
	return &a, nil
}

func (m *MemoryRepository) ListPendingLeaveNotices(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rng := calendar.DateRange{Start: from, End: to}
	return m.filter(func(a *Appointment) bool {
		return a.DoctorID == doctorID &&
			rng.Contains(a.Date) &&
			a.Status == StatusCancelled &&
			a.CancellationReason != nil && *a.CancellationReason == ReasonDoctorLeave &&
			!a.LeaveNoticeSent
	}), nil
}

func (m *MemoryRepository) MarkLeaveNoticeSent(_ context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if a, ok := m.byID[id]; ok {
			a.LeaveNoticeSent = true
			m.byID[id] = a
		}
	}
	return nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the event log, oldest first.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EventLog(nil), m.events...)
}

func (m *MemoryRepository) NextToken(_ context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tokenKey{doctorID, calendar.DateOf(date)}
	m.tokens[key]++
	return m.tokens[key], nil
}

func (m *MemoryRepository) PeekToken(_ context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[tokenKey{doctorID, calendar.DateOf(date)}] + 1, nil
}
