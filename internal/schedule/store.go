package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/outpatient-scheduling/internal/apperr"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/clock"
)

// Store owns doctors' daily availability. It performs no locking of its own:
// callers that must order schedule changes against bookings (leave approval)
// hold the (doctor, date) lock around their calls.
type Store struct {
	repo         Repository
	clock        clock.Clock
	sessionSplit calendar.TimeOfDay
	log          *zap.Logger
}

func NewStore(repo Repository, clk clock.Clock, sessionSplit calendar.TimeOfDay, log *zap.Logger) *Store {
	return &Store{
		repo:         repo,
		clock:        clk,
		sessionSplit: sessionSplit,
		log:          log,
	}
}

// SetSchedule validates a and makes it the active record for (doctor, date).
func (s *Store) SetSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time, a Availability) (*Record, error) {
	if doctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:                 uuid.New(),
		DoctorID:           doctorID,
		Date:               calendar.DateOf(date),
		IsAvailable:        a.IsAvailable,
		WorkStart:          a.WorkStart,
		WorkEnd:            a.WorkEnd,
		Break:              a.Break,
		SlotDurationMins:   a.SlotDurationMins,
		MaxPatientsPerSlot: a.MaxPatientsPerSlot,
		LeaveReason:        a.LeaveReason,
		Notes:              a.Notes,
		CreatedAt:          s.clock.Now(),
	}

	stored, err := s.repo.Replace(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("store schedule: %w", err)
	}

	s.log.Info("schedule set",
		zap.Stringer("doctor_id", doctorID),
		zap.String("date", calendar.FormatDate(date)),
		zap.Bool("available", stored.IsAvailable),
	)
	return stored, nil
}

// GetSchedule returns the active record, or an unstored placeholder marked
// unavailable when the doctor has no record for date.
func (s *Store) GetSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Record, error) {
	rec, err := s.repo.GetActive(ctx, doctorID, date)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return placeholder(doctorID, date), nil
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return rec, nil
}

func (s *Store) ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	rec, err := s.GetSchedule(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	return rec.Slots(), nil
}

// MarkUnavailable overwrites every date in rng with an unavailable record.
// The previous hours and slot parameters are carried over for reference
// only; they are ignored for slot generation.
func (s *Store) MarkUnavailable(ctx context.Context, doctorID uuid.UUID, rng calendar.DateRange, reason string) ([]Record, error) {
	if !rng.Valid() {
		return nil, apperr.Validation("end date must not be before start date")
	}
	if reason == "" {
		return nil, apperr.Validation("leave reason is required")
	}

	var out []Record
	for _, day := range rng.Days() {
		prev, err := s.repo.GetActive(ctx, doctorID, day)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return nil, fmt.Errorf("load schedule %s: %w", calendar.FormatDate(day), err)
		}

		if prev != nil && !prev.IsAvailable && prev.LeaveReason == reason {
			out = append(out, *prev)
			continue
		}

		rec := &Record{
			ID:          uuid.New(),
			DoctorID:    doctorID,
			Date:        day,
			IsAvailable: false,
			LeaveReason: reason,
			CreatedAt:   s.clock.Now(),
		}
		if prev != nil {
			rec.WorkStart = prev.WorkStart
			rec.WorkEnd = prev.WorkEnd
			rec.Break = prev.Break
			rec.SlotDurationMins = prev.SlotDurationMins
			rec.MaxPatientsPerSlot = prev.MaxPatientsPerSlot
			rec.Notes = prev.Notes
		}

		stored, err := s.repo.Replace(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("mark %s unavailable: %w", calendar.FormatDate(day), err)
		}
		out = append(out, *stored)
	}

	s.log.Info("schedule marked unavailable",
		zap.Stringer("doctor_id", doctorID),
		zap.Stringer("range", rng),
		zap.String("reason", reason),
	)
	return out, nil
}

// BlockSession removes one half-day session from an available day. Days
// without a stored schedule, days already unavailable and sessions already
// blocked are left untouched, which makes repeated approval runs harmless.
func (s *Store) BlockSession(ctx context.Context, doctorID uuid.UUID, date time.Time, session Session, reason string) (*Record, error) {
	if !session.Valid() {
		return nil, apperr.Validation("invalid session %q", session)
	}

	rec, err := s.GetSchedule(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if !rec.Stored() || !rec.IsAvailable || rec.Blocks(session) {
		return rec, nil
	}

	next := *rec
	next.ID = uuid.New()
	next.CreatedAt = s.clock.Now()
	next.SupersededAt = nil
	next.Blocked = append(append([]Block(nil), rec.Blocked...), Block{
		Session: session,
		Window:  rec.SessionWindow(session, s.sessionSplit),
		Reason:  reason,
	})

	stored, err := s.repo.Replace(ctx, &next)
	if err != nil {
		return nil, fmt.Errorf("block %s session: %w", session, err)
	}

	s.log.Info("schedule session blocked",
		zap.Stringer("doctor_id", doctorID),
		zap.String("date", calendar.FormatDate(date)),
		zap.String("session", string(session)),
	)
	return stored, nil
}

// SessionWindow resolves session against the doctor's hours on date.
func (s *Store) SessionWindow(ctx context.Context, doctorID uuid.UUID, date time.Time, session Session) (calendar.Window, error) {
	rec, err := s.GetSchedule(ctx, doctorID, date)
	if err != nil {
		return calendar.Window{}, err
	}
	return rec.SessionWindow(session, s.sessionSplit), nil
}

func (s *Store) History(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Record, error) {
	recs, err := s.repo.History(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load schedule history: %w", err)
	}
	return recs, nil
}

func (s *Store) ListRange(ctx context.Context, doctorID uuid.UUID, rng calendar.DateRange) ([]Record, error) {
	if !rng.Valid() {
		return nil, apperr.Validation("end date must not be before start date")
	}
	recs, err := s.repo.ListActive(ctx, doctorID, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return recs, nil
}
