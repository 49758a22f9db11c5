package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/outpatient-scheduling/internal/apperr"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/clock"
	"github.com/hackgods/outpatient-scheduling/internal/db"
	"github.com/hackgods/outpatient-scheduling/internal/lock"
	"github.com/hackgods/outpatient-scheduling/internal/metrics"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

const (
	EventAppointmentBooked     = "APPOINTMENT_BOOKED"
	EventAppointmentCheckedIn  = "APPOINTMENT_CHECKED_IN"
	EventAppointmentConsulted  = "APPOINTMENT_CONSULTED"
	EventAppointmentCancelled  = "APPOINTMENT_CANCELLED"
	EventAppointmentMissed     = "APPOINTMENT_MISSED"
	EventAppointmentReassigned = "APPOINTMENT_REASSIGNED"
)

// ScheduleReader is the part of the schedule store the engine validates
// bookings against.
type ScheduleReader interface {
	GetSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) (*schedule.Record, error)
}

type EngineOptions struct {
	Stats       DurationStats
	Clock       clock.Clock
	NoShowGrace time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Collector
}

// Engine is the only writer of appointment status.
type Engine struct {
	repo      Repository
	tokens    *TokenAllocator
	schedules ScheduleReader
	locker    lock.Locker
	tx        db.Transactor
	stats     DurationStats
	clock     clock.Clock
	grace     time.Duration
	log       *zap.Logger
	metrics   *metrics.Collector
}

func NewEngine(repo Repository, tokens *TokenAllocator, schedules ScheduleReader, locker lock.Locker, tx db.Transactor, opts EngineOptions) *Engine {
	if opts.Stats == nil {
		opts.Stats = NewMemoryStats(0)
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		repo:      repo,
		tokens:    tokens,
		schedules: schedules,
		locker:    locker,
		tx:        tx,
		stats:     opts.Stats,
		clock:     opts.Clock,
		grace:     opts.NoShowGrace,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Book reserves a place in a slot and hands out the next token for the
// doctor's day. The schedule read, occupancy count, token increment and
// insert run under the (doctor, date) lock inside one transaction, so leave
// approval and concurrent bookings for the same day observe them atomically.
func (e *Engine) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil {
		return nil, apperr.Validation("patient and doctor are required")
	}
	if req.Date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	date := calendar.DateOf(req.Date)
	if date.Before(calendar.DateOf(e.clock.Now())) {
		return nil, apperr.Validation("cannot book %s: date is in the past", calendar.FormatDate(date))
	}

	var created *Appointment
	err := e.withDayLocks(ctx, []string{lock.DoctorDayKey(req.DoctorID, date)}, func(ctx context.Context) error {
		return e.tx.WithinTx(ctx, func(ctx context.Context) error {
			slot, err := e.checkSlot(ctx, req.DoctorID, date, req.SlotStart)
			if err != nil {
				return err
			}
			a, err := e.insertBooking(ctx, uuid.New(), req, date, slot, nil)
			if err != nil {
				return err
			}
			created = a
			return nil
		})
	})
	if err != nil {
		e.metrics.ObserveBooking(apperr.KindName(err))
		return nil, err
	}

	e.metrics.ObserveBooking("booked")
	e.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       calendar.FormatDate(created.Date),
		"slot":       created.Slot().String(),
		"token":      created.Token,
	})
	e.log.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("doctor_id", created.DoctorID.String()),
		zap.String("date", calendar.FormatDate(created.Date)),
		zap.Int("token", created.Token))

	return created, nil
}

// checkSlot must run under the (doctor, date) lock.
func (e *Engine) checkSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, start calendar.TimeOfDay) (schedule.Slot, error) {
	rec, err := e.schedules.GetSchedule(ctx, doctorID, date)
	if err != nil {
		return schedule.Slot{}, fmt.Errorf("load schedule: %w", err)
	}

	day := calendar.FormatDate(date)
	if !rec.IsAvailable {
		if !rec.Stored() {
			return schedule.Slot{}, apperr.WithCode(apperr.ErrSlotUnavailable, apperr.CodeNoSuchSlot,
				"doctor has no schedule on %s", day)
		}
		return schedule.Slot{}, apperr.WithCode(apperr.ErrSlotUnavailable, apperr.CodeDoctorUnavailable,
			"doctor is unavailable on %s: %s", day, rec.LeaveReason)
	}

	slot, ok := rec.SlotAt(start)
	if !ok {
		unblocked := *rec
		unblocked.Blocked = nil
		if _, wouldExist := unblocked.SlotAt(start); wouldExist {
			return schedule.Slot{}, apperr.WithCode(apperr.ErrSlotUnavailable, apperr.CodeDoctorUnavailable,
				"doctor is on leave at %s on %s", start, day)
		}
		return schedule.Slot{}, apperr.WithCode(apperr.ErrSlotUnavailable, apperr.CodeNoSuchSlot,
			"no slot starts at %s on %s", start, day)
	}

	n, err := e.repo.CountActiveInSlot(ctx, doctorID, date, slot.Start)
	if err != nil {
		return schedule.Slot{}, err
	}
	if n >= slot.Capacity {
		return schedule.Slot{}, apperr.New(apperr.ErrSlotFull,
			"slot %s on %s is full (%d/%d)", slot.Window(), day, n, slot.Capacity)
	}
	return slot, nil
}

// insertBooking allocates the token last, after every check has passed.
func (e *Engine) insertBooking(ctx context.Context, id uuid.UUID, req BookRequest, date time.Time, slot schedule.Slot, from *uuid.UUID) (*Appointment, error) {
	token, err := e.tokens.Allocate(ctx, req.DoctorID, date)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	a, err := e.repo.CreateAppointment(ctx, &Appointment{
		ID:               id,
		DoctorID:         req.DoctorID,
		PatientID:        req.PatientID,
		Date:             date,
		SlotStart:        slot.Start,
		SlotEnd:          slot.End,
		Token:            token,
		Status:           StatusBooked,
		ConsultationType: req.ConsultationType,
		RescheduledFrom:  from,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return a, nil
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, apperr.NotFound("appointment %s not found", id)
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return a, nil
}

// ListForDay returns every appointment of the doctor's day in token order.
func (e *Engine) ListForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	list, err := e.repo.ListForDay(ctx, doctorID, calendar.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

// ListActiveInRange returns the booked and in-queue appointments of a doctor
// between two dates, inclusive.
func (e *Engine) ListActiveInRange(ctx context.Context, doctorID uuid.UUID, rng calendar.DateRange) ([]Appointment, error) {
	list, err := e.repo.ListActiveInRange(ctx, doctorID, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}
	return list, nil
}

func (e *Engine) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	list, err := e.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return list, nil
}

func (e *Engine) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.transition(ctx, id, StatusInQueue, Change{}, EventAppointmentCheckedIn, nil)
}

// Complete closes an in-queue consultation and feeds the doctor's moving
// average. Without an explicit duration the consultation is taken to start
// at check-in or at the doctor's previous completion that day, whichever
// is later.
func (e *Engine) Complete(ctx context.Context, id uuid.UUID, out Outcome) (*Appointment, error) {
	if out.DurationMins < 0 {
		return nil, apperr.Validation("duration must not be negative")
	}
	var notes *string
	if out.Notes != "" {
		notes = &out.Notes
	}

	a, err := e.transition(ctx, id, StatusConsulted, Change{Outcome: notes}, EventAppointmentConsulted, nil)
	if err != nil {
		return nil, err
	}

	d, ok := e.consultationDuration(ctx, a, out)
	if ok {
		if err := e.stats.Record(ctx, a.DoctorID, d); err != nil {
			e.log.Warn("failed to record consultation duration",
				zap.String("doctor_id", a.DoctorID.String()), zap.Error(err))
		}
	}
	return a, nil
}

func (e *Engine) consultationDuration(ctx context.Context, a *Appointment, out Outcome) (time.Duration, bool) {
	if out.DurationMins > 0 {
		return time.Duration(out.DurationMins) * time.Minute, true
	}
	if a.CheckedInAt == nil || a.CompletedAt == nil {
		return 0, false
	}

	start := *a.CheckedInAt
	day, err := e.repo.ListForDay(ctx, a.DoctorID, a.Date)
	if err != nil {
		e.log.Warn("failed to load day for duration", zap.Error(err))
	}
	for _, other := range day {
		if other.ID == a.ID || other.Status != StatusConsulted || other.CompletedAt == nil {
			continue
		}
		if other.CompletedAt.After(start) && !other.CompletedAt.After(*a.CompletedAt) {
			start = *other.CompletedAt
		}
	}

	d := a.CompletedAt.Sub(start)
	if d <= 0 {
		return 0, false
	}
	return d, true
}

// Cancel is a no-op on an already cancelled appointment, including one
// cancelled concurrently by another caller.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*Appointment, error) {
	a, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		return a, nil
	}
	if actor == "" {
		actor = ActorSystem
	}
	return e.transition(ctx, id, StatusCancelled, Change{Reason: &reason, Actor: &actor}, EventAppointmentCancelled,
		map[string]any{"reason": reason, "actor": string(actor)})
}

func (e *Engine) MarkMissed(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.transition(ctx, id, StatusMissed, Change{}, EventAppointmentMissed, nil)
}

// SweepMissed marks every active appointment whose slot ended more than the
// grace period ago. Losing a race to a check-in or completion is not an error.
func (e *Engine) SweepMissed(ctx context.Context) (int, error) {
	now := e.clock.Now()
	candidates, err := e.repo.ListActiveUpTo(ctx, calendar.DateOf(now))
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	marked := 0
	for _, a := range candidates {
		if !now.After(a.EndsAt().Add(e.grace)) {
			continue
		}
		_, err := e.MarkMissed(ctx, a.ID)
		switch {
		case err == nil:
			marked++
		case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrConcurrencyConflict):
			continue
		default:
			e.log.Error("failed to mark appointment missed",
				zap.String("appointment_id", a.ID.String()), zap.Error(err))
		}
	}
	return marked, nil
}

func (e *Engine) transition(ctx context.Context, id uuid.UUID, to Status, ch Change, event string, payload map[string]any) (*Appointment, error) {
	a, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if to == StatusCancelled && a.Status == StatusCancelled {
		return a, nil
	}
	if !CanTransition(a.Status, to) {
		return nil, apperr.InvalidState("cannot move appointment %s from %s to %s", id, a.Status, to)
	}

	ch.To = to
	ch.At = e.clock.Now()
	updated, err := e.repo.UpdateStatus(ctx, id, a.Status, ch)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			// A concurrent cancel already did the work.
			if to == StatusCancelled {
				if cur, gerr := e.Get(ctx, id); gerr == nil && cur.Status == StatusCancelled {
					return cur, nil
				}
			}
			return nil, apperr.Wrap(apperr.ErrConcurrencyConflict, err, "appointment %s changed while moving to %s", id, to)
		}
		return nil, fmt.Errorf("update appointment %s: %w", id, err)
	}

	e.metrics.ObserveTransition(string(to))
	if payload == nil {
		payload = map[string]any{}
	}
	payload["from"] = string(a.Status)
	e.logEvent(ctx, id, event, payload)

	return updated, nil
}

// Reassign moves an active appointment to another slot. On the same date the
// token is kept; on another date the appointment is cancelled as
// rescheduled and a linked booking with a fresh token replaces it.
func (e *Engine) Reassign(ctx context.Context, id uuid.UUID, newDate time.Time, newSlot calendar.TimeOfDay) (*ReassignResult, error) {
	current, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, apperr.InvalidState("cannot reassign appointment %s in status %s", id, current.Status)
	}
	if newDate.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	newDate = calendar.DateOf(newDate)
	if newDate.Before(calendar.DateOf(e.clock.Now())) {
		return nil, apperr.Validation("cannot reassign to %s: date is in the past", calendar.FormatDate(newDate))
	}

	keys := []string{lock.DoctorDayKey(current.DoctorID, current.Date)}
	sameDay := newDate.Equal(current.Date)
	if !sameDay {
		keys = append(keys, lock.DoctorDayKey(current.DoctorID, newDate))
	}

	var result ReassignResult
	err = e.withDayLocks(ctx, keys, func(ctx context.Context) error {
		return e.tx.WithinTx(ctx, func(ctx context.Context) error {
			prev, err := e.Get(ctx, id)
			if err != nil {
				return err
			}
			if !prev.Status.Active() {
				return apperr.InvalidState("cannot reassign appointment %s in status %s", id, prev.Status)
			}
			result.Previous = prev

			if sameDay && prev.SlotStart == newSlot {
				result.Current = prev
				return nil
			}

			slot, err := e.checkSlot(ctx, prev.DoctorID, newDate, newSlot)
			if err != nil {
				return err
			}

			now := e.clock.Now()
			if sameDay {
				moved, err := e.repo.MoveSlot(ctx, id, prev.Status, slot.Start, slot.End, now)
				if err != nil {
					return e.conflict(err, id)
				}
				result.Current = moved
				return nil
			}

			nextID := uuid.New()
			reason, actor := ReasonRescheduled, ActorSystem
			if _, err := e.repo.UpdateStatus(ctx, id, prev.Status, Change{
				To:            StatusCancelled,
				At:            now,
				Reason:        &reason,
				Actor:         &actor,
				RescheduledTo: &nextID,
			}); err != nil {
				return e.conflict(err, id)
			}

			booked, err := e.insertBooking(ctx, nextID, BookRequest{
				PatientID:        prev.PatientID,
				DoctorID:         prev.DoctorID,
				ConsultationType: prev.ConsultationType,
			}, newDate, slot, &prev.ID)
			if err != nil {
				return err
			}
			result.Current = booked
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Current.ID != id || result.Current.SlotStart != result.Previous.SlotStart {
		if result.Current.ID != id {
			e.metrics.ObserveTransition(string(StatusCancelled))
			e.metrics.ObserveBooking("booked")
		}
		e.logEvent(ctx, id, EventAppointmentReassigned, map[string]any{
			"to_appointment": result.Current.ID.String(),
			"date":           calendar.FormatDate(result.Current.Date),
			"slot":           result.Current.Slot().String(),
			"token":          result.Current.Token,
		})
	}
	return &result, nil
}

func (e *Engine) conflict(err error, id uuid.UUID) error {
	if errors.Is(err, ErrStatusChanged) {
		return apperr.Wrap(apperr.ErrConcurrencyConflict, err, "appointment %s changed during reassign", id)
	}
	return fmt.Errorf("reassign appointment %s: %w", id, err)
}

// PendingLeaveNotices lists appointments cancelled for leave whose patient
// notice has not been handed off yet.
func (e *Engine) PendingLeaveNotices(ctx context.Context, doctorID uuid.UUID, rng calendar.DateRange) ([]Appointment, error) {
	list, err := e.repo.ListPendingLeaveNotices(ctx, doctorID, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("list pending leave notices: %w", err)
	}
	return list, nil
}

func (e *Engine) MarkLeaveNoticeSent(ctx context.Context, ids []uuid.UUID) error {
	return e.repo.MarkLeaveNoticeSent(ctx, ids)
}

// NextToken is the token the next booking for the doctor's day would get.
func (e *Engine) NextToken(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	return e.tokens.Peek(ctx, doctorID, date)
}

// withDayLocks acquires keys in sorted order so two reassignments between
// the same pair of days cannot deadlock.
func (e *Engine) withDayLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var run func(ctx context.Context, i int) error
	run = func(ctx context.Context, i int) error {
		if i == len(sorted) {
			return fn(ctx)
		}
		return e.locker.WithLock(ctx, sorted[i], func(ctx context.Context) error {
			return run(ctx, i+1)
		})
	}

	err := run(ctx, 0)
	if errors.Is(err, lock.ErrLockNotAcquired) {
		return apperr.Wrap(apperr.ErrConcurrencyConflict, err, "doctor's day is busy, please retry")
	}
	return err
}

func (e *Engine) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     e.clock.Now(),
	}

	if err := e.repo.InsertEvent(ctx, ev); err != nil {
		e.log.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}
