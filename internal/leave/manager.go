// Package leave manages doctor leave requests and drives the approval
// cascade into the schedule and the booked appointments.
package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/outpatient-scheduling/internal/apperr"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/clock"
	"github.com/hackgods/outpatient-scheduling/internal/lock"
	"github.com/hackgods/outpatient-scheduling/internal/metrics"
	"github.com/hackgods/outpatient-scheduling/internal/reconcile"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

type ScheduleMarker interface {
	MarkUnavailable(ctx context.Context, doctorID uuid.UUID, rng calendar.DateRange, reason string) ([]schedule.Record, error)
	BlockSession(ctx context.Context, doctorID uuid.UUID, date time.Time, session schedule.Session, reason string) (*schedule.Record, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, doctorID uuid.UUID, rng calendar.DateRange, session schedule.Session) (*reconcile.Result, error)
}

type Manager struct {
	repo       Repository
	schedules  ScheduleMarker
	reconciler Reconciler
	locker     lock.Locker
	clock      clock.Clock
	log        *zap.Logger
	metrics    *metrics.Collector
}

func NewManager(repo Repository, schedules ScheduleMarker, reconciler Reconciler, locker lock.Locker, clk clock.Clock, log *zap.Logger, m *metrics.Collector) *Manager {
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		repo:       repo,
		schedules:  schedules,
		reconciler: reconciler,
		locker:     locker,
		clock:      clk,
		log:        log,
		metrics:    m,
	}
}

func (req SubmitRequest) validate() error {
	var problems []string
	if req.DoctorID == uuid.Nil {
		problems = append(problems, "doctor is required")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		problems = append(problems, "start and end dates are required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		problems = append(problems, "reason is required")
	}

	start, end := calendar.DateOf(req.StartDate), calendar.DateOf(req.EndDate)
	switch req.Type {
	case TypeFullDay:
		if end.Before(start) {
			problems = append(problems, "end date is before start date")
		}
		if req.Session != "" {
			problems = append(problems, "session only applies to half-day leave")
		}
	case TypeHalfDay:
		if !start.Equal(end) {
			problems = append(problems, "half-day leave must start and end on the same date")
		}
		if !req.Session.Valid() {
			problems = append(problems, "half-day leave needs a morning or afternoon session")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown leave type %q", req.Type))
	}

	if len(problems) > 0 {
		return apperr.Validation("invalid leave request: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*Request, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	created, err := m.repo.Create(ctx, &Request{
		ID:        uuid.New(),
		DoctorID:  req.DoctorID,
		Type:      req.Type,
		StartDate: calendar.DateOf(req.StartDate),
		EndDate:   calendar.DateOf(req.EndDate),
		Session:   req.Session,
		Reason:    strings.TrimSpace(req.Reason),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("create leave request: %w", err)
	}

	m.log.Info("leave request submitted",
		zap.String("request_id", created.ID.String()),
		zap.String("doctor_id", created.DoctorID.String()),
		zap.String("type", string(created.Type)),
		zap.String("range", created.Range().String()))
	return created, nil
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := m.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, apperr.NotFound("leave request %s not found", id)
		}
		return nil, fmt.Errorf("load leave request: %w", err)
	}
	return r, nil
}

func (m *Manager) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Request, error) {
	return m.repo.ListByDoctor(ctx, doctorID)
}

func (m *Manager) ListPending(ctx context.Context) ([]Request, error) {
	return m.repo.ListPending(ctx)
}

// Cancel withdraws a pending request. Only the doctor who filed it may.
func (m *Manager) Cancel(ctx context.Context, id, requester uuid.UUID) (*Request, error) {
	var out *Request
	err := m.locker.WithLock(ctx, lock.LeaveRequestKey(id), func(ctx context.Context) error {
		r, err := m.Get(ctx, id)
		if err != nil {
			return err
		}
		if r.DoctorID != requester {
			return apperr.New(apperr.ErrForbidden, "only the requesting doctor may cancel leave request %s", id)
		}
		if r.Status != StatusPending {
			return apperr.InvalidState("leave request %s is %s", id, r.Status)
		}
		if r.Outstanding() {
			return apperr.InvalidState("leave request %s is being approved", id)
		}

		r.Status = StatusCancelled
		r.UpdatedAt = m.clock.Now()
		out, err = m.update(ctx, r, StatusPending)
		return err
	})
	if err != nil {
		return nil, m.lockErr(err)
	}
	return out, nil
}

// Decide approves or rejects a pending request. Approval marks every affected
// date and reconciles its appointments before the request becomes approved.
// If any date fails the request stays pending with reconciliation
// outstanding, and deciding approve again (or RetryOutstanding) resumes it.
func (m *Manager) Decide(ctx context.Context, id uuid.UUID, decision Decision, comment string) (*Request, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, apperr.Validation("decision must be approve or reject, got %q", decision)
	}

	var out *Request
	err := m.locker.WithLock(ctx, lock.LeaveRequestKey(id), func(ctx context.Context) error {
		r, err := m.Get(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return apperr.InvalidState("leave request %s is already %s", id, r.Status)
		}

		if decision == DecisionReject {
			if r.Outstanding() {
				return apperr.InvalidState("leave request %s is being approved", id)
			}
			now := m.clock.Now()
			r.Status = StatusRejected
			r.AdminComment = comment
			r.UpdatedAt = now
			r.DecidedAt = &now
			out, err = m.update(ctx, r, StatusPending)
			if err == nil {
				m.metrics.ObserveLeaveDecision(string(StatusRejected))
			}
			return err
		}

		if comment != "" {
			r.AdminComment = comment
		}
		out, err = m.approve(ctx, r)
		return err
	})
	if err != nil {
		return nil, m.lockErr(err)
	}
	return out, nil
}

// approve must run under the request's lock.
func (m *Manager) approve(ctx context.Context, r *Request) (*Request, error) {
	if !r.Outstanding() {
		r.Reconciliation = ReconciliationOutstanding
		r.UpdatedAt = m.clock.Now()
		flagged, err := m.update(ctx, r, StatusPending)
		if err != nil {
			return nil, err
		}
		r = flagged
	}

	for _, date := range r.Range().Days() {
		if err := m.applyDate(ctx, r, date); err != nil {
			m.metrics.ObserveLeaveDecision("outstanding")
			m.log.Warn("leave approval left outstanding",
				zap.String("request_id", r.ID.String()),
				zap.String("date", calendar.FormatDate(date)),
				zap.Error(err))
			if errors.Is(err, apperr.ErrReconciliationIncomplete) {
				return nil, err
			}
			return nil, apperr.Wrap(apperr.ErrReconciliationIncomplete, err,
				"leave request %s: cascade stopped at %s", r.ID, calendar.FormatDate(date))
		}
	}

	now := m.clock.Now()
	r.Status = StatusApproved
	r.Reconciliation = ReconciliationComplete
	r.UpdatedAt = now
	r.DecidedAt = &now
	approved, err := m.update(ctx, r, StatusPending)
	if err != nil {
		return nil, err
	}

	m.metrics.ObserveLeaveDecision(string(StatusApproved))
	m.log.Info("leave request approved",
		zap.String("request_id", r.ID.String()),
		zap.String("doctor_id", r.DoctorID.String()),
		zap.String("range", r.Range().String()))
	return approved, nil
}

// applyDate holds the doctor's day lock across marking and reconciling, so
// no booking can land between the two.
func (m *Manager) applyDate(ctx context.Context, r *Request, date time.Time) error {
	return m.locker.WithLock(ctx, lock.DoctorDayKey(r.DoctorID, date), func(ctx context.Context) error {
		var session schedule.Session
		if r.Type == TypeHalfDay {
			session = r.Session
			if _, err := m.schedules.BlockSession(ctx, r.DoctorID, date, session, r.Reason); err != nil {
				return fmt.Errorf("block %s session: %w", session, err)
			}
		} else {
			if _, err := m.schedules.MarkUnavailable(ctx, r.DoctorID, calendar.SingleDay(date), r.Reason); err != nil {
				return fmt.Errorf("mark unavailable: %w", err)
			}
		}

		_, err := m.reconciler.Reconcile(ctx, r.DoctorID, calendar.SingleDay(date), session)
		return err
	})
}

// RetryOutstanding resumes every approval whose cascade did not finish.
// It returns how many were completed.
func (m *Manager) RetryOutstanding(ctx context.Context) (int, error) {
	outstanding, err := m.repo.ListOutstanding(ctx)
	if err != nil {
		return 0, fmt.Errorf("list outstanding leave requests: %w", err)
	}

	done := 0
	var errs []error
	for _, r := range outstanding {
		if _, err := m.Decide(ctx, r.ID, DecisionApprove, ""); err != nil {
			errs = append(errs, fmt.Errorf("leave request %s: %w", r.ID, err))
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

func (m *Manager) update(ctx context.Context, r *Request, from Status) (*Request, error) {
	updated, err := m.repo.Update(ctx, r, from)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return nil, apperr.Wrap(apperr.ErrConcurrencyConflict, err, "leave request %s changed concurrently", r.ID)
		}
		return nil, fmt.Errorf("update leave request: %w", err)
	}
	return updated, nil
}

func (m *Manager) lockErr(err error) error {
	if errors.Is(err, lock.ErrLockNotAcquired) {
		return apperr.Wrap(apperr.ErrConcurrencyConflict, err, "leave request is busy, please retry")
	}
	return err
}
