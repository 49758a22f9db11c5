// Package reconcile resolves booked appointments against newly approved
// doctor leave.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/outpatient-scheduling/internal/apperr"
	"github.com/hackgods/outpatient-scheduling/internal/appointment"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/directory"
	"github.com/hackgods/outpatient-scheduling/internal/metrics"
	"github.com/hackgods/outpatient-scheduling/internal/notify"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

// Appointments is the slice of the appointment engine the reconciler drives.
// Status changes go through the engine, never around it.
type Appointments interface {
	ListActiveInRange(ctx context.Context, doctorID uuid.UUID, rng calendar.DateRange) ([]appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, actor appointment.Actor) (*appointment.Appointment, error)
	PendingLeaveNotices(ctx context.Context, doctorID uuid.UUID, rng calendar.DateRange) ([]appointment.Appointment, error)
	MarkLeaveNoticeSent(ctx context.Context, ids []uuid.UUID) error
}

type SessionWindows interface {
	SessionWindow(ctx context.Context, doctorID uuid.UUID, date time.Time, session schedule.Session) (calendar.Window, error)
}

type Result struct {
	Cancelled int `json:"cancelled"`
	Notified  int `json:"notified"`
}

type Reconciler struct {
	appointments Appointments
	sessions     SessionWindows
	directory    directory.Repository
	publisher    notify.Publisher
	log          *zap.Logger
	metrics      *metrics.Collector
}

func New(appointments Appointments, sessions SessionWindows, dir directory.Repository, publisher notify.Publisher, log *zap.Logger, m *metrics.Collector) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		appointments: appointments,
		sessions:     sessions,
		directory:    dir,
		publisher:    publisher,
		log:          log,
		metrics:      m,
	}
}

// Reconcile cancels every active appointment of the doctor in rng (for a
// half-day session, only those overlapping the session window) and hands
// one notice per cancellation to the publisher. Notices are marked sent only
// after a successful publish, so a re-run after any failure cancels nothing
// new and re-publishes only what is still owed.
func (r *Reconciler) Reconcile(ctx context.Context, doctorID uuid.UUID, rng calendar.DateRange, session schedule.Session) (*Result, error) {
	res, err := r.reconcile(ctx, doctorID, rng, session)
	if err != nil {
		r.metrics.ObserveReconciliation("incomplete", res.Cancelled)
		r.log.Error("reconciliation incomplete",
			zap.String("doctor_id", doctorID.String()),
			zap.String("range", rng.String()),
			zap.String("session", string(session)),
			zap.Error(err))
		return res, apperr.Wrap(apperr.ErrReconciliationIncomplete, err,
			"reconciliation for %s incomplete", rng)
	}

	r.metrics.ObserveReconciliation("complete", res.Cancelled)
	r.log.Info("reconciliation complete",
		zap.String("doctor_id", doctorID.String()),
		zap.String("range", rng.String()),
		zap.Int("cancelled", res.Cancelled),
		zap.Int("notified", res.Notified))
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, doctorID uuid.UUID, rng calendar.DateRange, session schedule.Session) (*Result, error) {
	res := &Result{}

	active, err := r.appointments.ListActiveInRange(ctx, doctorID, rng)
	if err != nil {
		return res, err
	}

	windows := make(map[time.Time]calendar.Window)
	for _, a := range active {
		if session != "" {
			w, ok := windows[a.Date]
			if !ok {
				w, err = r.sessions.SessionWindow(ctx, doctorID, a.Date, session)
				if err != nil {
					return res, fmt.Errorf("session window for %s: %w", calendar.FormatDate(a.Date), err)
				}
				windows[a.Date] = w
			}
			if !a.Slot().Overlaps(w) {
				continue
			}
		}

		if _, err := r.appointments.Cancel(ctx, a.ID, appointment.ReasonDoctorLeave, appointment.ActorSystem); err != nil {
			return res, fmt.Errorf("cancel appointment %s: %w", a.ID, err)
		}
		res.Cancelled++
	}

	pending, err := r.appointments.PendingLeaveNotices(ctx, doctorID, rng)
	if err != nil {
		return res, err
	}
	if len(pending) == 0 {
		return res, nil
	}

	name, err := directory.DoctorName(ctx, r.directory, doctorID)
	if err != nil {
		return res, fmt.Errorf("resolve doctor name: %w", err)
	}

	intents := make([]notify.Intent, 0, len(pending))
	ids := make([]uuid.UUID, 0, len(pending))
	for _, a := range pending {
		intents = append(intents, notify.Intent{
			Recipient: a.PatientID,
			Kind:      notify.KindCancelledDueToLeave,
			Payload: map[string]any{
				"appointmentId": a.ID.String(),
				"doctorName":    name,
				"date":          calendar.FormatDate(a.Date),
			},
		})
		ids = append(ids, a.ID)
	}

	if err := r.publisher.Publish(ctx, intents...); err != nil {
		r.metrics.ObserveNotifications(notify.KindCancelledDueToLeave, "failed", len(intents))
		return res, fmt.Errorf("publish leave notices: %w", err)
	}
	r.metrics.ObserveNotifications(notify.KindCancelledDueToLeave, "published", len(intents))

	if err := r.appointments.MarkLeaveNoticeSent(ctx, ids); err != nil {
		return res, err
	}
	res.Notified = len(ids)
	return res, nil
}
