package appointment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/outpatient-scheduling/internal/apperr"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
)

// Position is a read-only view of where an appointment stands in the
// doctor's queue. EstimatedWaitMinutes is a heuristic from recent
// consultation durations, not a promise.
type Position struct {
	AppointmentID        uuid.UUID `json:"appointment_id"`
	Token                int       `json:"token"`
	Rank                 int       `json:"rank"`
	TotalAhead           int       `json:"total_ahead"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	AverageSource        string    `json:"average_source"`
}

const (
	AverageObserved     = "observed"
	AverageSlotDuration = "slot_duration"
)

// Queue ranks by token, never by check-in time, so a late check-in never
// moves anyone back.
type Queue struct {
	repo      Repository
	stats     DurationStats
	schedules ScheduleReader
	log       *zap.Logger
}

func NewQueue(repo Repository, stats DurationStats, schedules ScheduleReader, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{repo: repo, stats: stats, schedules: schedules, log: log}
}

func (q *Queue) Position(ctx context.Context, doctorID uuid.UUID, date time.Time, appointmentID uuid.UUID) (*Position, error) {
	day, err := q.repo.ListForDay(ctx, doctorID, calendar.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	var target *Appointment
	rank := 0
	for i := range day {
		a := &day[i]
		if a.ID == appointmentID {
			target = a
		}
		if !a.Status.Active() {
			continue
		}
		rank++
		if a.ID == appointmentID {
			break
		}
	}
	if target == nil {
		return nil, apperr.NotFound("appointment %s is not on this doctor's %s queue", appointmentID, calendar.FormatDate(date))
	}
	if !target.Status.Active() {
		return nil, apperr.InvalidState("appointment %s is %s and no longer queued", appointmentID, target.Status)
	}

	avg, source := q.averageMinutes(ctx, doctorID, date)
	ahead := rank - 1
	return &Position{
		AppointmentID:        appointmentID,
		Token:                target.Token,
		Rank:                 rank,
		TotalAhead:           ahead,
		EstimatedWaitMinutes: int(math.Ceil(float64(ahead) * avg)),
		AverageSource:        source,
	}, nil
}

func (q *Queue) averageMinutes(ctx context.Context, doctorID uuid.UUID, date time.Time) (float64, string) {
	avg, ok, err := q.stats.Average(ctx, doctorID)
	if err != nil {
		q.log.Warn("consultation average unavailable", zap.String("doctor_id", doctorID.String()), zap.Error(err))
	}
	if ok && err == nil {
		return avg.Minutes(), AverageObserved
	}

	rec, err := q.schedules.GetSchedule(ctx, doctorID, date)
	if err != nil || rec.SlotDurationMins <= 0 {
		return 0, AverageSlotDuration
	}
	return float64(rec.SlotDurationMins), AverageSlotDuration
}
