package leave

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

type Type string

const (
	TypeFullDay Type = "full_day"
	TypeHalfDay Type = "half_day"
)

// Status moves pending → approved | rejected | cancelled; all three are
// terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Reconciliation is "outstanding" from the moment an approval starts its
// cascade until every affected date has been reconciled.
type Reconciliation string

const (
	ReconciliationNone        Reconciliation = ""
	ReconciliationOutstanding Reconciliation = "outstanding"
	ReconciliationComplete    Reconciliation = "complete"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type Request struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	Type           Type
	StartDate      time.Time
	EndDate        time.Time
	Session        schedule.Session
	Reason         string
	Status         Status
	AdminComment   string
	Reconciliation Reconciliation
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DecidedAt      *time.Time
}

func (r *Request) Range() calendar.DateRange {
	return calendar.DateRange{Start: r.StartDate, End: r.EndDate}
}

func (r *Request) Outstanding() bool {
	return r.Reconciliation == ReconciliationOutstanding
}

type SubmitRequest struct {
	DoctorID  uuid.UUID
	Type      Type
	StartDate time.Time
	EndDate   time.Time
	Session   schedule.Session
	Reason    string
}
