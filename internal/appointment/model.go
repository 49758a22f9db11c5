package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
)

// State transitions:
//
//	booked → in_queue → consulted
//	booked | in_queue → cancelled
//	booked | in_queue → missed
type Status string

const (
	StatusBooked    Status = "booked"
	StatusInQueue   Status = "in_queue"
	StatusConsulted Status = "consulted"
	StatusCancelled Status = "cancelled"
	StatusMissed    Status = "missed"
)

var transitions = map[Status][]Status{
	StatusBooked:    {StatusInQueue, StatusCancelled, StatusMissed},
	StatusInQueue:   {StatusConsulted, StatusCancelled, StatusMissed},
	StatusConsulted: {},
	StatusCancelled: {},
	StatusMissed:    {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Active appointments hold capacity and a place in the queue.
func (s Status) Active() bool {
	return s == StatusBooked || s == StatusInQueue
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Actor identifies who caused a change. The core does not authenticate it.
type Actor string

const (
	ActorPatient Actor = "patient"
	ActorDoctor  Actor = "doctor"
	ActorAdmin   Actor = "admin"
	ActorSystem  Actor = "system"
)

const (
	ReasonDoctorLeave = "doctor on approved leave"
	ReasonRescheduled = "rescheduled"
)

type Appointment struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	Date               time.Time
	SlotStart          calendar.TimeOfDay
	SlotEnd            calendar.TimeOfDay
	Token              int
	Status             Status
	ConsultationType   string
	CancellationReason *string
	CancelledBy        *Actor
	Outcome            *string
	CheckedInAt        *time.Time
	CompletedAt        *time.Time
	LeaveNoticeSent    bool
	RescheduledFrom    *uuid.UUID
	RescheduledTo      *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a *Appointment) Slot() calendar.Window {
	return calendar.Window{Start: a.SlotStart, End: a.SlotEnd}
}

// EndsAt is the wall-clock end of the appointment's slot.
func (a *Appointment) EndsAt() time.Time {
	return a.SlotEnd.On(a.Date)
}

type BookRequest struct {
	PatientID        uuid.UUID
	DoctorID         uuid.UUID
	Date             time.Time
	SlotStart        calendar.TimeOfDay
	ConsultationType string
}

// Outcome closes a consultation. DurationMins, when set, overrides the
// duration measured from the clock.
type Outcome struct {
	Notes        string
	DurationMins int
}

type ReassignResult struct {
	Previous *Appointment
	Current  *Appointment
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
