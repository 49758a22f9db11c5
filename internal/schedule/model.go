package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
)

type Session string

const (
	SessionMorning   Session = "morning"
	SessionAfternoon Session = "afternoon"
)

func (s Session) Valid() bool {
	return s == SessionMorning || s == SessionAfternoon
}

// Fallback session windows for days with no working hours on record.
var (
	defaultMorning   = calendar.Window{Start: calendar.NewTimeOfDay(9, 0), End: calendar.NewTimeOfDay(13, 0)}
	defaultAfternoon = calendar.Window{Start: calendar.NewTimeOfDay(14, 0), End: calendar.NewTimeOfDay(18, 0)}
)

// Block is a part of an otherwise available day taken out by a half-day leave.
type Block struct {
	Session Session         `json:"session"`
	Window  calendar.Window `json:"window"`
	Reason  string          `json:"reason"`
}

// Record is a doctor's availability for one calendar date. Only the active
// record (SupersededAt == nil) is used for slot generation.
type Record struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	Date               time.Time
	IsAvailable        bool
	WorkStart          calendar.TimeOfDay
	WorkEnd            calendar.TimeOfDay
	Break              *calendar.Window
	SlotDurationMins   int
	MaxPatientsPerSlot int
	LeaveReason        string
	Notes              string
	Blocked            []Block
	CreatedAt          time.Time
	SupersededAt       *time.Time
}

// NoScheduleReason is the leave reason carried by the placeholder record
// returned for dates nobody has scheduled.
const NoScheduleReason = "no schedule on record"

func placeholder(doctorID uuid.UUID, date time.Time) *Record {
	return &Record{
		DoctorID:    doctorID,
		Date:        calendar.DateOf(date),
		IsAvailable: false,
		LeaveReason: NoScheduleReason,
	}
}

// Stored reports whether r was persisted, as opposed to the default
// unavailable placeholder.
func (r *Record) Stored() bool {
	return r.ID != uuid.Nil
}

func (r *Record) WorkingHours() calendar.Window {
	return calendar.Window{Start: r.WorkStart, End: r.WorkEnd}
}

func (r *Record) Blocks(session Session) bool {
	for _, b := range r.Blocked {
		if b.Session == session {
			return true
		}
	}
	return false
}

// Availability is the caller supplied content of a schedule edit.
type Availability struct {
	IsAvailable        bool               `json:"is_available"`
	WorkStart          calendar.TimeOfDay `json:"work_start"`
	WorkEnd            calendar.TimeOfDay `json:"work_end"`
	Break              *calendar.Window   `json:"break,omitempty"`
	SlotDurationMins   int                `json:"slot_duration_mins"`
	MaxPatientsPerSlot int                `json:"max_patients_per_slot"`
	LeaveReason        string             `json:"leave_reason,omitempty"`
	Notes              string             `json:"notes,omitempty"`
}

type Slot struct {
	Start    calendar.TimeOfDay `json:"start"`
	End      calendar.TimeOfDay `json:"end"`
	Capacity int                `json:"capacity"`
}

func (s Slot) Window() calendar.Window {
	return calendar.Window{Start: s.Start, End: s.End}
}
