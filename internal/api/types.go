package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/outpatient-scheduling/internal/appointment"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/leave"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

type CreateAppointmentRequest struct {
	PatientID        string `json:"patient_id"`
	DoctorID         string `json:"doctor_id"`
	Date             string `json:"date"`
	SlotStart        string `json:"slot_start"`
	ConsultationType string `json:"consultation_type,omitempty"`
}

type CompleteAppointmentRequest struct {
	Notes        string `json:"notes,omitempty"`
	DurationMins int    `json:"duration_mins,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type ReassignAppointmentRequest struct {
	Date      string `json:"date"`
	SlotStart string `json:"slot_start"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	DoctorID           uuid.UUID  `json:"doctor_id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	Date               string     `json:"date"`
	SlotStart          string     `json:"slot_start"`
	SlotEnd            string     `json:"slot_end"`
	Token              int        `json:"token"`
	Status             string     `json:"status"`
	ConsultationType   string     `json:"consultation_type,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancelledBy        *string    `json:"cancelled_by,omitempty"`
	Outcome            *string    `json:"outcome,omitempty"`
	CheckedInAt        *time.Time `json:"checked_in_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	RescheduledFrom    *uuid.UUID `json:"rescheduled_from,omitempty"`
	RescheduledTo      *uuid.UUID `json:"rescheduled_to,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 a.ID,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		Date:               calendar.FormatDate(a.Date),
		SlotStart:          a.SlotStart.String(),
		SlotEnd:            a.SlotEnd.String(),
		Token:              a.Token,
		Status:             string(a.Status),
		ConsultationType:   a.ConsultationType,
		CancellationReason: a.CancellationReason,
		Outcome:            a.Outcome,
		CheckedInAt:        a.CheckedInAt,
		CompletedAt:        a.CompletedAt,
		RescheduledFrom:    a.RescheduledFrom,
		RescheduledTo:      a.RescheduledTo,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if a.CancelledBy != nil {
		by := string(*a.CancelledBy)
		resp.CancelledBy = &by
	}
	return resp
}

func toAppointmentList(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

type ReassignResponse struct {
	Previous AppointmentResponse `json:"previous"`
	Current  AppointmentResponse `json:"current"`
}

type NextTokenResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	NextToken int       `json:"next_token"`
}

type ScheduleResponse struct {
	ID                 *uuid.UUID       `json:"id,omitempty"`
	DoctorID           uuid.UUID        `json:"doctor_id"`
	Date               string           `json:"date"`
	Stored             bool             `json:"stored"`
	IsAvailable        bool             `json:"is_available"`
	WorkStart          string           `json:"work_start,omitempty"`
	WorkEnd            string           `json:"work_end,omitempty"`
	Break              *calendar.Window `json:"break,omitempty"`
	SlotDurationMins   int              `json:"slot_duration_mins,omitempty"`
	MaxPatientsPerSlot int              `json:"max_patients_per_slot,omitempty"`
	LeaveReason        string           `json:"leave_reason,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	Blocked            []schedule.Block `json:"blocked,omitempty"`
	CreatedAt          *time.Time       `json:"created_at,omitempty"`
	SupersededAt       *time.Time       `json:"superseded_at,omitempty"`
}

func toScheduleResponse(r *schedule.Record) ScheduleResponse {
	resp := ScheduleResponse{
		DoctorID:     r.DoctorID,
		Date:         calendar.FormatDate(r.Date),
		Stored:       r.Stored(),
		IsAvailable:  r.IsAvailable,
		LeaveReason:  r.LeaveReason,
		Notes:        r.Notes,
		Blocked:      r.Blocked,
		SupersededAt: r.SupersededAt,
	}
	if !r.Stored() {
		return resp
	}

	id, created := r.ID, r.CreatedAt
	resp.ID = &id
	resp.CreatedAt = &created
	resp.WorkStart = r.WorkStart.String()
	resp.WorkEnd = r.WorkEnd.String()
	resp.Break = r.Break
	resp.SlotDurationMins = r.SlotDurationMins
	resp.MaxPatientsPerSlot = r.MaxPatientsPerSlot
	return resp
}

type SlotsResponse struct {
	DoctorID uuid.UUID       `json:"doctor_id"`
	Date     string          `json:"date"`
	Slots    []schedule.Slot `json:"slots"`
}

type SubmitLeaveRequest struct {
	DoctorID  string `json:"doctor_id"`
	LeaveType string `json:"leave_type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Session   string `json:"session,omitempty"`
	Reason    string `json:"reason"`
}

type DecideLeaveRequest struct {
	Decision     string `json:"decision"`
	AdminComment string `json:"admin_comment,omitempty"`
}

type LeaveResponse struct {
	ID             uuid.UUID  `json:"id"`
	DoctorID       uuid.UUID  `json:"doctor_id"`
	LeaveType      string     `json:"leave_type"`
	StartDate      string     `json:"start_date"`
	EndDate        string     `json:"end_date"`
	Session        string     `json:"session,omitempty"`
	Reason         string     `json:"reason"`
	Status         string     `json:"status"`
	AdminComment   string     `json:"admin_comment,omitempty"`
	Reconciliation string     `json:"reconciliation,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
}

func toLeaveResponse(r *leave.Request) LeaveResponse {
	return LeaveResponse{
		ID:             r.ID,
		DoctorID:       r.DoctorID,
		LeaveType:      string(r.Type),
		StartDate:      calendar.FormatDate(r.StartDate),
		EndDate:        calendar.FormatDate(r.EndDate),
		Session:        string(r.Session),
		Reason:         r.Reason,
		Status:         string(r.Status),
		AdminComment:   r.AdminComment,
		Reconciliation: string(r.Reconciliation),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		DecidedAt:      r.DecidedAt,
	}
}

func toLeaveList(list []leave.Request) []LeaveResponse {
	out := make([]LeaveResponse, 0, len(list))
	for i := range list {
		out = append(out, toLeaveResponse(&list[i]))
	}
	return out
}

type ReconcileRequest struct {
	DoctorID  string `json:"doctor_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Session   string `json:"session,omitempty"`
}

type RetryResponse struct {
	Completed int    `json:"completed"`
	Error     string `json:"error,omitempty"`
}

type CreateDoctorRequest struct {
	Name      string  `json:"name"`
	Specialty *string `json:"specialty,omitempty"`
}

type CreatePatientRequest struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
