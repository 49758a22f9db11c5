package api

import (
	"net/http"

	"github.com/hackgods/outpatient-scheduling/internal/appointment"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
)

func createAppointmentHandler(svc *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		patientID, ok := parseUUIDField(w, "patient_id", req.PatientID)
		if !ok {
			return
		}
		doctorID, ok := parseUUIDField(w, "doctor_id", req.DoctorID)
		if !ok {
			return
		}
		date, ok := parseDateField(w, "date", req.Date)
		if !ok {
			return
		}
		start, ok := parseTimeField(w, "slot_start", req.SlotStart)
		if !ok {
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID:        patientID,
			DoctorID:         doctorID,
			Date:             date,
			SlotStart:        start,
			ConsultationType: req.ConsultationType,
		})
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func checkInHandler(svc *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.CheckIn(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeHandler(svc *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req CompleteAppointmentRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}

		appt, err := svc.Complete(r.Context(), id, appointment.Outcome{
			Notes:        req.Notes,
			DurationMins: req.DurationMins,
		})
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelHandler(svc *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}

		actor := identityFrom(r.Context()).Role
		if actor == "" {
			actor = appointment.ActorPatient
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason, actor)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func markMissedHandler(svc *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.MarkMissed(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func reassignHandler(svc *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req ReassignAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, ok := parseDateField(w, "date", req.Date)
		if !ok {
			return
		}
		start, ok := parseTimeField(w, "slot_start", req.SlotStart)
		if !ok {
			return
		}

		res, err := svc.Reassign(r.Context(), id, date, start)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ReassignResponse{
			Previous: toAppointmentResponse(res.Previous),
			Current:  toAppointmentResponse(res.Current),
		})
	}
}

func listDayHandler(svc *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateParam(w, r, "date")
		if !ok {
			return
		}

		list, err := svc.ListForDay(r.Context(), doctorID, date)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

func listPatientAppointmentsHandler(svc *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := uuidParam(w, r, "patientID")
		if !ok {
			return
		}

		list, err := svc.ListByPatient(r.Context(), patientID, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

func nextTokenHandler(svc *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateParam(w, r, "date")
		if !ok {
			return
		}

		next, err := svc.NextToken(r.Context(), doctorID, date)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, NextTokenResponse{DoctorID: doctorID, Date: calendar.FormatDate(date), NextToken: next})
	}
}

func queuePositionHandler(q *appointment.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateParam(w, r, "date")
		if !ok {
			return
		}
		apptID, ok := uuidParam(w, r, "appointmentID")
		if !ok {
			return
		}

		pos, err := q.Position(r.Context(), doctorID, date, apptID)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pos)
	}
}
