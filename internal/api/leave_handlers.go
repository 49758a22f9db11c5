package api

import (
	"net/http"

	"github.com/hackgods/outpatient-scheduling/internal/appointment"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/leave"
	"github.com/hackgods/outpatient-scheduling/internal/reconcile"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

func submitLeaveHandler(mgr *leave.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitLeaveRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, ok := parseUUIDField(w, "doctor_id", req.DoctorID)
		if !ok {
			return
		}
		caller := identityFrom(r.Context())
		if caller.Role == appointment.ActorDoctor && caller.ID != doctorID {
			writeError(w, http.StatusForbidden, "forbidden", "doctors may only request their own leave")
			return
		}

		start, ok := parseDateField(w, "start_date", req.StartDate)
		if !ok {
			return
		}
		end := start
		if req.EndDate != "" {
			if end, ok = parseDateField(w, "end_date", req.EndDate); !ok {
				return
			}
		}

		created, err := mgr.Submit(r.Context(), leave.SubmitRequest{
			DoctorID:  doctorID,
			Type:      leave.Type(req.LeaveType),
			StartDate: start,
			EndDate:   end,
			Session:   schedule.Session(req.Session),
			Reason:    req.Reason,
		})
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toLeaveResponse(created))
	}
}

func getLeaveHandler(mgr *leave.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		req, err := mgr.Get(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLeaveResponse(req))
	}
}

func listPendingLeaveHandler(mgr *leave.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := mgr.ListPending(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLeaveList(list))
	}
}

func listDoctorLeaveHandler(mgr *leave.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}

		list, err := mgr.ListByDoctor(r.Context(), doctorID)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLeaveList(list))
	}
}

func cancelLeaveHandler(mgr *leave.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		req, err := mgr.Cancel(r.Context(), id, identityFrom(r.Context()).ID)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLeaveResponse(req))
	}
}

func decideLeaveHandler(mgr *leave.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var body DecideLeaveRequest
		if !decodeJSON(w, r, &body) {
			return
		}

		req, err := mgr.Decide(r.Context(), id, leave.Decision(body.Decision), body.AdminComment)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLeaveResponse(req))
	}
}

func retryOutstandingHandler(mgr *leave.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		done, err := mgr.RetryOutstanding(r.Context())
		resp := RetryResponse{Completed: done}
		if err != nil {
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// reconcileHandler re-runs reconciliation for a doctor and range. Applying
// it to a range that is already reconciled changes nothing.
func reconcileHandler(rec *reconcile.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReconcileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, ok := parseUUIDField(w, "doctor_id", req.DoctorID)
		if !ok {
			return
		}
		start, ok := parseDateField(w, "start_date", req.StartDate)
		if !ok {
			return
		}
		end := start
		if req.EndDate != "" {
			if end, ok = parseDateField(w, "end_date", req.EndDate); !ok {
				return
			}
		}
		session := schedule.Session(req.Session)
		if session != "" && !session.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_session", "session must be morning or afternoon")
			return
		}

		res, err := rec.Reconcile(r.Context(), doctorID, calendar.DateRange{Start: start, End: end}, session)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
