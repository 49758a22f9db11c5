package api

import (
	"net/http"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

func setScheduleHandler(store *schedule.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateParam(w, r, "date")
		if !ok {
			return
		}

		var avail schedule.Availability
		if !decodeJSON(w, r, &avail) {
			return
		}

		rec, err := store.SetSchedule(r.Context(), doctorID, date, avail)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toScheduleResponse(rec))
	}
}

func getScheduleHandler(store *schedule.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateParam(w, r, "date")
		if !ok {
			return
		}

		rec, err := store.GetSchedule(r.Context(), doctorID, date)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toScheduleResponse(rec))
	}
}

func scheduleHistoryHandler(store *schedule.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateParam(w, r, "date")
		if !ok {
			return
		}

		history, err := store.History(r.Context(), doctorID, date)
		if err != nil {
			handleError(w, err)
			return
		}
		out := make([]ScheduleResponse, 0, len(history))
		for i := range history {
			out = append(out, toScheduleResponse(&history[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func listSlotsHandler(store *schedule.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateParam(w, r, "date")
		if !ok {
			return
		}

		slots, err := store.ListSlots(r.Context(), doctorID, date)
		if err != nil {
			handleError(w, err)
			return
		}
		if slots == nil {
			slots = []schedule.Slot{}
		}
		writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: calendar.FormatDate(date), Slots: slots})
	}
}
