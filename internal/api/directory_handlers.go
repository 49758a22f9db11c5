package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/outpatient-scheduling/internal/directory"
)

func createDoctorHandler(repo directory.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDoctorRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "name is required")
			return
		}

		d, err := repo.CreateDoctor(r.Context(), &directory.Doctor{
			ID:        uuid.New(),
			Name:      strings.TrimSpace(req.Name),
			Specialty: req.Specialty,
		})
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func listDoctorsHandler(repo directory.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := repo.ListDoctors(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getDoctorHandler(repo directory.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}

		d, err := repo.GetDoctor(r.Context(), id)
		if errors.Is(err, directory.ErrDoctorNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func createPatientHandler(repo directory.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePatientRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "name is required")
			return
		}

		p, err := repo.CreatePatient(r.Context(), &directory.Patient{
			ID:    uuid.New(),
			Name:  strings.TrimSpace(req.Name),
			Email: req.Email,
		})
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func getPatientHandler(repo directory.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "patientID")
		if !ok {
			return
		}

		p, err := repo.GetPatient(r.Context(), id)
		if errors.Is(err, directory.ErrPatientNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
