package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/outpatient-scheduling/internal/appointment"
	"github.com/hackgods/outpatient-scheduling/internal/directory"
	"github.com/hackgods/outpatient-scheduling/internal/leave"
	"github.com/hackgods/outpatient-scheduling/internal/metrics"
	"github.com/hackgods/outpatient-scheduling/internal/reconcile"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

type RouterConfig struct {
	Schedules  *schedule.Store
	Engine     *appointment.Engine
	Queue      *appointment.Queue
	Leave      *leave.Manager
	Reconciler *reconcile.Reconciler
	Directory  directory.Repository
	Metrics    *metrics.Collector
	Log        *zap.Logger
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log, cfg.Metrics))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)

		staff := RequireRole(appointment.ActorDoctor, appointment.ActorAdmin)
		admin := RequireRole(appointment.ActorAdmin)

		r.Get("/doctors", listDoctorsHandler(cfg.Directory))
		r.With(admin).Post("/doctors", createDoctorHandler(cfg.Directory))
		r.Post("/patients", createPatientHandler(cfg.Directory))
		r.Get("/patients/{patientID}", getPatientHandler(cfg.Directory))
		r.Get("/patients/{patientID}/appointments", listPatientAppointmentsHandler(cfg.Engine))

		r.Route("/doctors/{doctorID}", func(r chi.Router) {
			r.Get("/", getDoctorHandler(cfg.Directory))

			r.With(staff).Put("/schedules/{date}", setScheduleHandler(cfg.Schedules))
			r.Get("/schedules/{date}", getScheduleHandler(cfg.Schedules))
			r.Get("/schedules/{date}/slots", listSlotsHandler(cfg.Schedules))
			r.Get("/schedules/{date}/history", scheduleHistoryHandler(cfg.Schedules))

			r.Get("/tokens/{date}/next", nextTokenHandler(cfg.Engine))
			r.Get("/queue/{date}/{appointmentID}", queuePositionHandler(cfg.Queue))
			r.With(staff).Get("/appointments/{date}", listDayHandler(cfg.Engine))
			r.Get("/leave-requests", listDoctorLeaveHandler(cfg.Leave))
		})

		r.Post("/appointments", createAppointmentHandler(cfg.Engine))
		r.Route("/appointments/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(cfg.Engine))
			r.Post("/cancel", cancelHandler(cfg.Engine))
			r.Post("/reassign", reassignHandler(cfg.Engine))

			r.Group(func(r chi.Router) {
				r.Use(staff)
				r.Post("/check-in", checkInHandler(cfg.Engine))
				r.Post("/complete", completeHandler(cfg.Engine))
				r.Post("/missed", markMissedHandler(cfg.Engine))
			})
		})

		r.With(RequireRole(appointment.ActorDoctor)).Post("/leave-requests", submitLeaveHandler(cfg.Leave))
		r.With(admin).Get("/leave-requests", listPendingLeaveHandler(cfg.Leave))
		r.Route("/leave-requests/{id}", func(r chi.Router) {
			r.Get("/", getLeaveHandler(cfg.Leave))
			r.With(RequireRole(appointment.ActorDoctor)).Post("/cancel", cancelLeaveHandler(cfg.Leave))
			r.With(admin).Post("/decision", decideLeaveHandler(cfg.Leave))
		})

		r.Route("/reconciliations", func(r chi.Router) {
			r.Use(admin)
			r.Post("/", reconcileHandler(cfg.Reconciler))
			r.Post("/retry", retryOutstandingHandler(cfg.Leave))
		})
	})

	return r
}
