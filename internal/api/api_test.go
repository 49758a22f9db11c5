package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/outpatient-scheduling/internal/appointment"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/clock"
	"github.com/hackgods/outpatient-scheduling/internal/db"
	"github.com/hackgods/outpatient-scheduling/internal/directory"
	"github.com/hackgods/outpatient-scheduling/internal/leave"
	"github.com/hackgods/outpatient-scheduling/internal/lock"
	"github.com/hackgods/outpatient-scheduling/internal/metrics"
	"github.com/hackgods/outpatient-scheduling/internal/notify"
	"github.com/hackgods/outpatient-scheduling/internal/reconcile"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

const testDate = "2025-07-15"

type testServer struct {
	handler  http.Handler
	notices  *notify.Recorder
	dir      *directory.MemoryRepository
	doctorID uuid.UUID
	adminID  uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := zaptest.NewLogger(t)
	clk := clock.NewManual(time.Date(2025, 7, 14, 8, 0, 0, 0, time.UTC))
	split, err := calendar.ParseTimeOfDay("13:00")
	require.NoError(t, err)

	locker := lock.NewKeyedMutex()
	appts := appointment.NewMemoryRepository()
	stats := appointment.NewMemoryStats(10)
	dir := directory.NewMemoryRepository()
	notices := notify.NewRecorder()
	m := metrics.NewCollector("outpatient_scheduling_test")

	store := schedule.NewStore(schedule.NewMemoryRepository(), clk, split, log)
	engine := appointment.NewEngine(appts, appointment.NewTokenAllocator(appts), store, locker, db.NopTransactor{},
		appointment.EngineOptions{Stats: stats, Clock: clk, NoShowGrace: 30 * time.Minute, Logger: log, Metrics: m})
	rec := reconcile.New(engine, store, dir, notices, log, m)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Schedules:  store,
			Engine:     engine,
			Queue:      appointment.NewQueue(appts, stats, store, log),
			Leave:      leave.NewManager(leave.NewMemoryRepository(), store, rec, locker, clk, log, m),
			Reconciler: rec,
			Directory:  dir,
			Metrics:    m,
			Log:        log,
			Env:        "test",
			Version:    "test",
		}),
		notices:  notices,
		dir:      dir,
		doctorID: uuid.New(),
		adminID:  uuid.New(),
	}
}

type caller struct {
	id   uuid.UUID
	role appointment.Actor
}

func (s *testServer) do(t *testing.T, method, path string, as *caller, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("X-Actor-ID", as.id.String())
		req.Header.Set("X-Actor-Role", string(as.role))
	}

	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) doctor() *caller { return &caller{id: s.doctorID, role: appointment.ActorDoctor} }
func (s *testServer) admin() *caller  { return &caller{id: s.adminID, role: appointment.ActorAdmin} }

func (s *testServer) openDay(t *testing.T, date string, capacity int) {
	t.Helper()
	rr := s.do(t, http.MethodPut, "/doctors/"+s.doctorID.String()+"/schedules/"+date, s.doctor(), map[string]any{
		"is_available":          true,
		"work_start":            "09:00",
		"work_end":              "12:00",
		"slot_duration_mins":    30,
		"max_patients_per_slot": capacity,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func (s *testServer) book(t *testing.T, slot string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/appointments", nil, CreateAppointmentRequest{
		PatientID: uuid.New().String(),
		DoctorID:  s.doctorID.String(),
		Date:      testDate,
		SlotStart: slot,
	})
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthWithoutBackends(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	ready := decode[ReadinessResponse](t, rr)
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])
	assert.Equal(t, "disabled", ready.Dependencies["redis"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	s.openDay(t, testDate, 1)

	rr := s.book(t, "09:00")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := decode[AppointmentResponse](t, rr)
	assert.Equal(t, 1, first.Token)
	assert.Equal(t, "booked", first.Status)
	assert.Equal(t, "09:30", first.SlotEnd)

	rr = s.book(t, "09:00")
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "slot_full", decode[ErrorResponse](t, rr).Error)

	rr = s.book(t, "09:10")
	require.Equal(t, http.StatusConflict, rr.Code)
	e := decode[ErrorResponse](t, rr)
	assert.Equal(t, "slot_unavailable", e.Error)
	assert.Equal(t, "no_such_slot", e.Code)

	rr = s.book(t, "09:30")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 2, decode[AppointmentResponse](t, rr).Token)

	rr = s.do(t, http.MethodGet, "/doctors/"+s.doctorID.String()+"/tokens/"+testDate+"/next", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, decode[NextTokenResponse](t, rr).NextToken)

	rr = s.do(t, http.MethodGet, "/doctors/"+s.doctorID.String()+"/queue/"+testDate+"/"+first.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	pos := decode[appointment.Position](t, rr)
	assert.Equal(t, 1, pos.Rank)
	assert.Equal(t, 0, pos.EstimatedWaitMinutes)

	rr = s.do(t, http.MethodGet, "/doctors/"+s.doctorID.String()+"/appointments/"+testDate, s.doctor(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]AppointmentResponse](t, rr), 2)
}

func TestAppointmentLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.openDay(t, testDate, 2)

	appt := decode[AppointmentResponse](t, s.book(t, "10:00"))
	base := "/appointments/" + appt.ID.String()

	rr := s.do(t, http.MethodPost, base+"/check-in", nil, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code, "check-in needs staff")

	rr = s.do(t, http.MethodPost, base+"/check-in", s.doctor(), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "in_queue", decode[AppointmentResponse](t, rr).Status)

	rr = s.do(t, http.MethodPost, base+"/complete", s.doctor(), CompleteAppointmentRequest{Notes: "ok", DurationMins: 12})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	done := decode[AppointmentResponse](t, rr)
	assert.Equal(t, "consulted", done.Status)
	require.NotNil(t, done.Outcome)

	rr = s.do(t, http.MethodPost, base+"/cancel", nil, CancelAppointmentRequest{Reason: "late"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "invalid_state", decode[ErrorResponse](t, rr).Error)
}

func TestCancelIsIdempotentOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.openDay(t, testDate, 1)

	appt := decode[AppointmentResponse](t, s.book(t, "11:00"))
	path := "/appointments/" + appt.ID.String() + "/cancel"

	for i := 0; i < 2; i++ {
		rr := s.do(t, http.MethodPost, path, nil, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		got := decode[AppointmentResponse](t, rr)
		assert.Equal(t, "cancelled", got.Status)
		require.NotNil(t, got.CancelledBy)
		assert.Equal(t, "patient", *got.CancelledBy)
	}
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/appointments/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/doctors/"+s.doctorID.String()+"/schedules/15-07-2025", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/doctors", nil)
	req.Header.Set("X-Actor-Role", "superuser")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleReadsAndPlaceholder(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/doctors/"+s.doctorID.String()+"/schedules/"+testDate, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	placeholder := decode[ScheduleResponse](t, rr)
	assert.False(t, placeholder.Stored)
	assert.False(t, placeholder.IsAvailable)

	s.openDay(t, testDate, 3)
	s.openDay(t, testDate, 4)

	rr = s.do(t, http.MethodGet, "/doctors/"+s.doctorID.String()+"/schedules/"+testDate+"/slots", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	slots := decode[SlotsResponse](t, rr)
	require.Len(t, slots.Slots, 6)
	assert.Equal(t, 4, slots.Slots[0].Capacity)

	rr = s.do(t, http.MethodGet, "/doctors/"+s.doctorID.String()+"/schedules/"+testDate+"/history", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]ScheduleResponse](t, rr), 2)

	rr = s.do(t, http.MethodPut, "/doctors/"+s.doctorID.String()+"/schedules/"+testDate, nil, map[string]any{"is_available": false})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestLeaveApprovalCascade(t *testing.T) {
	s := newTestServer(t)
	s.openDay(t, testDate, 2)

	first := decode[AppointmentResponse](t, s.book(t, "09:00"))
	decode[AppointmentResponse](t, s.book(t, "10:30"))

	rr := s.do(t, http.MethodPost, "/leave-requests", s.doctor(), SubmitLeaveRequest{
		DoctorID:  s.doctorID.String(),
		LeaveType: "full_day",
		StartDate: testDate,
		EndDate:   testDate,
		Reason:    "conference",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	req := decode[LeaveResponse](t, rr)
	assert.Equal(t, "pending", req.Status)

	rr = s.do(t, http.MethodGet, "/leave-requests", s.admin(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]LeaveResponse](t, rr), 1)

	decision := "/leave-requests/" + req.ID.String() + "/decision"
	rr = s.do(t, http.MethodPost, decision, s.doctor(), DecideLeaveRequest{Decision: "approve"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPost, decision, s.admin(), DecideLeaveRequest{Decision: "approve", AdminComment: "ok"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	approved := decode[LeaveResponse](t, rr)
	assert.Equal(t, "approved", approved.Status)
	assert.Equal(t, "complete", approved.Reconciliation)

	rr = s.do(t, http.MethodGet, "/appointments/"+first.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[AppointmentResponse](t, rr)
	assert.Equal(t, "cancelled", got.Status)
	require.NotNil(t, got.CancelledBy)
	assert.Equal(t, "system", *got.CancelledBy)
	assert.Len(t, s.notices.Intents(), 2)

	rr = s.book(t, "11:00")
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "doctor_unavailable", decode[ErrorResponse](t, rr).Code)

	rr = s.do(t, http.MethodPost, "/reconciliations", s.admin(), ReconcileRequest{
		DoctorID:  s.doctorID.String(),
		StartDate: testDate,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[reconcile.Result](t, rr)
	assert.Zero(t, res.Cancelled)
	assert.Zero(t, res.Notified)
	assert.Len(t, s.notices.Intents(), 2)
}

func TestLeaveCancelOnlyByOwner(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/leave-requests", s.doctor(), SubmitLeaveRequest{
		DoctorID:  s.doctorID.String(),
		LeaveType: "half_day",
		StartDate: testDate,
		Session:   "morning",
		Reason:    "appointment",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	req := decode[LeaveResponse](t, rr)
	path := "/leave-requests/" + req.ID.String() + "/cancel"

	other := &caller{id: uuid.New(), role: appointment.ActorDoctor}
	rr = s.do(t, http.MethodPost, path, other, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPost, path, s.doctor(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "cancelled", decode[LeaveResponse](t, rr).Status)

	rr = s.do(t, http.MethodPost, "/leave-requests", other, SubmitLeaveRequest{
		DoctorID:  s.doctorID.String(),
		LeaveType: "full_day",
		StartDate: testDate,
		Reason:    "not mine",
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestDirectoryEndpoints(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/doctors", s.admin(), CreateDoctorRequest{Name: "Dr. Rao"})
	require.Equal(t, http.StatusCreated, rr.Code)
	doc := decode[directory.Doctor](t, rr)

	rr = s.do(t, http.MethodGet, "/doctors/"+doc.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Dr. Rao", decode[directory.Doctor](t, rr).Name)

	rr = s.do(t, http.MethodPost, "/patients", nil, CreatePatientRequest{Name: " "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/patients", nil, CreatePatientRequest{Name: "Asha"})
	require.Equal(t, http.StatusCreated, rr.Code)
	p := decode[directory.Patient](t, rr)

	rr = s.do(t, http.MethodGet, "/patients/"+p.ID.String()+"/appointments", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]AppointmentResponse](t, rr))

	rr = s.do(t, http.MethodGet, "/patients/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpointRecordsRoutes(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/health/live", nil, nil)

	rr := s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `route="/health/live"`)
}
