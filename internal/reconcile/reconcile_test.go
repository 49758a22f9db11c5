package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/outpatient-scheduling/internal/apperr"
	"github.com/hackgods/outpatient-scheduling/internal/appointment"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/clock"
	"github.com/hackgods/outpatient-scheduling/internal/db"
	"github.com/hackgods/outpatient-scheduling/internal/directory"
	"github.com/hackgods/outpatient-scheduling/internal/lock"
	"github.com/hackgods/outpatient-scheduling/internal/notify"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

var day = time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)

func tod(s string) calendar.TimeOfDay {
	t, err := calendar.ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

type fixture struct {
	reconciler *Reconciler
	engine     *appointment.Engine
	store      *schedule.Store
	recorder   *notify.Recorder
	doctor     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	clk := clock.NewManual(time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))

	store := schedule.NewStore(schedule.NewMemoryRepository(), clk, tod("13:00"), log)
	repo := appointment.NewMemoryRepository()
	engine := appointment.NewEngine(repo, appointment.NewTokenAllocator(repo), store, lock.NewKeyedMutex(), db.NopTransactor{},
		appointment.EngineOptions{Clock: clk, Logger: log})

	dir := directory.NewMemoryRepository()
	doc, err := dir.CreateDoctor(ctx, &directory.Doctor{Name: "Dr. Meera Rao"})
	require.NoError(t, err)

	_, err = store.SetSchedule(ctx, doc.ID, day, schedule.Availability{
		IsAvailable:        true,
		WorkStart:          tod("09:00"),
		WorkEnd:            tod("18:00"),
		Break:              &calendar.Window{Start: tod("13:00"), End: tod("14:00")},
		SlotDurationMins:   30,
		MaxPatientsPerSlot: 2,
	})
	require.NoError(t, err)

	recorder := notify.NewRecorder()
	return &fixture{
		reconciler: New(engine, store, dir, recorder, log, nil),
		engine:     engine,
		store:      store,
		recorder:   recorder,
		doctor:     doc.ID,
	}
}

func (f *fixture) book(t *testing.T, slot string) *appointment.Appointment {
	t.Helper()
	a, err := f.engine.Book(context.Background(), appointment.BookRequest{
		PatientID: uuid.New(),
		DoctorID:  f.doctor,
		Date:      day,
		SlotStart: tod(slot),
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) status(t *testing.T, id uuid.UUID) appointment.Status {
	t.Helper()
	a, err := f.engine.Get(context.Background(), id)
	require.NoError(t, err)
	return a.Status
}

func TestReconcileFullDayCancelsAndNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.book(t, "09:00")
	t2 := f.book(t, "09:30")
	_, err := f.engine.CheckIn(ctx, t2.ID)
	require.NoError(t, err)

	res, err := f.reconciler.Reconcile(ctx, f.doctor, calendar.SingleDay(day), "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cancelled)
	assert.Equal(t, 2, res.Notified)

	assert.Equal(t, appointment.StatusCancelled, f.status(t, t1.ID))
	assert.Equal(t, appointment.StatusCancelled, f.status(t, t2.ID))

	intents := f.recorder.Intents()
	require.Len(t, intents, 2)
	recipients := []uuid.UUID{intents[0].Recipient, intents[1].Recipient}
	assert.ElementsMatch(t, []uuid.UUID{t1.PatientID, t2.PatientID}, recipients)
	assert.Equal(t, notify.KindCancelledDueToLeave, intents[0].Kind)
	assert.Equal(t, "Dr. Meera Rao", intents[0].Payload["doctorName"])
	assert.Equal(t, "2025-07-16", intents[0].Payload["date"])

	// Re-run is a no-op.
	res, err = f.reconciler.Reconcile(ctx, f.doctor, calendar.SingleDay(day), "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Cancelled)
	assert.Equal(t, 0, res.Notified)
	assert.Len(t, f.recorder.Intents(), 2)
}

func TestReconcileHalfDayOnlyTouchesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.book(t, "10:00")
	t3 := f.book(t, "15:00")

	res, err := f.reconciler.Reconcile(ctx, f.doctor, calendar.SingleDay(day), schedule.SessionMorning)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cancelled)

	assert.Equal(t, appointment.StatusCancelled, f.status(t, t1.ID))
	assert.Equal(t, appointment.StatusBooked, f.status(t, t3.ID))
	require.Len(t, f.recorder.Intents(), 1)
	assert.Equal(t, t1.PatientID, f.recorder.Intents()[0].Recipient)
}

func TestReconcilePublishFailureIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.book(t, "09:00")
	f.recorder.FailWith(errors.New("broker down"))

	_, err := f.reconciler.Reconcile(ctx, f.doctor, calendar.SingleDay(day), "")
	assert.ErrorIs(t, err, apperr.ErrReconciliationIncomplete)
	// The cancellation stuck; the notice is still owed.
	assert.Equal(t, appointment.StatusCancelled, f.status(t, t1.ID))
	assert.Empty(t, f.recorder.Intents())

	f.recorder.FailWith(nil)
	res, err := f.reconciler.Reconcile(ctx, f.doctor, calendar.SingleDay(day), "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Cancelled)
	assert.Equal(t, 1, res.Notified)
	require.Len(t, f.recorder.Intents(), 1)
	assert.Equal(t, t1.PatientID, f.recorder.Intents()[0].Recipient)
}

func TestReconcileLeavesPatientCancellationsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	own := f.book(t, "09:00")
	_, err := f.engine.Cancel(ctx, own.ID, "patient request", appointment.ActorPatient)
	require.NoError(t, err)

	res, err := f.reconciler.Reconcile(ctx, f.doctor, calendar.SingleDay(day), "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Cancelled)
	assert.Empty(t, f.recorder.Intents())
}
