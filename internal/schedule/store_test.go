package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/outpatient-scheduling/internal/apperr"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/clock"
)

var day = time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)

func tod(s string) calendar.TimeOfDay {
	t, err := calendar.ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestStore(t *testing.T) (*Store, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))
	return NewStore(NewMemoryRepository(), clk, tod("13:00"), zaptest.NewLogger(t)), clk
}

func workingDay() Availability {
	return Availability{
		IsAvailable:        true,
		WorkStart:          tod("09:00"),
		WorkEnd:            tod("12:00"),
		SlotDurationMins:   30,
		MaxPatientsPerSlot: 2,
	}
}

func slotStarts(slots []Slot) []string {
	var out []string
	for _, s := range slots {
		out = append(out, s.Start.String())
	}
	return out
}

func TestAvailabilityValidate(t *testing.T) {
	brk := func(a, b string) *calendar.Window { return &calendar.Window{Start: tod(a), End: tod(b)} }

	cases := []struct {
		name string
		edit func(a *Availability)
		ok   bool
	}{
		{"valid day", func(a *Availability) {}, true},
		{"valid break", func(a *Availability) { a.Break = brk("10:00", "10:30") }, true},
		{"start after end", func(a *Availability) { a.WorkStart = tod("13:00") }, false},
		{"start equals end", func(a *Availability) { a.WorkEnd = a.WorkStart }, false},
		{"break outside hours", func(a *Availability) { a.Break = brk("11:30", "12:30") }, false},
		{"inverted break", func(a *Availability) { a.Break = brk("11:00", "10:00") }, false},
		{"zero slot duration", func(a *Availability) { a.SlotDurationMins = 0 }, false},
		{"zero capacity", func(a *Availability) { a.MaxPatientsPerSlot = 0 }, false},
		{"reason while available", func(a *Availability) { a.LeaveReason = "conference" }, false},
		{"unavailable needs reason", func(a *Availability) { a.IsAvailable = false }, false},
		{"unavailable with reason", func(a *Availability) {
			a.IsAvailable = false
			a.LeaveReason = "conference"
			a.SlotDurationMins = 0
		}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := workingDay()
			tc.edit(&a)
			err := a.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrValidation)
			}
		})
	}
}

func TestSlotsSkipBreakAndRestartAfterIt(t *testing.T) {
	rec := &Record{
		IsAvailable:        true,
		WorkStart:          tod("09:00"),
		WorkEnd:            tod("12:00"),
		Break:              &calendar.Window{Start: tod("10:15"), End: tod("10:45")},
		SlotDurationMins:   30,
		MaxPatientsPerSlot: 3,
	}

	slots := rec.Slots()
	assert.Equal(t, []string{"09:00", "09:30", "10:45", "11:15"}, slotStarts(slots))
	assert.Equal(t, 3, slots[0].Capacity)

	// Pure: same record, same slots.
	assert.Equal(t, slots, rec.Slots())
}

func TestSlotsEmptyWhenUnavailable(t *testing.T) {
	rec := &Record{
		IsAvailable:      false,
		WorkStart:        tod("09:00"),
		WorkEnd:          tod("12:00"),
		SlotDurationMins: 30,
		LeaveReason:      "conference",
	}
	assert.Empty(t, rec.Slots())
}

func TestSlotsDropPartialTrailingSlot(t *testing.T) {
	rec := &Record{IsAvailable: true, WorkStart: tod("09:00"), WorkEnd: tod("10:10"), SlotDurationMins: 20, MaxPatientsPerSlot: 1}
	assert.Equal(t, []string{"09:00", "09:20", "09:40"}, slotStarts(rec.Slots()))
}

func TestGetScheduleReturnsPlaceholder(t *testing.T) {
	store, _ := newTestStore(t)
	doctor := uuid.New()

	rec, err := store.GetSchedule(context.Background(), doctor, day)
	require.NoError(t, err)
	assert.False(t, rec.Stored())
	assert.False(t, rec.IsAvailable)
	assert.Equal(t, NoScheduleReason, rec.LeaveReason)

	slots, err := store.ListSlots(context.Background(), doctor, day)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSetScheduleSupersedesPreviousRecord(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()
	doctor := uuid.New()

	first, err := store.SetSchedule(ctx, doctor, day, workingDay())
	require.NoError(t, err)

	clk.Advance(time.Hour)
	edit := workingDay()
	edit.SlotDurationMins = 60
	second, err := store.SetSchedule(ctx, doctor, day, edit)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	active, err := store.GetSchedule(ctx, doctor, day)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, slotStarts(active.Slots()))

	history, err := store.History(ctx, doctor, day)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Nil(t, history[0].SupersededAt)
	require.NotNil(t, history[1].SupersededAt)
}

func TestSetScheduleRejectsInvalid(t *testing.T) {
	store, _ := newTestStore(t)
	bad := workingDay()
	bad.MaxPatientsPerSlot = 0

	_, err := store.SetSchedule(context.Background(), uuid.New(), day, bad)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMarkUnavailableCoversRangeAndKeepsMetadata(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	doctor := uuid.New()

	_, err := store.SetSchedule(ctx, doctor, day, workingDay())
	require.NoError(t, err)

	rng := calendar.DateRange{Start: day, End: day.AddDate(0, 0, 1)}
	recs, err := store.MarkUnavailable(ctx, doctor, rng, "conference")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first, err := store.GetSchedule(ctx, doctor, day)
	require.NoError(t, err)
	assert.True(t, first.Stored())
	assert.False(t, first.IsAvailable)
	assert.Equal(t, "conference", first.LeaveReason)
	assert.Equal(t, 2, first.MaxPatientsPerSlot)
	assert.Empty(t, first.Slots())

	// The second day had no record and now has an unavailable one.
	second, err := store.GetSchedule(ctx, doctor, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, second.Stored())
	assert.False(t, second.IsAvailable)

	// Re-running with the same reason does not add versions.
	_, err = store.MarkUnavailable(ctx, doctor, rng, "conference")
	require.NoError(t, err)
	history, err := store.History(ctx, doctor, day)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMarkUnavailableRejectsBackwardsRange(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.MarkUnavailable(context.Background(), uuid.New(),
		calendar.DateRange{Start: day, End: day.AddDate(0, 0, -1)}, "x")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSessionWindow(t *testing.T) {
	split := tod("13:00")

	withBreak := &Record{WorkStart: tod("08:00"), WorkEnd: tod("16:00"), Break: &calendar.Window{Start: tod("12:00"), End: tod("12:30")}}
	assert.Equal(t, "08:00-12:00", withBreak.SessionWindow(SessionMorning, split).String())
	assert.Equal(t, "12:30-16:00", withBreak.SessionWindow(SessionAfternoon, split).String())

	noBreak := &Record{WorkStart: tod("10:00"), WorkEnd: tod("17:00")}
	assert.Equal(t, "10:00-13:00", noBreak.SessionWindow(SessionMorning, split).String())
	assert.Equal(t, "13:00-17:00", noBreak.SessionWindow(SessionAfternoon, split).String())

	none := placeholder(uuid.New(), day)
	assert.Equal(t, "09:00-13:00", none.SessionWindow(SessionMorning, split).String())
	assert.Equal(t, "14:00-18:00", none.SessionWindow(SessionAfternoon, split).String())
}

func TestBlockSessionRemovesOnlyThatSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	doctor := uuid.New()

	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	avail := workingDay()
	avail.WorkEnd = tod("17:00")
	_, err := store.SetSchedule(ctx, doctor, date, avail)
	require.NoError(t, err)

	rec, err := store.BlockSession(ctx, doctor, date, SessionMorning, "clinic audit")
	require.NoError(t, err)
	assert.True(t, rec.IsAvailable)
	require.Len(t, rec.Blocked, 1)

	starts := slotStarts(rec.Slots())
	assert.Equal(t, "13:00", starts[0])
	assert.Len(t, starts, 8)

	// Idempotent on re-run.
	again, err := store.BlockSession(ctx, doctor, date, SessionMorning, "clinic audit")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
}

func TestBlockSessionWithoutScheduleIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	rec, err := store.BlockSession(context.Background(), uuid.New(), day, SessionAfternoon, "x")
	require.NoError(t, err)
	assert.False(t, rec.Stored())

	_, err = store.BlockSession(context.Background(), uuid.New(), day, Session("evening"), "x")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
