package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(570), tod)
	assert.Equal(t, "09:30", tod.String())

	for _, bad := range []string{"9:30", "24:00", "12:60", "noon", ""} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, bad)
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	var w Window
	require.NoError(t, json.Unmarshal([]byte(`{"start":"13:00","end":"14:00"}`), &w))
	assert.Equal(t, NewTimeOfDay(13, 0), w.Start)
	assert.Equal(t, 60, w.Minutes())

	out, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"13:00","end":"14:00"}`, string(out))
}

func TestWindowOverlap(t *testing.T) {
	morning := Window{Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(13, 0)}

	assert.True(t, morning.Overlaps(Window{Start: NewTimeOfDay(12, 30), End: NewTimeOfDay(13, 30)}))
	assert.False(t, morning.Overlaps(Window{Start: NewTimeOfDay(13, 0), End: NewTimeOfDay(13, 30)}))
	assert.True(t, morning.Contains(Window{Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(9, 30)}))
	assert.False(t, morning.Contains(Window{Start: NewTimeOfDay(12, 45), End: NewTimeOfDay(13, 15)}))
}

func TestDateRangeDays(t *testing.T) {
	start := time.Date(2025, 7, 30, 15, 4, 0, 0, time.UTC)
	r := DateRange{Start: start, End: start.AddDate(0, 0, 3)}

	days := r.Days()
	require.Len(t, days, 4)
	assert.Equal(t, "2025-07-30", FormatDate(days[0]))
	assert.Equal(t, "2025-08-02", FormatDate(days[3]))
	assert.True(t, r.Contains(time.Date(2025, 8, 1, 23, 0, 0, 0, time.UTC)))

	backwards := DateRange{Start: r.End, End: r.Start}
	assert.False(t, backwards.Valid())
	assert.Empty(t, backwards.Days())
}
