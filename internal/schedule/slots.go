package schedule

import (
	"strings"

	"github.com/hackgods/outpatient-scheduling/internal/apperr"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
)

// Validate checks an edit before it replaces the active record.
func (a Availability) Validate() error {
	var problems []string

	if a.IsAvailable {
		if a.LeaveReason != "" {
			problems = append(problems, "leave_reason must be empty when available")
		}
		if a.WorkStart >= a.WorkEnd {
			problems = append(problems, "work_start must be before work_end")
		}
		if a.WorkEnd > calendar.NewTimeOfDay(24, 0) {
			problems = append(problems, "work_end must be within the day")
		}
		if a.Break != nil {
			if !a.Break.Valid() {
				problems = append(problems, "break start must be before break end")
			} else if !(calendar.Window{Start: a.WorkStart, End: a.WorkEnd}).Contains(*a.Break) {
				problems = append(problems, "break must lie within working hours")
			}
		}
		if a.SlotDurationMins <= 0 {
			problems = append(problems, "slot_duration_mins must be > 0")
		}
		if a.MaxPatientsPerSlot < 1 {
			problems = append(problems, "max_patients_per_slot must be >= 1")
		}
	} else if strings.TrimSpace(a.LeaveReason) == "" {
		problems = append(problems, "leave_reason is required when unavailable")
	}

	if len(problems) > 0 {
		return apperr.Validation("invalid schedule: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Slots derives the bookable slots of r. The result depends only on r:
// slots step by SlotDurationMins from WorkStart, restart at the end of the
// break, never cross WorkEnd, and skip anything overlapping a half-day block.
func (r *Record) Slots() []Slot {
	if !r.IsAvailable || r.SlotDurationMins <= 0 {
		return nil
	}

	var slots []Slot
	dur := r.SlotDurationMins
	t := r.WorkStart
	for t.Add(dur) <= r.WorkEnd {
		w := calendar.Window{Start: t, End: t.Add(dur)}

		if r.Break != nil && w.Overlaps(*r.Break) {
			t = r.Break.End
			continue
		}

		if !r.blocked(w) {
			slots = append(slots, Slot{Start: w.Start, End: w.End, Capacity: r.MaxPatientsPerSlot})
		}
		t = t.Add(dur)
	}
	return slots
}

// SlotAt returns the slot starting at start, if r offers one.
func (r *Record) SlotAt(start calendar.TimeOfDay) (Slot, bool) {
	for _, s := range r.Slots() {
		if s.Start == start {
			return s, true
		}
	}
	return Slot{}, false
}

func (r *Record) blocked(w calendar.Window) bool {
	for _, b := range r.Blocked {
		if b.Window.Overlaps(w) {
			return true
		}
	}
	return false
}

// SessionWindow resolves a half-day session against the doctor's stored
// working hours. With a break the break separates the sessions; without one
// the day is split at split. Days without hours fall back to 09-13 / 14-18.
func (r *Record) SessionWindow(session Session, split calendar.TimeOfDay) calendar.Window {
	if r.WorkStart >= r.WorkEnd {
		if session == SessionMorning {
			return defaultMorning
		}
		return defaultAfternoon
	}

	if r.Break != nil && r.WorkingHours().Contains(*r.Break) {
		if session == SessionMorning {
			return calendar.Window{Start: r.WorkStart, End: r.Break.Start}
		}
		return calendar.Window{Start: r.Break.End, End: r.WorkEnd}
	}

	if session == SessionMorning {
		end := split
		if end > r.WorkEnd {
			end = r.WorkEnd
		}
		return calendar.Window{Start: r.WorkStart, End: end}
	}
	start := split
	if start < r.WorkStart {
		start = r.WorkStart
	}
	return calendar.Window{Start: start, End: r.WorkEnd}
}
