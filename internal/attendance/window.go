package attendance

import "time"

// DayLayout formats the calendar-day key of an event.
const DayLayout = "2006-01-02"

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// DayWindow returns the local calendar day containing now: from local
// midnight at or before now up to, but excluding, the next local midnight.
func DayWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// DayWindowFor parses a YYYY-MM-DD key into its window.
func DayWindowFor(day string, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DayLayout, day, loc)
	if err != nil {
		return Window{}, validationError("day", "must be YYYY-MM-DD")
	}
	return DayWindow(t, loc), nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Day is the calendar-day key of the window.
func (w Window) Day() string {
	return w.Start.Format(DayLayout)
}
