package attendance

import (
	"context"
	"time"
)

// Summary is today's headcount.
type Summary struct {
	Day     string `json:"day"`
	Total   int    `json:"total"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
}

// TrendPoint is the attendance of one day.
type TrendPoint struct {
	Day     string  `json:"day"`
	Weekday string  `json:"weekday"`
	Present int     `json:"present"`
	Percent float64 `json:"percent"`
}

// MaxTrendDays caps Trend.
const MaxTrendDays = 31

// DayLog returns the events of one day joined with their students, newest
// first.
func (s *Service) DayLog(ctx context.Context, w Window) ([]LogEntry, error) {
	events, students, err := s.eventsWithRoster(ctx, w.Start, w.End)
	if err != nil {
		return nil, err
	}

	byID := indexStudents(students)
	entries := make([]LogEntry, 0, len(events))
	for _, evt := range events {
		entry := LogEntry{Event: evt, Name: UnknownStudentName}
		if st, ok := byID[evt.StudentID]; ok {
			entry.Name = st.Name
			entry.BadgeID = st.BadgeID
			entry.ClassName = st.ClassName
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Summary counts distinct students present today against the roster.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	today := s.Today()
	events, students, err := s.eventsWithRoster(ctx, today.Start, today.End)
	if err != nil {
		return Summary{}, err
	}

	byID := indexStudents(students)
	present := make(map[string]struct{})
	for _, evt := range events {
		if _, ok := byID[evt.StudentID]; ok {
			present[evt.StudentID] = struct{}{}
		}
	}
	return Summary{
		Day:     today.Day(),
		Total:   len(students),
		Present: len(present),
		Absent:  len(students) - len(present),
	}, nil
}

// Trend returns one point per day for the last days days, oldest first,
// ending today. Percent is relative to the current roster size.
func (s *Service) Trend(ctx context.Context, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = 7
	}
	if days > MaxTrendDays {
		return nil, validationError("days", "must be at most 31")
	}

	today := s.Today()
	first := DayWindow(today.Start.AddDate(0, 0, -(days - 1)), s.loc)
	events, students, err := s.eventsWithRoster(ctx, first.Start, today.End)
	if err != nil {
		return nil, err
	}

	byID := indexStudents(students)
	perDay := make(map[string]map[string]struct{})
	for _, evt := range events {
		if _, ok := byID[evt.StudentID]; !ok {
			continue
		}
		day := DayWindow(evt.Timestamp, s.loc).Day()
		if perDay[day] == nil {
			perDay[day] = make(map[string]struct{})
		}
		perDay[day][evt.StudentID] = struct{}{}
	}

	points := make([]TrendPoint, 0, days)
	for i := 0; i < days; i++ {
		w := DayWindow(first.Start.AddDate(0, 0, i), s.loc)
		present := len(perDay[w.Day()])
		pct := 0.0
		if len(students) > 0 {
			pct = float64(present) / float64(len(students)) * 100
		}
		points = append(points, TrendPoint{
			Day:     w.Day(),
			Weekday: w.Start.Weekday().String()[:3],
			Present: present,
			Percent: pct,
		})
	}
	return points, nil
}

func (s *Service) eventsWithRoster(ctx context.Context, start, end time.Time) ([]Event, []Student, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var events []Event
	err := observe("list_events_between", func() error {
		var err error
		events, err = s.store.ListEventsBetween(ctx, start, end)
		return err
	})
	if err != nil {
		return nil, nil, unavailable("list events", err)
	}
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, nil, unavailable("list students", err)
	}
	return events, students, nil
}

func indexStudents(students []Student) map[string]Student {
	byID := make(map[string]Student, len(students))
	for _, st := range students {
		byID[st.ID] = st
	}
	return byID
}
