package attendance

import (
	"context"
	"time"
)

// DemoStudents is the roster written by Seed.
var DemoStudents = []Student{
	{ID: "1", Name: "Alice Johnson", BadgeID: "RFID001"},
	{ID: "2", Name: "Bob Williams", BadgeID: "RFID002"},
	{ID: "3", Name: "Charlie Brown", BadgeID: "RFID003"},
	{ID: "4", Name: "Diana Miller", BadgeID: "RFID004"},
	{ID: "5", Name: "Ethan Davis", BadgeID: "RFID005"},
	{ID: "6", Name: "Fiona Garcia", BadgeID: "RFID006"},
	{ID: "7", Name: "George Rodriguez", BadgeID: "RFID007"},
	{ID: "8", Name: "Hannah Wilson", BadgeID: "RFID008"},
	{ID: "9", Name: "Ian Martinez", BadgeID: "RFID009"},
	{ID: "10", Name: "Jane Anderson", BadgeID: "RFID010"},
}

// Seed writes DemoStudents when the roster is empty.
func (s *Service) Seed(ctx context.Context) (bool, error) {
	base := s.now().UTC()
	students := make([]Student, len(DemoStudents))
	for i, st := range DemoStudents {
		st.ClassName = "Demo"
		// keep creation order stable so badge anomalies resolve predictably
		st.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		students[i] = st
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	seeded, err := s.store.SeedStudents(ctx, students)
	if err != nil {
		return false, unavailable("seed students", err)
	}
	if seeded {
		s.log.Info().Int("students", len(students)).Msg("initial student data seeded")
	} else {
		s.log.Debug().Msg("students collection already contains data")
	}
	return seeded, nil
}
