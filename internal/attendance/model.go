package attendance

import (
	"sort"
	"time"
)

// Student is an enrolled person who can be checked in by badge.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BadgeID   string    `json:"badge_id"`
	ClassName string    `json:"class_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is one recorded check-in. At most one exists per (StudentID, Day).
type Event struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Day       string    `json:"day"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Check-in sources.
const (
	SourceDevice = "device"
	SourceManual = "manual"
)

// BatchRecord is one archived, already resolved attendance row.
type BatchRecord struct {
	BadgeID     string    `json:"badge_id"`
	Name        string    `json:"name"`
	ClassName   string    `json:"class_name"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// Batch is a named snapshot of the events that were cleared by an archive run.
type Batch struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	Records   []BatchRecord `json:"records"`
}

// Setting is a key/value record in the settings store.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntry is an event joined with the student it belongs to.
type LogEntry struct {
	Event
	Name      string `json:"name"`
	BadgeID   string `json:"badge_id"`
	ClassName string `json:"class_name"`
}

// UnknownStudentName labels rows whose student no longer exists.
const UnknownStudentName = "Unknown Student"

// resolveRecord builds the archived view of an event.
func resolveRecord(evt Event, st *Student) BatchRecord {
	rec := BatchRecord{Name: UnknownStudentName, CheckedInAt: evt.Timestamp}
	if st != nil {
		rec.BadgeID = st.BadgeID
		rec.Name = st.Name
		rec.ClassName = st.ClassName
	}
	return rec
}

// sortRecords orders records by check-in time, oldest first.
func sortRecords(records []BatchRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CheckedInAt.Before(records[j].CheckedInAt)
	})
}
