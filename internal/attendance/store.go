package attendance

import (
	"context"
	"time"
)

// StudentStore persists the roster.
type StudentStore interface {
	// FindByBadge returns every student carrying badgeID, oldest first.
	FindByBadge(ctx context.Context, badgeID string) ([]Student, error)
	// ListStudents returns the roster, newest first.
	ListStudents(ctx context.Context) ([]Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	CreateStudent(ctx context.Context, st Student) (Student, error)
	UpdateStudent(ctx context.Context, st Student) (Student, error)
	DeleteStudent(ctx context.Context, id string) error
	CountStudents(ctx context.Context) (int, error)
	// SeedStudents inserts students only when the roster is empty and
	// reports whether it did.
	SeedStudents(ctx context.Context, students []Student) (bool, error)
}

// EventStore persists check-in events.
type EventStore interface {
	// InsertEvent returns ErrDuplicateEvent when (StudentID, Day) is taken.
	InsertEvent(ctx context.Context, evt Event) (Event, error)
	// HasEventBetween reports whether studentID has an event in [start, end).
	HasEventBetween(ctx context.Context, studentID string, start, end time.Time) (bool, error)
	// ListEventsBetween returns events in [start, end), newest first.
	ListEventsBetween(ctx context.Context, start, end time.Time) ([]Event, error)
}

// SettingsStore holds small key/value settings such as the device key.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (Setting, error)
	PutSetting(ctx context.Context, key, value string) (Setting, error)
}

// BatchStore archives and lists batches.
type BatchStore interface {
	// ArchiveEvents moves every current event into batch (ID, Name and
	// CreatedAt are set by the caller) and returns it with its records.
	ArchiveEvents(ctx context.Context, batch Batch) (Batch, error)
	// ListBatches returns archived batches, newest first.
	ListBatches(ctx context.Context) ([]Batch, error)
}

// Store is everything a backend provides.
type Store interface {
	StudentStore
	EventStore
	SettingsStore
	BatchStore
	Ping(ctx context.Context) error
}
