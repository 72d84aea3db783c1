package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests. Data is
// lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	students map[string]Student
	events   map[dayKey]Event
	settings map[string]Setting
	batches  []Batch
}

type dayKey struct {
	studentID string
	day       string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students: make(map[string]Student),
		events:   make(map[dayKey]Event),
		settings: make(map[string]Setting),
	}
}

// FindByBadge returns every student carrying badgeID, oldest first.
func (m *MemoryStore) FindByBadge(_ context.Context, badgeID string) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Student
	for _, st := range m.students {
		if st.BadgeID == badgeID {
			out = append(out, st)
		}
	}
	sortStudents(out, false)
	return out, nil
}

// ListStudents returns the roster, newest first.
func (m *MemoryStore) ListStudents(_ context.Context) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Student, 0, len(m.students))
	for _, st := range m.students {
		out = append(out, st)
	}
	sortStudents(out, true)
	return out, nil
}

func (m *MemoryStore) GetStudent(_ context.Context, id string) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.students[id]
	if !ok {
		return Student{}, ErrNotFound
	}
	return st, nil
}

func (m *MemoryStore) CreateStudent(_ context.Context, st Student) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.badgeTaken(st.BadgeID, "") {
		return Student{}, ErrBadgeTaken
	}
	m.students[st.ID] = st
	return st, nil
}

func (m *MemoryStore) UpdateStudent(_ context.Context, st Student) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.students[st.ID]
	if !ok {
		return Student{}, ErrNotFound
	}
	if m.badgeTaken(st.BadgeID, st.ID) {
		return Student{}, ErrBadgeTaken
	}
	cur.Name = st.Name
	cur.BadgeID = st.BadgeID
	cur.ClassName = st.ClassName
	m.students[st.ID] = cur
	return cur, nil
}

func (m *MemoryStore) DeleteStudent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return ErrNotFound
	}
	delete(m.students, id)
	return nil
}

func (m *MemoryStore) CountStudents(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students), nil
}

// SeedStudents inserts students only when the roster is empty.
func (m *MemoryStore) SeedStudents(_ context.Context, students []Student) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.students) > 0 {
		return false, nil
	}
	for _, st := range students {
		m.students[st.ID] = st
	}
	return true, nil
}

// AddStudent stores st as is, bypassing the badge uniqueness check. It
// exists to reproduce rosters imported with duplicate badges.
func (m *MemoryStore) AddStudent(st Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[st.ID] = st
}

func (m *MemoryStore) badgeTaken(badgeID, exceptID string) bool {
	for id, st := range m.students {
		if id != exceptID && st.BadgeID == badgeID {
			return true
		}
	}
	return false
}

// InsertEvent returns ErrDuplicateEvent when (StudentID, Day) is taken.
func (m *MemoryStore) InsertEvent(_ context.Context, evt Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey{studentID: evt.StudentID, day: evt.Day}
	if _, ok := m.events[key]; ok {
		return Event{}, ErrDuplicateEvent
	}
	m.events[key] = evt
	return evt, nil
}

func (m *MemoryStore) HasEventBetween(_ context.Context, studentID string, start, end time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w := Window{Start: start, End: end}
	for key, evt := range m.events {
		if key.studentID == studentID && w.Contains(evt.Timestamp) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListEventsBetween(_ context.Context, start, end time.Time) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w := Window{Start: start, End: end}
	var out []Event
	for _, evt := range m.events {
		if w.Contains(evt.Timestamp) {
			out = append(out, evt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) GetSetting(_ context.Context, key string) (Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[key]
	if !ok {
		return Setting{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) PutSetting(_ context.Context, key, value string) (Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	m.settings[key] = s
	return s, nil
}

// ArchiveEvents moves every event into batch in one critical section.
func (m *MemoryStore) ArchiveEvents(_ context.Context, batch Batch) (Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]Event, 0, len(m.events))
	for _, evt := range m.events {
		events = append(events, evt)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	batch.Records = make([]BatchRecord, 0, len(events))
	for _, evt := range events {
		var st *Student
		if found, ok := m.students[evt.StudentID]; ok {
			st = &found
		}
		batch.Records = append(batch.Records, resolveRecord(evt, st))
	}
	m.batches = append(m.batches, batch)
	m.events = make(map[dayKey]Event)
	return batch, nil
}

func (m *MemoryStore) ListBatches(_ context.Context) ([]Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Batch, len(m.batches))
	copy(out, m.batches)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// sortStudents orders by CreatedAt, breaking ties by id.
func sortStudents(students []Student, newestFirst bool) {
	sort.Slice(students, func(i, j int) bool {
		a, b := students[i], students[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if newestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
