package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentColumns = `id, name, badge_id, class_name, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (Student, error) {
	var st Student
	err := row.Scan(&st.ID, &st.Name, &st.BadgeID, &st.ClassName, &st.CreatedAt)
	return st, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// FindByBadge returns every student carrying badgeID, oldest first.
func (r *Repository) FindByBadge(ctx context.Context, badgeID string) ([]Student, error) {
	return r.queryStudents(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE badge_id = $1
		ORDER BY created_at, id
	`, badgeID)
}

// ListStudents returns the roster, newest first.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	return r.queryStudents(ctx, `
		SELECT `+studentColumns+`
		FROM students
		ORDER BY created_at DESC, id
	`)
}

func (r *Repository) queryStudents(ctx context.Context, query string, args ...any) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// GetStudent returns a single student by id.
func (r *Repository) GetStudent(ctx context.Context, id string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	return st, err
}

// CreateStudent inserts a student. The badge_id column is unique.
func (r *Repository) CreateStudent(ctx context.Context, st Student) (Student, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, badge_id, class_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, st.ID, st.Name, st.BadgeID, st.ClassName, st.CreatedAt)
	if isUniqueViolation(err) {
		return Student{}, ErrBadgeTaken
	}
	if err != nil {
		return Student{}, err
	}
	return st, nil
}

// UpdateStudent replaces name, badge and class of an existing student.
func (r *Repository) UpdateStudent(ctx context.Context, st Student) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE students
		SET name = $2, badge_id = $3, class_name = $4
		WHERE id = $1
		RETURNING `+studentColumns, st.ID, st.Name, st.BadgeID, st.ClassName)
	updated, err := scanStudent(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Student{}, ErrNotFound
	case isUniqueViolation(err):
		return Student{}, ErrBadgeTaken
	}
	return updated, err
}

// DeleteStudent removes a student. Events keep their student_id.
func (r *Repository) DeleteStudent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountStudents returns the roster size.
func (r *Repository) CountStudents(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n)
	return n, err
}

// SeedStudents inserts students in one transaction when the table is empty.
// The table lock keeps two concurrent seeds from both seeing it empty.
func (r *Repository) SeedStudents(ctx context.Context, students []Student) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `LOCK TABLE students IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return false, err
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	for _, st := range students {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO students (id, name, badge_id, class_name, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, st.ID, st.Name, st.BadgeID, st.ClassName, st.CreatedAt); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// InsertEvent writes a new event. The (student_id, day) constraint turns a
// lost race into ErrDuplicateEvent.
func (r *Repository) InsertEvent(ctx context.Context, evt Event) (Event, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, student_id, day, occurred_at, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, day) DO NOTHING
	`, evt.ID, evt.StudentID, evt.Day, evt.Timestamp, evt.Source)
	if err != nil {
		return Event{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Event{}, err
	}
	if n == 0 {
		return Event{}, ErrDuplicateEvent
	}
	return evt, nil
}

// HasEventBetween reports whether studentID has an event in [start, end).
func (r *Repository) HasEventBetween(ctx context.Context, studentID string, start, end time.Time) (bool, error) {
	var found bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_events
			WHERE student_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		)
	`, studentID, start, end).Scan(&found)
	return found, err
}

// ListEventsBetween returns events in [start, end), newest first.
func (r *Repository) ListEventsBetween(ctx context.Context, start, end time.Time) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, day, occurred_at, source
		FROM attendance_events
		WHERE occurred_at >= $1 AND occurred_at < $2
		ORDER BY occurred_at DESC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.StudentID, &evt.Day, &evt.Timestamp, &evt.Source); err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

// GetSetting returns a setting or ErrNotFound.
func (r *Repository) GetSetting(ctx context.Context, key string) (Setting, error) {
	s := Setting{Key: key}
	err := r.db.QueryRowContext(ctx, `SELECT value, updated_at FROM settings WHERE key = $1`, key).
		Scan(&s.Value, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Setting{}, ErrNotFound
	}
	return s, err
}

// PutSetting upserts a setting.
func (r *Repository) PutSetting(ctx context.Context, key, value string) (Setting, error) {
	s := Setting{Key: key, Value: value}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING updated_at
	`, key, value).Scan(&s.UpdatedAt)
	return s, err
}

// ArchiveEvents snapshots and clears every event in one transaction.
func (r *Repository) ArchiveEvents(ctx context.Context, batch Batch) (Batch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Batch{}, err
	}
	defer tx.Rollback()

	// one round trip: names are resolved while the events are deleted
	rows, err := tx.QueryContext(ctx, `
		WITH archived AS (
			DELETE FROM attendance_events
			RETURNING student_id, occurred_at
		)
		SELECT a.student_id, a.occurred_at, s.id, s.name, s.badge_id, s.class_name
		FROM archived a
		LEFT JOIN students s ON s.id = a.student_id
		ORDER BY a.occurred_at
	`)
	if err != nil {
		return Batch{}, err
	}
	defer rows.Close()

	batch.Records = make([]BatchRecord, 0)
	for rows.Next() {
		var (
			evt                          Event
			id, name, badgeID, className sql.NullString
		)
		if err := rows.Scan(&evt.StudentID, &evt.Timestamp, &id, &name, &badgeID, &className); err != nil {
			return Batch{}, err
		}
		var ref *Student
		if id.Valid {
			ref = &Student{ID: id.String, Name: name.String, BadgeID: badgeID.String, ClassName: className.String}
		}
		batch.Records = append(batch.Records, resolveRecord(evt, ref))
	}
	if err := rows.Err(); err != nil {
		return Batch{}, err
	}
	rows.Close()
	sortRecords(batch.Records)

	payload, err := json.Marshal(batch.Records)
	if err != nil {
		return Batch{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_batches (id, name, created_at, records)
		VALUES ($1, $2, $3, $4)
	`, batch.ID, batch.Name, batch.CreatedAt, payload); err != nil {
		return Batch{}, err
	}
	return batch, tx.Commit()
}

// ListBatches returns archived batches, newest first.
func (r *Repository) ListBatches(ctx context.Context) ([]Batch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, created_at, records
		FROM attendance_batches
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var (
			b       Batch
			payload []byte
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &b.Records); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
