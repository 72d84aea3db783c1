package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Resolver maps a scanned badge to a student.
type Resolver struct {
	students StudentStore
	timeout  time.Duration
	log      zerolog.Logger
}

// NewResolver creates a resolver; timeout bounds each store lookup.
func NewResolver(students StudentStore, timeout time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		students: students,
		timeout:  timeout,
		log:      log.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the student carrying badgeID. When several students share
// the badge the oldest wins and the anomaly is logged.
func (r *Resolver) Resolve(ctx context.Context, badgeID string) (Student, error) {
	badgeID = strings.TrimSpace(badgeID)
	if badgeID == "" {
		return Student{}, validationError("badge_id", "is required")
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var matches []Student
	err := observe("find_by_badge", func() error {
		var err error
		matches, err = r.students.FindByBadge(ctx, badgeID)
		return err
	})
	if err != nil {
		return Student{}, unavailable("find student by badge", err)
	}

	switch len(matches) {
	case 0:
		return Student{}, ErrStudentNotFound
	case 1:
		return matches[0], nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	r.log.Warn().
		Str("badge_id", badgeID).
		Strs("student_ids", ids).
		Str("chosen", matches[0].ID).
		Msg("badge id shared by several students")
	return matches[0], nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
