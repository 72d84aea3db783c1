package attendance

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// StudentInput is the editable part of a student.
type StudentInput struct {
	Name      string `json:"name" binding:"required,min=2"`
	BadgeID   string `json:"badge_id" binding:"required,min=4"`
	ClassName string `json:"class_name" binding:"required,notblank"`
}

func (in StudentInput) normalize() (StudentInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.BadgeID = strings.TrimSpace(in.BadgeID)
	in.ClassName = strings.TrimSpace(in.ClassName)
	switch {
	case utf8.RuneCountInString(in.Name) < 2:
		return in, validationError("name", "must be at least 2 characters")
	case utf8.RuneCountInString(in.BadgeID) < 4:
		return in, validationError("badge_id", "must be at least 4 characters")
	case in.ClassName == "":
		return in, validationError("class_name", "is required")
	}
	return in, nil
}

// ListStudents returns the roster, newest first.
func (s *Service) ListStudents(ctx context.Context) ([]Student, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, unavailable("list students", err)
	}
	return students, nil
}

// GetStudent returns one student or ErrNotFound.
func (s *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return Student{}, unavailable("get student", err)
	}
	return st, nil
}

// CreateStudent enrolls a student. The badge id must be unused.
func (s *Service) CreateStudent(ctx context.Context, in StudentInput) (Student, error) {
	in, err := in.normalize()
	if err != nil {
		return Student{}, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	st, err := s.store.CreateStudent(ctx, Student{
		ID:        uuid.NewString(),
		Name:      in.Name,
		BadgeID:   in.BadgeID,
		ClassName: in.ClassName,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return Student{}, unavailable("create student", err)
	}
	s.log.Info().Str("student_id", st.ID).Str("badge_id", st.BadgeID).Msg("student created")
	return st, nil
}

// UpdateStudent replaces the editable fields of student id.
func (s *Service) UpdateStudent(ctx context.Context, id string, in StudentInput) (Student, error) {
	in, err := in.normalize()
	if err != nil {
		return Student{}, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	st, err := s.store.UpdateStudent(ctx, Student{
		ID:        id,
		Name:      in.Name,
		BadgeID:   in.BadgeID,
		ClassName: in.ClassName,
	})
	if err != nil {
		return Student{}, unavailable("update student", err)
	}
	s.log.Info().Str("student_id", st.ID).Msg("student updated")
	return st, nil
}

// DeleteStudent removes a student. Their events stay and resolve as
// UnknownStudentName.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.DeleteStudent(ctx, id); err != nil {
		return unavailable("delete student", err)
	}
	s.log.Info().Str("student_id", id).Msg("student deleted")
	return nil
}
