package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rfidattend/internal/metrics"
)

// Outcome is the terminal state of a check-in.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeAlreadyCheckedIn Outcome = "already_checked_in"
	OutcomeStudentNotFound  Outcome = "student_not_found"
	OutcomeTransientError   Outcome = "transient_error"
)

// Result describes what a check-in did.
type Result struct {
	Outcome     Outcome `json:"outcome"`
	StudentName string  `json:"student_name,omitempty"`
	Event       *Event  `json:"event,omitempty"`
}

// Notifier is told about every newly recorded check-in. It runs in its own
// goroutine after the response is decided.
type Notifier interface {
	NotifyCheckIn(ctx context.Context, entry LogEntry)
}

// Options tune a Service. Zero values pick defaults.
type Options struct {
	// Location defines calendar days. Defaults to time.Local.
	Location *time.Location
	// Timeout bounds every store call. Defaults to 3s.
	Timeout time.Duration
	// Now is the clock. Defaults to time.Now.
	Now      func() time.Time
	Notifier Notifier
}

// Service coordinates check-in reconciliation and the admin operations
// around it.
type Service struct {
	store    Store
	resolver *Resolver
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time
	notifier Notifier
	log      zerolog.Logger
}

// NewService creates a service backed by store.
func NewService(store Store, opts Options, log zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    store,
		resolver: NewResolver(store, opts.Timeout, log),
		loc:      opts.Location,
		timeout:  opts.Timeout,
		now:      opts.Now,
		notifier: opts.Notifier,
		log:      log.With().Str("component", "attendance").Logger(),
	}
}

// SetNotifier replaces the check-in notifier.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Location is the timezone calendar days are computed in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Today returns the window of the current local day.
func (s *Service) Today() Window {
	return DayWindow(s.now(), s.loc)
}

// CheckIn records the first check-in of the day for the student carrying
// badgeID. Only ErrValidation and transient store failures are returned as
// errors; every other path is described by the Result.
func (s *Service) CheckIn(ctx context.Context, badgeID, source string) (Result, error) {
	if source == "" {
		source = SourceDevice
	}
	res, err := s.checkIn(ctx, badgeID, source)
	if res.Outcome != "" {
		metrics.CheckIns.WithLabelValues(source, string(res.Outcome)).Inc()
	}
	return res, err
}

func (s *Service) checkIn(ctx context.Context, badgeID, source string) (Result, error) {
	student, err := s.resolver.Resolve(ctx, badgeID)
	switch {
	case errors.Is(err, ErrStudentNotFound):
		s.log.Info().Str("badge_id", badgeID).Str("source", source).Msg("check-in for unknown badge")
		return Result{Outcome: OutcomeStudentNotFound}, nil
	case errors.Is(err, ErrValidation):
		return Result{}, err
	case err != nil:
		s.log.Error().Err(err).Str("badge_id", badgeID).Msg("resolve badge failed")
		return Result{Outcome: OutcomeTransientError}, err
	}

	now := s.now()
	today := DayWindow(now, s.loc)

	dup, err := s.hasCheckedInToday(ctx, student, today)
	if err != nil {
		s.log.Error().Err(err).Str("student_id", student.ID).Msg("duplicate check failed")
		return Result{Outcome: OutcomeTransientError}, err
	}
	if dup {
		return Result{Outcome: OutcomeAlreadyCheckedIn, StudentName: student.Name}, nil
	}

	evt := Event{
		ID:        uuid.NewString(),
		StudentID: student.ID,
		Day:       today.Day(),
		Timestamp: now,
		Source:    source,
	}
	inserted, err := s.insertEvent(ctx, evt)
	if errors.Is(err, ErrDuplicateEvent) {
		s.log.Info().Str("student_id", student.ID).Str("day", evt.Day).Msg("concurrent check-in lost the insert race")
		return Result{Outcome: OutcomeAlreadyCheckedIn, StudentName: student.Name}, nil
	}
	if err != nil {
		s.log.Error().Err(err).Str("student_id", student.ID).Msg("record check-in failed")
		return Result{Outcome: OutcomeTransientError}, err
	}

	s.log.Info().
		Str("student_id", student.ID).
		Str("badge_id", student.BadgeID).
		Str("source", source).
		Str("day", inserted.Day).
		Msg("check-in recorded")

	if s.notifier != nil {
		s.notify(ctx, LogEntry{
			Event:     inserted,
			Name:      student.Name,
			BadgeID:   student.BadgeID,
			ClassName: student.ClassName,
		})
	}
	return Result{Outcome: OutcomeSuccess, StudentName: student.Name, Event: &inserted}, nil
}

// notify hands entry to the notifier without holding up the caller. The
// notifier gets its own context bounded by the store timeout.
func (s *Service) notify(ctx context.Context, entry LogEntry) {
	n := s.notifier
	nctx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeout)
	go func() {
		defer cancel()
		n.NotifyCheckIn(nctx, entry)
	}()
}

// hasCheckedInToday reports whether student already has an event inside w.
func (s *Service) hasCheckedInToday(ctx context.Context, student Student, w Window) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var found bool
	err := observe("has_event_between", func() error {
		var err error
		found, err = s.store.HasEventBetween(ctx, student.ID, w.Start, w.End)
		return err
	})
	if err != nil {
		return false, unavailable("duplicate check", err)
	}
	return found, nil
}

func (s *Service) insertEvent(ctx context.Context, evt Event) (Event, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var inserted Event
	err := observe("insert_event", func() error {
		var err error
		inserted, err = s.store.InsertEvent(ctx, evt)
		return err
	})
	if err != nil {
		return Event{}, unavailable("insert event", err)
	}
	return inserted, nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Ping(ctx)
}
