package attendance

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Archive snapshots every current event into a new batch and clears them.
// An empty name defaults to "Batch <local date and time>".
func (s *Service) Archive(ctx context.Context, name string) (Batch, error) {
	now := s.now()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Batch " + now.In(s.loc).Format("2006-01-02 15:04")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var batch Batch
	err := observe("archive_events", func() error {
		var err error
		batch, err = s.store.ArchiveEvents(ctx, Batch{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: now.UTC(),
		})
		return err
	})
	if err != nil {
		return Batch{}, unavailable("archive events", err)
	}
	s.log.Info().
		Str("batch_id", batch.ID).
		Str("name", batch.Name).
		Int("records", len(batch.Records)).
		Msg("attendance archived")
	return batch, nil
}

// ListBatches returns archived batches, newest first.
func (s *Service) ListBatches(ctx context.Context) ([]Batch, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		return nil, unavailable("list batches", err)
	}
	return batches, nil
}
