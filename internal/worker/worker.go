package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"rfidattend/internal/attendance"
	"rfidattend/internal/live"
	"rfidattend/internal/metrics"
	"rfidattend/internal/queue"
)

// Archiver archives the current attendance log.
type Archiver interface {
	Archive(ctx context.Context, name string) (attendance.Batch, error)
}

// Exporter stores an archived batch outside the database.
type Exporter interface {
	Export(ctx context.Context, batch attendance.Batch) (string, error)
}

// Worker consumes queue jobs.
type Worker struct {
	queue     queue.Queue
	archiver  Archiver
	exporter  Exporter
	publisher live.Publisher
	log       zerolog.Logger
}

// New creates a worker. exporter and publisher may be nil.
func New(q queue.Queue, archiver Archiver, exporter Exporter, publisher live.Publisher, log zerolog.Logger) *Worker {
	return &Worker{
		queue:     q,
		archiver:  archiver,
		exporter:  exporter,
		publisher: publisher,
		log:       log.With().Str("component", "worker").Logger(),
	}
}

// Run handles jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	jobs, err := w.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	w.log.Info().Msg("worker started, waiting for jobs")
	for job := range jobs {
		if err := w.Handle(ctx, job); err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Str("kind", job.Kind).Msg("job failed")
		}
	}
	w.log.Info().Msg("worker stopped")
	return nil
}

// ArchiveResult is published to dashboards after an archive job.
type ArchiveResult struct {
	JobID    string `json:"job_id"`
	BatchID  string `json:"batch_id"`
	Name     string `json:"name"`
	Records  int    `json:"records"`
	Location string `json:"location,omitempty"`
}

// Handle processes one job.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindArchive:
		return w.handleArchive(ctx, job)
	default:
		w.log.Warn().Str("job_id", job.ID).Str("kind", job.Kind).Msg("unknown job kind, skipped")
		return nil
	}
}

func (w *Worker) handleArchive(ctx context.Context, job queue.Job) error {
	var p queue.ArchivePayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			metrics.ArchiveJobs.WithLabelValues("invalid").Inc()
			return fmt.Errorf("decode archive payload: %w", err)
		}
	}

	batch, err := w.archiver.Archive(ctx, p.Name)
	if err != nil {
		metrics.ArchiveJobs.WithLabelValues("error").Inc()
		return fmt.Errorf("archive: %w", err)
	}
	res := ArchiveResult{JobID: job.ID, BatchID: batch.ID, Name: batch.Name, Records: len(batch.Records)}

	status := "ok"
	if w.exporter != nil {
		location, err := w.exporter.Export(ctx, batch)
		if err != nil {
			// the batch is already stored; only the copy is missing
			status = "export_error"
			w.log.Error().Err(err).Str("batch_id", batch.ID).Msg("batch export failed")
		}
		res.Location = location
	}
	metrics.ArchiveJobs.WithLabelValues(status).Inc()

	w.log.Info().
		Str("job_id", job.ID).
		Str("batch_id", batch.ID).
		Str("requested_by", p.RequestedBy).
		Int("records", res.Records).
		Msg("archive job done")

	if w.publisher != nil {
		msg, err := live.NewMessage(live.EventBatchArchived, res)
		if err == nil {
			err = w.publisher.Publish(ctx, msg)
		}
		if err != nil {
			w.log.Warn().Err(err).Msg("publish archive result")
		}
	}
	return nil
}
