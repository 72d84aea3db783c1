package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"rfidattend/internal/attendance"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
}

// S3Exporter writes archived batches to S3 as CSV.
type S3Exporter struct {
	uploader *manager.Uploader
	cfg      S3Config
	log      zerolog.Logger
}

// NewS3Exporter loads AWS configuration. Static credentials are used when
// both keys are set, the default chain otherwise.
func NewS3Exporter(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Exporter, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Exporter{
		uploader: manager.NewUploader(s3.NewFromConfig(awsCfg)),
		cfg:      cfg,
		log:      log.With().Str("component", "s3_export").Logger(),
	}, nil
}

// Key returns the object key of a batch.
func (e *S3Exporter) Key(batch attendance.Batch) string {
	return BatchKey(e.cfg.Prefix, batch.ID)
}

// BatchKey is <prefix>/<batch id>.csv.
func BatchKey(prefix, batchID string) string {
	return path.Join(prefix, batchID+".csv")
}

// Export uploads batch and returns its s3:// location.
func (e *S3Exporter) Export(ctx context.Context, batch attendance.Batch) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, batch); err != nil {
		return "", fmt.Errorf("render csv: %w", err)
	}
	key := e.Key(batch)
	_, err := e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
		Metadata: map[string]string{
			"batch-name": batch.Name,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	location := "s3://" + e.cfg.Bucket + "/" + key
	e.log.Info().Str("batch_id", batch.ID).Str("location", location).Int("records", len(batch.Records)).Msg("batch exported")
	return location, nil
}

// WriteCSV renders a batch as badge_id,name,class_name,checked_in_at with
// RFC 3339 UTC timestamps.
func WriteCSV(w io.Writer, batch attendance.Batch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"badge_id", "name", "class_name", "checked_in_at"}); err != nil {
		return err
	}
	for _, r := range batch.Records {
		if err := cw.Write([]string{r.BadgeID, r.Name, r.ClassName, r.CheckedInAt.UTC().Format(time.RFC3339)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
