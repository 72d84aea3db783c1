package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rfidattend/internal/attendance"
	"rfidattend/internal/config"
	"rfidattend/internal/export"
	"rfidattend/internal/live"
	"rfidattend/internal/logger"
	"rfidattend/internal/queue"
	"rfidattend/internal/store"
	"rfidattend/internal/worker"
)

// Worker consumes archive jobs from the shared queue, stores the batch,
// exports it when a bucket is configured and tells dashboards about it.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.QueueBackend != config.BackendRedis {
		log.Fatal().Str("queue", cfg.QueueBackend).Msg("the worker needs QUEUE_BACKEND=redis; the memory queue is drained by the api process")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	st, closeStore, err := store.OpenBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store connect failed")
	}
	defer func() { _ = closeStore() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if !redisClient.Healthy(ctx) {
		log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet, consumer will retry")
	}

	loc, _ := cfg.Location()
	svc := attendance.NewService(st, attendance.Options{Location: loc, Timeout: cfg.StoreTimeout}, log)

	var exporter worker.Exporter
	if cfg.ExportBucket != "" {
		exp, err := export.NewS3Exporter(ctx, export.S3Config{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Bucket:          cfg.ExportBucket,
			Prefix:          cfg.ExportPrefix,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("s3 exporter init failed")
		}
		exporter = exp
		log.Info().Str("bucket", cfg.ExportBucket).Msg("batch export enabled")
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	relay := live.NewRedisRelay(redisClient.Client, live.DefaultChannel, log)

	if err := worker.New(q, svc, exporter, relay, log).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("worker failed")
	}
}
