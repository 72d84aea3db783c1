package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rfidattend/internal/attendance"
	"rfidattend/internal/auth"
	"rfidattend/internal/config"
	"rfidattend/internal/export"
	"rfidattend/internal/httpapi"
	"rfidattend/internal/httpmiddleware"
	"rfidattend/internal/live"
	"rfidattend/internal/logger"
	"rfidattend/internal/queue"
	"rfidattend/internal/store"
	"rfidattend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, _ := cfg.Location()
	st, closeStore, err := store.OpenBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	svc := attendance.NewService(st, attendance.Options{Location: loc, Timeout: cfg.StoreTimeout}, log)
	guard := attendance.NewGuard(st, cfg.StoreTimeout, log)

	if ok, err := guard.Bootstrap(ctx, cfg.DeviceAPIKey); err != nil {
		log.Warn().Err(err).Msg("device key bootstrap failed")
	} else if ok {
		log.Info().Msg("device key set from DEVICE_API_KEY")
	}
	if cfg.SeedOnStart {
		if seeded, err := svc.Seed(ctx); err != nil {
			log.Warn().Err(err).Msg("seeding failed")
		} else {
			log.Info().Bool("seeded", seeded).Msg("seed on start")
		}
	}

	checks := map[string]httpapi.HealthCheck{"store": svc.Ping}

	useRedis := cfg.QueueBackend == config.BackendRedis || cfg.RateLimitBackend == config.BackendRedis
	var redisClient *store.Redis
	if useRedis {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		checks["redis"] = redisClient.Ping
	}

	// live updates: with redis every instance subscribes to the relay
	var publisher live.Publisher
	var relay *live.RedisRelay
	if redisClient != nil {
		relay = live.NewRedisRelay(redisClient.Client, live.DefaultChannel, log)
		publisher = relay
	}
	hub := live.NewHub(publisher, log)
	svc.SetNotifier(hub)
	if relay != nil {
		go func() {
			if err := relay.Run(ctx, hub.Broadcast); err != nil {
				log.Error().Err(err).Msg("live relay stopped")
			}
		}()
	}

	var q queue.Queue
	if cfg.QueueBackend == config.BackendMemory {
		q = queue.NewInMemory(64)
		exporter, err := newExporter(ctx, cfg, log)
		if err != nil {
			return err
		}
		// no separate worker process without a shared queue
		w := worker.New(q, svc, exporter, hub, log)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error().Err(err).Msg("in-process worker stopped")
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == config.BackendRedis {
		limiter = httpmiddleware.NewRedisLimiter(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		bucket := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		go sweepBuckets(ctx, bucket)
		limiter = bucket
	}

	operator := auth.Operator{Username: cfg.OperatorUsername, PasswordHash: cfg.OperatorPasswordHash}
	if operator.PasswordHash == "" {
		log.Warn().Msg("OPERATOR_PASSWORD_HASH not set, operator login is disabled")
	}

	r := httpapi.NewRouter(httpapi.Deps{
		Service:        svc,
		Guard:          guard,
		Issuer:         auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Operator:       operator,
		Queue:          q,
		Hub:            hub,
		Limiter:        limiter,
		HealthChecks:   checks,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Str("queue", cfg.QueueBackend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	log.Info().Msg("shutting down server")
	cancel()

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}

// newExporter returns nil when no export bucket is configured.
func newExporter(ctx context.Context, cfg config.App, log zerolog.Logger) (worker.Exporter, error) {
	if cfg.ExportBucket == "" {
		return nil, nil
	}
	exp, err := export.NewS3Exporter(ctx, export.S3Config{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Bucket:          cfg.ExportBucket,
		Prefix:          cfg.ExportPrefix,
	}, log)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func sweepBuckets(ctx context.Context, bucket *httpmiddleware.TokenBucket) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bucket.Sweep(10 * time.Minute)
		}
	}
}
