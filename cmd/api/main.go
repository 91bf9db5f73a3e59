package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"literary-archive/config"
	"literary-archive/internal/captcha"
	"literary-archive/internal/handler"
	"literary-archive/internal/manifest"
	"literary-archive/internal/redis"
	"literary-archive/internal/relay"
	"literary-archive/internal/repository"
	"literary-archive/internal/server"
	"literary-archive/internal/services"
	"literary-archive/internal/storage"
	"literary-archive/internal/tokens"
	"literary-archive/pkg/database"
	"literary-archive/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()
	health := map[string]server.HealthCheck{}

	stagingRepo, sessionRepo, closeStores := openStores(cfg, l, health)
	defer closeStores()

	var (
		limiter   *redis.RateLimiter
		sweepLock services.SweepLock
	)
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := redis.Ping(ctx, rdb); err != nil {
			l.Warn(ctx, "redis unreachable at startup", zap.Error(err))
		}
		limiter = redis.NewRateLimiter(rdb, redis.RateLimitConfig{
			IssueLimit:  cfg.IssueRateLimit,
			IssueWindow: cfg.IssueRateWindow,
		})
		sweepLock = redis.NewLock(rdb, "lock:upload_cleanup", 10*time.Minute)
		health["redis"] = func(ctx context.Context) error { return redis.Ping(ctx, rdb) }
	}

	deleter, err := newDeleter(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build delete backend: %v", err)
	}

	codec, err := tokens.NewCodec(cfg.SigningSecret)
	if err != nil {
		log.Fatalf("failed to build token codec: %v", err)
	}

	var verifier captcha.Verifier = captcha.Bypass{}
	if !cfg.RecaptchaBypass {
		verifier = captcha.NewRecaptcha(cfg.RecaptchaSecret, "", cfg.RecaptchaTimeout, nil)
	}

	uploadService := services.NewUploadService(stagingRepo, sessionRepo, codec, verifier, deleter, services.UploadSettings{
		Policy: manifest.Policy{
			MaxFiles:     cfg.Upload.MaxFiles,
			MaxFileBytes: cfg.Upload.MaxFileBytes,
			AllowedMIME:  cfg.Upload.AllowedMIME,
		},
		TokenTTL:      cfg.Upload.TokenTTL,
		StagingTTL:    cfg.Upload.StagingTTL,
		TokenIssuer:   cfg.TokenIssuer,
		RelayIssuer:   cfg.RelayIssuer,
		CaptchaExempt: cfg.RecaptchaBypass,
	}, l)

	cleanupService := services.NewCleanupService(stagingRepo, deleter, services.CleanupSettings{
		StaleRetention:     cfg.Upload.StaleRetention,
		FinalizedRetention: cfg.Upload.FinalizedRetention,
		BatchSize:          cfg.CleanupBatchSize,
		Concurrency:        cfg.CleanupConcurrency,
	}, l)

	worker := services.NewCleanupWorker(cleanupService, sweepLock, cfg.CleanupInterval, l)
	worker.Start()
	defer worker.Stop()

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Upload:  handler.NewUploadHandler(uploadService),
		Cleanup: handler.NewCleanupHandler(cleanupService),
	}, server.Options{
		Limiter: limiter,
		Health:  health,
	})

	if err := srv.Start(); err != nil {
		l.Errorf("server stopped with error: %v", err)
	}
}

func openStores(cfg *config.Config, l *logger.Logger, health map[string]server.HealthCheck) (repository.StagingRepository, repository.SessionRepository, func()) {
	if cfg.StagingStore == "memory" {
		l.Infof("Using in-memory staging store; every session id is accepted")
		return repository.NewMemoryStagingRepository(), repository.NewPermissiveSessionRepository(), func() {}
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("schema: %v", err)
	}
	health["database"] = database.HealthCheck(db)
	return repository.NewStagingRepository(db), repository.NewSessionRepository(db), func() { database.Close(db) }
}

func newDeleter(ctx context.Context, cfg *config.Config) (services.FileDeleter, error) {
	if cfg.RelayDeleteBackend == "s3" {
		client, err := storage.NewClient(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
			KeyPrefix: cfg.S3KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return relay.NewClient(relay.Config{
		URL:           cfg.RelayURL,
		SharedSecret:  cfg.RelaySharedSecret,
		Timeout:       cfg.RelayTimeout,
		Retries:       cfg.RelayRetries,
		RetryInterval: 500 * time.Millisecond,
	}, &http.Client{}), nil
}
