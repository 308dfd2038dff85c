package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/lead-service/internal/api/http"
	"github.com/spec-kit/lead-service/internal/api/http/handlers"
	"github.com/spec-kit/lead-service/internal/auth"
	"github.com/spec-kit/lead-service/internal/config"
	"github.com/spec-kit/lead-service/internal/events"
	"github.com/spec-kit/lead-service/internal/mail"
	"github.com/spec-kit/lead-service/internal/observability"
	"github.com/spec-kit/lead-service/internal/persistence"
	"github.com/spec-kit/lead-service/internal/ratelimit"
	"github.com/spec-kit/lead-service/internal/repository"
	"github.com/spec-kit/lead-service/internal/service"
	"github.com/spec-kit/lead-service/internal/storage"
	"github.com/spec-kit/lead-service/internal/worker"
)

const shutdownTimeout = 15 * time.Second

// blobBackend is a BlobStore that can also report readiness.
type blobBackend interface {
	storage.BlobStore
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.EnsureSchema {
		if err := persistence.EnsureSchema(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to ensure schema", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	blobs, err := newBlobStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to init blob store", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	dispatcher := events.NewAsyncDispatcher(events.AsyncOptions{
		Workers:        cfg.Notification.Workers,
		QueueSize:      cfg.Notification.QueueSize,
		HandlerTimeout: cfg.Notification.Timeout(),
	}, logger)

	var sender mail.Sender
	if cfg.SMTP.Enabled() {
		sender = mail.NewSMTPSender(cfg.SMTP)
	} else {
		logger.Warn("SMTP_HOST not provided; notification emails will be skipped")
	}
	notificationService := service.NewNotificationService(dispatcher, sender, logger, metrics, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	leadService := service.NewLeadService(service.LeadDependencies{
		LeadRepo:     repository.NewLeadRepository(pg.PoolHandle()),
		BlobStore:    blobs,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		ResumeURLTTL: cfg.Storage.ResumeURLTTL(),
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    cfg.App.BodyLimitBytes,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:        cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.App.CORSAllowedOrigins,
	})

	optional := map[string]handlers.Pinger{"redis": nil}
	if redis != nil {
		optional["redis"] = redis
	}
	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version,
		map[string]handlers.Pinger{"postgres": pg, "storage": blobs},
		optional,
	)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Leads:          handlers.NewLeadsHandler(leadService),
		AuthMiddleware: auth.NewAuthMiddleware(cfg.Auth.APISecretToken, logger),
		SubmitLimiter: ratelimit.NewFixedWindow(redis.ClientHandle(), "leads",
			cfg.RateLimit.Submissions, cfg.RateLimit.Window(), logger),
		Metrics: metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	worker.StopNotificationWorker(dispatcher, shutdownTimeout, logger)
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (blobBackend, error) {
	switch cfg.Driver {
	case "minio":
		store, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucketExists(ctx); err != nil {
			return nil, err
		}
		logger.Info("using minio blob store", zap.String("endpoint", cfg.MinIOEndpoint), zap.String("bucket", cfg.Bucket))
		return store, nil
	default:
		store, err := storage.NewS3Store(ctx, cfg.Region, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		logger.Info("using s3 blob store", zap.String("region", cfg.Region), zap.String("bucket", cfg.Bucket))
		return store, nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
