package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lumasites/lumasites-backend/api/routes"
	"github.com/lumasites/lumasites-backend/internal/adminauth"
	"github.com/lumasites/lumasites-backend/internal/audit"
	"github.com/lumasites/lumasites-backend/internal/catalog"
	"github.com/lumasites/lumasites-backend/internal/mediasync"
	"github.com/lumasites/lumasites-backend/internal/translation"
	"github.com/lumasites/lumasites-backend/internal/users"
	"github.com/lumasites/lumasites-backend/pkg/auth/session"
	"github.com/lumasites/lumasites-backend/pkg/bigquery"
	"github.com/lumasites/lumasites-backend/pkg/config"
	"github.com/lumasites/lumasites-backend/pkg/db"
	"github.com/lumasites/lumasites-backend/pkg/docstore"
	"github.com/lumasites/lumasites-backend/pkg/logger"
	"github.com/lumasites/lumasites-backend/pkg/metrics"
	"github.com/lumasites/lumasites-backend/pkg/migrate"
	"github.com/lumasites/lumasites-backend/pkg/pubsub"
	"github.com/lumasites/lumasites-backend/pkg/redis"
	"github.com/lumasites/lumasites-backend/pkg/storage"
	"github.com/lumasites/lumasites-backend/pkg/storage/gcs"
	"github.com/lumasites/lumasites-backend/pkg/storage/miniostore"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	blobStore, blobPinger, err := newBlobStore(ctx, cfg, logg)
	requireResource(ctx, logg, "blob storage", err)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		// Deletion cleanup degrades to an operator sweep without pubsub.
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "pubsub unavailable, entity deleted events disabled")
		pubsubClient = nil
	} else {
		defer pubsubClient.Close()
	}

	bigqueryClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "bigquery unavailable, edit audit disabled")
		bigqueryClient = nil
	} else {
		defer bigqueryClient.Close()
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	requireResource(ctx, logg, "session manager", err)

	authService, err := adminauth.NewService(adminauth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	requireResource(ctx, logg, "auth service", err)

	docs, err := docstore.NewGormStore(dbClient)
	requireResource(ctx, logg, "document store", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	mediaMetrics := metrics.NewMediaMetrics(registry)

	var translator translation.Translator
	if cfg.Translation.Endpoint != "" {
		httpTranslator, err := translation.NewHTTPTranslator(cfg.Translation)
		requireResource(ctx, logg, "translator", err)
		translator = httpTranslator
	}

	var publisher catalog.EventPublisher
	if pubsubClient != nil {
		publisher = catalog.NewPubSubPublisher(pubsubClient.EntityDeletedPublisher())
	}
	var auditRecorder *audit.Recorder
	if bigqueryClient != nil {
		auditRecorder = audit.NewRecorder(bigqueryClient, cfg.BigQuery.AuditTable, logg)
	}

	catalogService, err := catalog.NewService(catalog.ServiceParams{
		Docs: docs,
		Media: mediasync.Deps{
			Store:      blobStore,
			Prober:     mediasync.NewFFProbe(),
			Compressor: mediasync.NewImageCompressor(cfg.Media.ImageMaxDimension, cfg.Media.ImageMaxBytes, cfg.Media.ImageQuality),
			Logger:     logg,
			Metrics:    mediaMetrics,
		},
		MediaConfig:     cfg.Media,
		Translator:      translator,
		TargetLanguages: cfg.Translation.TargetLanguages,
		Publisher:       publisher,
		Locks:           catalog.NewRedisSaveLocker(redisClient, 0),
		Audit:           auditRecorder,
		Logger:          logg,
	})
	requireResource(ctx, logg, "catalog service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance,
	})
	logg.Info(runCtx, "starting api server")

	var bigqueryPinger routesPinger
	if bigqueryClient != nil {
		bigqueryPinger = bigqueryClient
	}
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Storage:        blobPinger,
			BigQuery:       bigqueryPinger,
			SessionChecker: sessionManager,
			AuthService:    authService,
			Catalog:        catalogService,
			Gatherer:       registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

type routesPinger interface {
	Ping(ctx context.Context) error
}

func newBlobStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.Store, routesPinger, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case config.StorageBackendMinio:
		client, err := miniostore.NewClient(ctx, cfg.Minio, logg)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
