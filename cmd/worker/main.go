package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lumasites/lumasites-backend/internal/blobgc"
	"github.com/lumasites/lumasites-backend/pkg/config"
	"github.com/lumasites/lumasites-backend/pkg/logger"
	"github.com/lumasites/lumasites-backend/pkg/metrics"
	"github.com/lumasites/lumasites-backend/pkg/pubsub"
	"github.com/lumasites/lumasites-backend/pkg/storage"
	"github.com/lumasites/lumasites-backend/pkg/storage/gcs"
	"github.com/lumasites/lumasites-backend/pkg/storage/miniostore"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "blob-sweep-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "blob-sweep-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	blobStore, err := newBlobStore(ctx, cfg, logg)
	requireResource(ctx, logg, "blob storage", err)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	handler := blobgc.NewHandler(blobStore, logg, metrics.NewMediaMetrics(nil))
	consumer, err := blobgc.NewConsumer(pubsubClient.EntityDeletedSubscription(), handler, logg)
	requireResource(ctx, logg, "entity deleted consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"subscription": cfg.PubSub.EntityDeletedSubscription,
	})
	logg.Info(runCtx, "blob sweep worker ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "blob sweep worker not working", err)
		os.Exit(1)
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.Store, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Storage.Backend), config.StorageBackendMinio) {
		return miniostore.NewClient(ctx, cfg.Minio, logg)
	}
	return gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
