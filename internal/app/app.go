// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gcpubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/adaletdata/uploader/internal/config"
	"github.com/adaletdata/uploader/internal/logging"
	"github.com/adaletdata/uploader/internal/metrics"
	"github.com/adaletdata/uploader/internal/publisher/pubsub"
	"github.com/adaletdata/uploader/internal/source/yargitay"
	"github.com/adaletdata/uploader/internal/storage/gcs"
	"github.com/adaletdata/uploader/internal/store/local"
	"github.com/adaletdata/uploader/internal/store/postgres"
	"github.com/adaletdata/uploader/internal/uploader"
)

// App holds the shared, long-lived services for one process: the logger,
// the storage backend selected by STORAGE_MODE, the upstream API client,
// and the optional run summary publisher. It is initialized once at startup
// and fails fast when a critical service cannot be built.
type App struct {
	Logger    *zap.Logger
	Config    config.Config
	Store     uploader.Store
	Client    *yargitay.Client
	Publisher uploader.Publisher

	blobs        *gcs.BlobStore
	pubsubClient *gcpubsub.Client
	topic        *gcpubsub.Publisher
}

// New builds the service container from validated configuration.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	l := logging.L
	a := &App{Logger: l, Config: cfg}

	client := yargitay.NewClient(yargitay.ClientConfig{
		BaseURL:           cfg.Source.BaseURL,
		UserAgent:         cfg.Source.UserAgent,
		Timeout:           cfg.SourceTimeout(),
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
	}, l)
	a.Client = client

	switch cfg.Mode() {
	case config.StorageModeLocal:
		l.Info("running in local storage mode", zap.String("base_dir", cfg.Storage.Local.BaseDir))
		store, err := local.New(local.Config{BaseDir: cfg.Storage.Local.BaseDir}, l)
		if err != nil {
			return nil, fmt.Errorf("initialize local store: %w", err)
		}
		a.Store = store
	case config.StorageModeRemote:
		l.Info("running in remote storage mode", zap.String("table", cfg.DB.Table))
		var blobs postgres.BlobStore
		if cfg.Storage.GCS.Bucket != "" {
			l.Info("full texts go to GCS", zap.String("bucket", cfg.Storage.GCS.Bucket))
			bs, err := gcs.New(ctx, gcs.Config{Bucket: cfg.Storage.GCS.Bucket}, l)
			if err != nil {
				return nil, fmt.Errorf("initialize blob store: %w", err)
			}
			a.blobs = bs
			blobs = bs
		}
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.ConnLifetime(),
			BlobPrefix:      cfg.Storage.GCS.Prefix,
		}, blobs, l)
		if err != nil {
			a.closeBlobs()
			return nil, fmt.Errorf("initialize postgres store: %w", err)
		}
		a.Store = store
	}

	if cfg.PubSub.Topic != "" {
		l.Info("run summaries go to Pub/Sub",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.Topic),
		)
		psClient, err := gcpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.closeBlobs()
			return nil, fmt.Errorf("initialize pubsub client: %w", err)
		}
		a.pubsubClient = psClient
		a.topic = psClient.Publisher(cfg.PubSub.Topic)
		a.Publisher = pubsub.New(a.topic)
	}

	if cfg.Metrics.Addr != "" {
		a.serveMetrics(cfg.Metrics.Addr)
	}

	return a, nil
}

// serveMetrics exposes the Prometheus handler on a best-effort listener.
// The process does not wait for it; a one-shot run may finish first.
func (a *App) serveMetrics(addr string) {
	metrics.Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.Logger.Info("starting metrics listener", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Warn("metrics listener failed", zap.Error(err))
		}
	}()
}

func (a *App) closeBlobs() {
	if a.blobs == nil {
		return
	}
	if err := a.blobs.Close(); err != nil {
		a.Logger.Warn("error closing blob store client", zap.Error(err))
	}
}

// Close gracefully shuts down all services in the container. The storage
// backend itself is closed by the pipeline; this releases everything else.
func (a *App) Close() {
	if a.topic != nil {
		a.topic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("error closing pubsub client", zap.Error(err))
		}
	}
	a.closeBlobs()

	// Flush the logger last so shutdown messages are not lost.
	if err := a.Logger.Sync(); err != nil {
		// Best effort; stderr sync failures are common and harmless.
		_ = err
	}
}
