// Package main wires together the review tracker service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsubclient "cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/plugwatch/plugwatch/internal/api"
	archivegcs "github.com/plugwatch/plugwatch/internal/archive/gcs"
	archivelocal "github.com/plugwatch/plugwatch/internal/archive/local"
	"github.com/plugwatch/plugwatch/internal/clock/system"
	"github.com/plugwatch/plugwatch/internal/config"
	"github.com/plugwatch/plugwatch/internal/directory"
	"github.com/plugwatch/plugwatch/internal/export"
	"github.com/plugwatch/plugwatch/internal/extract"
	collyfetcher "github.com/plugwatch/plugwatch/internal/fetcher/colly"
	"github.com/plugwatch/plugwatch/internal/id/uuid"
	"github.com/plugwatch/plugwatch/internal/ingest"
	"github.com/plugwatch/plugwatch/internal/logging"
	"github.com/plugwatch/plugwatch/internal/metrics"
	publisherpubsub "github.com/plugwatch/plugwatch/internal/publisher/pubsub"
	"github.com/plugwatch/plugwatch/internal/review"
	storememory "github.com/plugwatch/plugwatch/internal/store/memory"
	storepostgres "github.com/plugwatch/plugwatch/internal/store/postgres"
	"github.com/plugwatch/plugwatch/internal/transport"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service terminated", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	clock := system.New()
	idGen := uuid.NewUUIDGenerator()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Transport.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	resolver := transport.New(fetcher, cfg.Transport.ProxyRoutes, logger.Named("transport"))

	driver := ingest.NewDriver(
		resolver,
		extract.NewListing(logger.Named("extract")),
		extract.NewSyndication(logger.Named("extract")),
		clock,
		ingest.FeedURLs{Base: cfg.Feeds.SupportBase},
		ingest.DriverConfig{
			MaxPages: cfg.Ingest.MaxPages,
			MinDelay: cfg.MinDelay(),
		},
		logger.Named("driver"),
	)

	dir := directory.New(directory.Config{
		BaseURL:   cfg.Directory.BaseURL,
		UserAgent: cfg.Transport.UserAgent,
		Timeout:   time.Duration(cfg.Directory.TimeoutSeconds) * time.Second,
	})

	manager := ingest.NewManager(
		store,
		driver,
		dir,
		archive,
		publisher,
		clock,
		idGen,
		ingest.ManagerConfig{
			RunTimeout:    cfg.RunTimeout(),
			Topic:         cfg.PubSub.TopicName,
			ArchivePrefix: cfg.Archive.Prefix,
			ContentType:   cfg.Archive.ContentType,
		},
		logger.Named("ingest"),
	)

	importer := export.NewImporter(store, dir, clock, logger.Named("import"))

	server := api.NewServer(store, manager, importer, dir, clock, api.Config{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
	}, logger.Named("api"))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config) (review.PluginStore, func(), error) {
	switch cfg.Storage.Backend {
	case "postgres":
		store, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:      cfg.Storage.DSN,
			Table:    cfg.Storage.Table,
			MaxConns: int32(cfg.Storage.MaxOpenConns),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return storememory.NewPluginStore(), func() {}, nil
	}
}

func buildArchive(ctx context.Context, cfg config.Config) (review.BlobStore, error) {
	switch cfg.Archive.Backend {
	case "local":
		store, err := archivelocal.New(archivelocal.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("build local archive: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build gcs client: %w", err)
		}
		store, err := archivegcs.New(client, archivegcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("build gcs archive: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (review.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	client, err := pubsubclient.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	return publisherpubsub.New(client), nil
}
