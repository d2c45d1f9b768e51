package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridesync/internal/api"
	"ridesync/internal/config"
	"ridesync/internal/database"
	"ridesync/internal/domain"
	"ridesync/internal/events"
	"ridesync/internal/export"
	"ridesync/internal/logging"
	"ridesync/internal/metrics"
	"ridesync/internal/remote"
	"ridesync/internal/repository"
	"ridesync/internal/service"
	"ridesync/internal/worker"

	"github.com/rs/zerolog"
)

func main() {
	exportPath := flag.String("export", "", "write the pending queue and dead letters to an XLSX file and exit")
	flag.Parse()

	if err := run(*exportPath); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(exportPath string) error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	mainLog := logging.Component(&logger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, db, closeStore, err := initStorage(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer closeStore()

	remoteStore, closeRemote, err := initRemote(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer closeRemote()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	opts := service.Options{
		Sync: worker.Options{
			Interval:           cfg.Sync.Interval,
			ApplyTimeout:       cfg.Sync.ApplyTimeout,
			Backoff:            worker.PolicyFromConfig(cfg.Sync.Backoff),
			DeadLetterRejected: cfg.Sync.DeadLetterRejected,
		},
		RefreshTimeout: cfg.Remote.Timeout,
	}
	svc, err := service.New(ctx, kv, remoteStore, opts, &logger)
	if err != nil {
		mainLog.Error().Err(err).Msg("init offline service")
		return err
	}

	if exportPath != "" {
		if err := export.WriteQueueReport(exportPath, svc.PendingItems(), svc.DeadLetters()); err != nil {
			return fmt.Errorf("export queue report: %w", err)
		}
		mainLog.Info().Str("file_path", exportPath).Int("pending", svc.PendingCount()).Msg("queue report written")
		return nil
	}

	watchStatus(svc, &mainLog)

	if db != nil {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	snap := svc.Start(ctx)
	mainLog.Info().
		Int("pending", svc.PendingCount()).
		Int("cached_users", len(snap.Users())).
		Int("cached_trips", len(snap.Trips())).
		Str("storage", cfg.Storage.Driver).
		Str("remote", cfg.Remote.Driver).
		Msg("ridesync started")

	err = serve(ctx, cfg, svc, &logger, &mainLog)
	svc.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, *baseLogger, closer, nil
}

// initStorage opens the local durable store. db is non-nil only for sqlite.
func initStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.KVStore, *database.DB, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageRedis:
		client := repository.NewRedisClient(cfg.Redis)
		if err := repository.Ping(ctx, client); err != nil {
			_ = repository.Close(client)
			logger.Error().Err(err).Str("addr", cfg.Redis.Address).Msg("redis connection failed")
			return nil, nil, nil, err
		}
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
		return repository.NewRedisKVStore(client, cfg.Redis.KeyPrefix), nil, func() { _ = repository.Close(client) }, nil
	default:
		db, err := database.NewDB(cfg.Storage.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Storage.Path).Msg("init database")
			return nil, nil, nil, err
		}
		return db, db, func() { _ = db.Close() }, nil
	}
}

func initRemote(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.RemoteStore, func(), error) {
	switch cfg.Remote.Driver {
	case config.RemotePostgres:
		store, err := remote.NewPostgresStore(ctx, cfg.Remote, logger)
		if err != nil {
			logger.Error().Err(err).Msg("init postgres remote")
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return remote.NewClient(cfg.Remote, logger), func() {}, nil
	}
}

func watchStatus(svc *service.OfflineService, logger *zerolog.Logger) {
	svc.Subscribe(events.EventSyncStatusChanged, func(event *events.Event) error {
		var p events.SyncStatusPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return err
		}
		logger.Info().
			Str("status", p.Status).
			Str("previous", p.Previous).
			Int("pending", p.Pending).
			Msg("sync status changed")
		return nil
	})
}

func serve(ctx context.Context, cfg *config.Config, svc *service.OfflineService, logger, mainLog *zerolog.Logger) error {
	if !cfg.API.Enabled {
		<-ctx.Done()
		mainLog.Info().Msg("shutdown signal received")
		return nil
	}

	httpServer := api.NewHTTPServer(cfg.API, cfg.Monitoring.PrometheusEnabled, svc, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		mainLog.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			mainLog.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	mainLog.Info().Msg("ridesync stopped")
	return nil
}
