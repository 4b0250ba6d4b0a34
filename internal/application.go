package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"

	"github.com/gridclash/gridclash-backend/internal/config"
	"github.com/gridclash/gridclash-backend/internal/registry"
	"github.com/gridclash/gridclash-backend/internal/repository"
	"github.com/gridclash/gridclash-backend/internal/repository/storage"
	"github.com/gridclash/gridclash-backend/internal/usecase"
	"github.com/gridclash/gridclash-backend/transport/rest"
	"github.com/gridclash/gridclash-backend/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	archiveRepo := repository.NewArchiveRepository(redisStorage.Connection, conf.Match.ArchiveTTL())
	matchRegistry := registry.New(logger, conf.Match.Retention(), conf.Match.CreationTimeout())
	matchManager := usecase.NewMatchManager(logger, matchRegistry, archiveRepo, conf.Match.BoardSize, conf.Match.ReconnectGrace())

	sweeper, err := startSweeper(ctx, conf, matchManager)
	if err != nil {
		return fmt.Errorf("could not start registry sweeper: %w", err)
	}

	defer func() {
		if err = sweeper.Shutdown(); err != nil {
			log.Error("could not shut down registry sweeper", "error", err)
		}
	}()

	wsServer := websocket.New(logger, matchManager)
	matchManager.SetNotifier(wsServer)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(ctx, logger, conf.HTTPPort, archiveRepo); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// startSweeper schedules the periodic registry sweep that expires stale
// waiting matches and evicts completed ones past retention.
func startSweeper(ctx context.Context, conf *config.Config, manager *usecase.MatchManager) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(conf.Match.SweepInterval()),
		gocron.NewTask(func() {
			manager.Sweep(ctx)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule sweep job: %w", err)
	}

	scheduler.Start()

	return scheduler, nil
}
