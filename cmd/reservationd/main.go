package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studyspace-reservation/config"
	"studyspace-reservation/internal/api"
	"studyspace-reservation/internal/db"
	"studyspace-reservation/internal/events"
	"studyspace-reservation/internal/identity"
	"studyspace-reservation/internal/lock"
	"studyspace-reservation/internal/logger"
	"studyspace-reservation/internal/reservation"
	"studyspace-reservation/internal/store"
)

const serviceName = "studyspace-reservation"

func main() {
	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	// Setup logger
	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()
	zlog.Info("configuration loaded", zap.String("path", configPath))

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("service stopped with error", zap.Error(err))
	}
	zlog.Info("server gracefully stopped")
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, zlog)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.EnsureResources(ctx, gormDB, cfg.Schedule.Seat.Count, cfg.Schedule.Room.Count, cfg.Schedule.Room.MinParticipants); err != nil {
		return err
	}
	appStore := store.NewGormStore(gormDB)

	locker, closeLocker, err := newLocker(ctx, cfg.Lock, zlog)
	if err != nil {
		return err
	}
	defer closeLocker()

	ids, err := identity.NewValidator(cfg.Identity.Pattern, cfg.Identity.Denylist)
	if err != nil {
		return err
	}

	opts := []reservation.Option{reservation.WithLogger(zlog)}
	var pool *events.WorkerPool
	if cfg.Events.Enabled {
		publisher := events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Queue, zlog)
		defer publisher.Close()

		// Buffer a few events per worker before dropping.
		pool = events.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.Size*64, publisher, zlog)
		pool.Start(ctx)
		opts = append(opts, reservation.WithSink(pool))
		zlog.Info("reservation events enabled", zap.String("queue", cfg.Events.Queue))
	}

	svc := reservation.NewService(appStore, locker, ids, reservation.PolicyFromConfig(cfg.Schedule), opts...)

	router := api.NewRouter(svc, cfg.Server, zlog)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		zlog.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		zlog.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	cancel()
	if pool != nil {
		pool.Wait()
	}
	return nil
}

func newLocker(ctx context.Context, cfg config.LockConfig, zlog *zap.Logger) (lock.Locker, func(), error) {
	if cfg.Backend != config.LockBackendRedis {
		zlog.Info("using in-process locks")
		return lock.NewLocalLocker(cfg.Wait()), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
	}
	zlog.Info("using redis locks", zap.String("addr", cfg.Redis.Addr))
	return lock.NewRedisLocker(rdb, cfg.Wait(), cfg.TTL()), func() { rdb.Close() }, nil
}

