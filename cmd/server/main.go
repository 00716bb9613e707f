package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/immxrtalbeast/telemed/internal/api/http"
	"github.com/immxrtalbeast/telemed/internal/config"
	"github.com/immxrtalbeast/telemed/internal/relay"
	"github.com/immxrtalbeast/telemed/internal/repository"
	"github.com/immxrtalbeast/telemed/internal/repository/model"
	"github.com/immxrtalbeast/telemed/internal/service"
	"github.com/immxrtalbeast/telemed/lib/logger"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)

	store, err := setupStorage(cfg.Database)
	if err != nil {
		log.Error("failed to set up storage", sl.Err(err))
		os.Exit(1)
	}
	log.Info("storage ready", slog.String("driver", cfg.Database.Driver))

	hub := relay.NewHub(cfg.Relay, log)

	userService := service.NewUserService(store.users, log)
	coordinator := service.NewCoordinator(store.queue, store.users, store.consultations, hub, log)
	queueService := service.NewQueueService(store.queue, store.users, coordinator, log)

	router := httpapi.SetupRouter(cfg.HTTP, httpapi.Controllers{
		Users:         httpapi.NewUserController(userService),
		Queue:         httpapi.NewQueueController(queueService),
		Consultations: httpapi.NewConsultationController(coordinator),
		Relay:         httpapi.NewRelayController(hub, userService, log),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// relay connections are hijacked, Shutdown does not wait for them
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", sl.Err(err))
	}
	if err := store.close(); err != nil {
		log.Warn("database close", sl.Err(err))
	}
}

type storage struct {
	queue         repository.QueueRepository
	users         repository.UserRepository
	consultations repository.ConsultationRepository
	close         func() error
}

func setupStorage(cfg config.DatabaseConfig) (*storage, error) {
	if cfg.Driver == "" || cfg.Driver == "memory" {
		return &storage{
			queue:         repository.NewInMemoryQueueRepository(),
			users:         repository.NewInMemoryUserRepository(),
			consultations: repository.NewInMemoryConsultationRepository(),
			close:         func() error { return nil },
		}, nil
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &storage{
		queue:         repository.NewGormQueueRepository(db),
		users:         repository.NewGormUserRepository(db),
		consultations: repository.NewGormConsultationRepository(db),
		close:         sqlDB.Close,
	}, nil
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "sqlite" {
		// sqlite allows one writer at a time
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(25)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
