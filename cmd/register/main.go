package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cafe-pos/register/internal/backend"
	"github.com/cafe-pos/register/internal/config"
	"github.com/cafe-pos/register/internal/draft"
	"github.com/cafe-pos/register/internal/events"
	"github.com/cafe-pos/register/internal/journal"
	"github.com/cafe-pos/register/internal/metrics"
	"github.com/cafe-pos/register/internal/poller"
	"github.com/cafe-pos/register/internal/router"
	"github.com/cafe-pos/register/internal/service"
	"github.com/cafe-pos/register/internal/ws"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const draftTTL = 12 * time.Hour

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
	}
	log := logger.WithField("register_id", cfg.RegisterID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Submission journal (optional)
	var rec journal.Recorder = journal.NopRecorder{}
	if cfg.DatabaseURL != "" {
		if err := migrateUp(cfg); err != nil {
			log.WithError(err).Fatal("failed to apply migrations")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("unable to create connection pool")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.WithError(err).Fatal("unable to ping database")
		}
		rec = journal.NewPGRecorder(pool)
		log.Info("submission journal enabled")
	}

	// Draft store (optional)
	var drafts draft.Store = draft.NopStore{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, drafts will not survive restarts until it recovers")
		}
		drafts = draft.NewRedisStore(rdb, draftTTL, logger)
		log.Info("draft store enabled")
	}

	// Event fan-out
	var sinks []events.Sink
	if len(cfg.KafkaBrokers) > 0 {
		sink := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer sink.Close()
		sinks = append(sinks, sink)
		log.WithField("topic", cfg.KafkaTopic).Info("kafka event sink enabled")
	}
	bus := events.NewBus(cfg.RegisterID, logger, sinks...)

	register := service.NewRegister(
		service.Config{RegisterID: cfg.RegisterID, SubmitTimeout: cfg.SubmitTimeout},
		service.Deps{
			Backend: backend.New(cfg.Backend, logger),
			Journal: rec,
			Drafts:  drafts,
			Events:  bus,
			Metrics: m,
			Logger:  logger,
		},
	)
	if restored, err := register.Restore(ctx); err != nil {
		log.WithError(err).Warn("could not restore draft")
	} else if restored {
		log.Info("resumed in-progress order")
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)
	feed, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	go hub.Forward(ctx, feed)

	p, err := poller.New(register, cfg.Poll, logger)
	if err != nil {
		log.WithError(err).Fatal("invalid poll configuration")
	}
	p.Start()
	defer p.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, register, rec, hub, m, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("register listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SubmitTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

func migrateUp(cfg *config.Config) error {
	m, err := migrate.New("file://"+cfg.MigrationsDir, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
