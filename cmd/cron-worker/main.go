package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecolote/leadengine/internal/app"
	"github.com/ecolote/leadengine/internal/cron"
	"github.com/ecolote/leadengine/pkg/config"
	"github.com/ecolote/leadengine/pkg/db"
	"github.com/ecolote/leadengine/pkg/instance"
	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/metrics"
	"github.com/ecolote/leadengine/pkg/migrate"
	"github.com/ecolote/leadengine/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := app.New(context.Background(), app.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Registry: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}
	defer services.Close()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	locks, err := cron.NewJobLocks(redisClient, redisClient.LockKey(serviceKind, cfg.App.Env), cfg.Cron.LockTTL, instance.GetID())
	if err != nil {
		logg.Error(context.Background(), "failed to create job locks", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewReactivationJob(cron.ReactivationJobParams{
		Logger:  logg,
		Sweeper: services.Reactivation,
		Metrics: metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reactivation job", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(sweepJob)
	if err != nil {
		logg.Error(context.Background(), "failed to build job registry", err)
		os.Exit(1)
	}
	if cfg.Candidates.Enabled() {
		replenishJob, err := cron.NewReplenishJob(cron.ReplenishJobParams{
			Logger:  logg,
			Leads:   services.Leads,
			Metrics: metricsCollector,
			City:    cfg.Candidates.City,
			State:   cfg.Candidates.State,
			Terms:   cfg.Candidates.Terms,
		})
		if err == nil {
			err = registry.Register(replenishJob)
		}
		if err != nil {
			logg.Error(context.Background(), "failed to register replenish job", err)
			os.Exit(1)
		}
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locks:    locks,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"once":        *once,
		"instance":    instance.GetID(),
	})

	if *once {
		logg.Info(ctx, "running cron jobs once")
		report, err := service.RunOnce(ctx)
		if err != nil {
			logg.Error(ctx, "cron run failed", err)
			os.Exit(1)
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"ran":     report.Ran,
			"skipped": report.Skipped,
		}), "cron run finished")
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
