// Package app assembles the lead services shared by the api and cron-worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecolote/leadengine/internal/history"
	"github.com/ecolote/leadengine/internal/leads"
	"github.com/ecolote/leadengine/internal/notifications"
	"github.com/ecolote/leadengine/internal/reactivation"
	"github.com/ecolote/leadengine/pkg/candidates"
	"github.com/ecolote/leadengine/pkg/config"
	"github.com/ecolote/leadengine/pkg/db"
	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/metrics"
	"github.com/ecolote/leadengine/pkg/pubsub"
	"github.com/ecolote/leadengine/pkg/redis"
)

// Params holds the already bootstrapped infrastructure.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Registry prometheus.Registerer
}

// Services is the wired domain layer.
type Services struct {
	Engine       *leads.Engine
	Leads        leads.Service
	Reactivation reactivation.Service
	History      history.Service
	Lifecycle    *metrics.LifecycleMetrics

	closers []func()
}

// Close drains the notification pool and releases channel resources, newest first.
func (s *Services) Close() {
	if s == nil {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func New(ctx context.Context, params Params) (*Services, error) {
	if params.Config == nil || params.Logger == nil || params.DB == nil {
		return nil, errors.New("config, logger and db are required")
	}
	cfg := params.Config
	logg := params.Logger
	svcs := &Services{Lifecycle: metrics.NewLifecycleMetrics(params.Registry)}

	channel, closeChannel, err := newChannel(ctx, cfg, logg, params.Redis)
	if err != nil {
		return nil, err
	}
	svcs.closers = append(svcs.closers, closeChannel)

	broadcaster, err := notifications.NewBroadcaster(notifications.BroadcasterParams{
		Channel:   channel,
		Logger:    logg,
		Metrics:   svcs.Lifecycle,
		Workers:   cfg.Notifications.Workers,
		QueueSize: cfg.Notifications.QueueSize,
	})
	if err != nil {
		svcs.Close()
		return nil, fmt.Errorf("creating broadcaster: %w", err)
	}
	svcs.closers = append(svcs.closers, broadcaster.Close)

	historyRepo := history.NewRepository(params.DB.DB())
	engine, err := leads.NewEngine(leads.EngineParams{
		Leads:     leads.NewRepository(params.DB.DB()),
		History:   historyRepo,
		Tx:        params.DB,
		Publisher: broadcaster,
		Metrics:   svcs.Lifecycle,
		Logger:    logg,
	})
	if err != nil {
		svcs.Close()
		return nil, fmt.Errorf("creating lifecycle engine: %w", err)
	}
	svcs.Engine = engine

	ingestParams := leads.IngestParams{
		PhoneRegion:         cfg.Lifecycle.PhoneRegion,
		MinAvailablePerTerm: cfg.Lifecycle.MinAvailablePerTerm,
		FetchConcurrency:    cfg.Candidates.Concurrency,
		DefaultCity:         cfg.Candidates.City,
		DefaultState:        cfg.Candidates.State,
		DefaultTerms:        cfg.Candidates.Terms,
	}
	if cfg.Candidates.Enabled() {
		source, err := candidates.NewClient(cfg.Candidates)
		if err != nil {
			svcs.Close()
			return nil, fmt.Errorf("creating candidate client: %w", err)
		}
		ingestParams.Source = source
	} else {
		logg.Warn(ctx, "candidate source not configured; replenish disabled")
	}

	svcs.Leads, err = leads.NewService(engine, ingestParams)
	if err != nil {
		svcs.Close()
		return nil, fmt.Errorf("creating lead service: %w", err)
	}

	extensionDays, err := cfg.Lifecycle.AllowedExtensionDays()
	if err != nil {
		svcs.Close()
		return nil, err
	}
	svcs.Reactivation, err = reactivation.NewService(reactivation.ServiceParams{
		Engine:           engine,
		Logger:           logg,
		InactivityDays:   cfg.Lifecycle.InactivityDays,
		ReactivationDays: cfg.Lifecycle.ReactivationDays,
		BatchSize:        cfg.Lifecycle.SweepBatchSize,
		ExtensionDays:    extensionDays,
	})
	if err != nil {
		svcs.Close()
		return nil, fmt.Errorf("creating reactivation service: %w", err)
	}

	svcs.History, err = history.NewService(historyRepo)
	if err != nil {
		svcs.Close()
		return nil, fmt.Errorf("creating history service: %w", err)
	}

	return svcs, nil
}

func newChannel(ctx context.Context, cfg *config.Config, logg *logger.Logger, redisClient *redis.Client) (notifications.Channel, func(), error) {
	noop := func() {}
	switch strings.ToLower(cfg.Notifications.Driver) {
	case config.NotifyDriverRedis:
		channel, err := notifications.NewRedisChannel(redisClient)
		if err != nil {
			return nil, nil, fmt.Errorf("creating redis channel: %w", err)
		}
		return channel, noop, nil
	case config.NotifyDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("creating pubsub client: %w", err)
		}
		channel, err := notifications.NewPubSubChannel(client.LeadEventsPublisher())
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return channel, func() {
			channel.Stop()
			if err := client.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}, nil
	}
	return notifications.NewLogChannel(logg), noop, nil
}
