// Package app assembles the notification stack shared by the API and the
// consumer processes.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/notification-service/internal/config"
	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/repository"
	"github.com/jwalitptl/notification-service/internal/repository/memory"
	"github.com/jwalitptl/notification-service/internal/repository/mongo"
	"github.com/jwalitptl/notification-service/internal/repository/postgres"
	"github.com/jwalitptl/notification-service/internal/service/event"
	"github.com/jwalitptl/notification-service/internal/service/notification"
	"github.com/jwalitptl/notification-service/pkg/channel"
	"github.com/jwalitptl/notification-service/pkg/circuitbreaker"
	"github.com/jwalitptl/notification-service/pkg/dedup"
	"github.com/jwalitptl/notification-service/pkg/logger"
	"github.com/jwalitptl/notification-service/pkg/metrics"
)

const metricsNamespace = "notification"

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Store    repository.NotificationRepository
	Channels channel.Registry
	Guard    dedup.Guard
	Service  notification.Service

	closers []func() error
}

// New opens the store and builds the delivery channels. Close releases
// whatever was opened, including on a partial failure.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (a *App, err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a = &App{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Metrics:  metrics.New(metricsNamespace, reg),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if a.Store, err = a.openStore(ctx); err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.Store.Close)

	if a.Channels, err = a.buildChannels(); err != nil {
		return a, err
	}

	if a.Guard, err = a.buildGuard(ctx); err != nil {
		return a, err
	}

	svcCfg := cfg.ToServiceConfig()
	svcCfg.RetryPlan = event.RetryPlan
	a.Service = notification.NewService(a.Store, a.Channels, a.Guard, svcCfg, log, a.Metrics)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.NotificationRepository, error) {
	switch a.Config.Storage.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, a.Config.Storage.Postgres.ToDBConfig())
		if err != nil {
			return nil, err
		}
		if a.Config.Storage.Postgres.AutoMigrate {
			if err := postgres.Migrate(ctx, db, a.Logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		a.Logger.Info("Connected to PostgreSQL", "database", a.Config.Storage.Postgres.Name)
		return postgres.NewNotificationRepository(postgres.NewBaseRepository(db, a.Metrics)), nil

	case "mongo":
		mcfg := a.Config.Storage.Mongo.ToClientConfig()
		client, err := mongo.Connect(ctx, mcfg)
		if err != nil {
			return nil, err
		}
		repo, err := mongo.NewNotificationRepository(ctx, client, mcfg.Database)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		a.Logger.Info("Connected to MongoDB", "database", mcfg.Database)
		return repo, nil

	case "memory":
		a.Logger.Warn("Using in-memory store, notifications are lost on restart")
		return memory.NewNotificationRepository(), nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", a.Config.Storage.Driver)
}

func (a *App) buildChannels() (channel.Registry, error) {
	cc := a.Config.Channels

	var email channel.Channel
	switch cc.EmailProvider {
	case "smtp":
		smtp, err := channel.NewSMTP(cc.SMTP.ToChannelConfig())
		if err != nil {
			return nil, err
		}
		email = channel.WithBreaker(smtp, circuitbreaker.NewCircuitBreaker(cc.Breaker.ToSettings("email-smtp")))
	case "postmark":
		pm, err := channel.NewPostmark(cc.Postmark.ToChannelConfig())
		if err != nil {
			return nil, err
		}
		email = channel.WithBreaker(pm, circuitbreaker.NewCircuitBreaker(cc.Breaker.ToSettings("email-postmark")))
	default:
		email = channel.NewSimulated(model.NotificationTypeEmail, cc.EmailSimulation(), a.Logger)
	}

	sms := channel.NewSimulated(model.NotificationTypeSMS, cc.SMSSimulation(), a.Logger)

	a.Logger.Info("Delivery channels ready", "email_provider", cc.EmailProvider, "sms_provider", cc.SMSProvider)
	return channel.NewRegistry(email, sms), nil
}

func (a *App) buildGuard(ctx context.Context) (dedup.Guard, error) {
	dc := a.Config.Dedup
	switch dc.Backend {
	case "redis":
		g, err := dedup.NewRedis(ctx, dc.ToRedisConfig())
		if err != nil {
			return nil, err
		}
		if c, ok := g.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
		return g, nil
	case "memory":
		return dedup.NewMemory(dc.TTL), nil
	}
	return dedup.Noop(), nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
