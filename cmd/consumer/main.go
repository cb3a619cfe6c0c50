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

	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/notification-service/internal/app"
	"github.com/jwalitptl/notification-service/internal/config"
	"github.com/jwalitptl/notification-service/internal/service/event"
	"github.com/jwalitptl/notification-service/internal/worker"
	"github.com/jwalitptl/notification-service/pkg/logger"
	"github.com/jwalitptl/notification-service/pkg/messaging/rabbitmq"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Log.ToLoggerConfig()).
		WithFields(map[string]interface{}{"service": cfg.Service.Name, "process": "consumer"})

	if err := run(cfg, log); err != nil {
		log.Error(err, "Consumer stopped")
		os.Exit(1)
	}
	log.Info("Consumer shut down cleanly")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error(err, "Failed to close resources")
		}
	}()

	router := event.NewRouter(a.Service, log, a.Metrics)
	consumer := rabbitmq.NewConsumer(cfg.RabbitMQ.ToConsumerConfig(), router, log, a.Metrics)
	defer consumer.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := consumer.Run(gctx)
		if errors.Is(err, rabbitmq.ErrReconnectExhausted) {
			log.Error(err, "Giving up on the message broker")
		}
		return err
	})

	if cfg.RetryWorker.Enabled {
		sweeper := worker.NewRetrySweeper(a.Service, cfg.RetryWorker.ToSweeperConfig(), log, a.Metrics)
		g.Go(func() error {
			sweeper.Start(gctx)
			return nil
		})
	}

	if cfg.Consumer.HealthPort > 0 {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Consumer.HealthPort),
			Handler:           a.Router(false).Engine(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("Health server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info("Notification consumer started", "queue", cfg.RabbitMQ.Queue)
	return g.Wait()
}
