package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CoinCast/internal/domain/repository"
	"CoinCast/internal/usecase"
	pkgch "CoinCast/pkg/clickhouse"
	"CoinCast/pkg/config"
	xhttp "CoinCast/pkg/http"
	pkgkafka "CoinCast/pkg/kafka"
	applogger "CoinCast/pkg/logger"
	pkgpg "CoinCast/pkg/postgres"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger

	pgClient *pkgpg.Client
	chClient *pkgch.Client

	prices    repository.PriceStore
	runs      repository.ModelRunStore
	forecasts repository.ForecastStore
	publisher repository.EventPublisher

	consumer  *pkgkafka.Consumer
	kh        *usecase.PriceEventsHandler
	scheduler *usecase.Scheduler

	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	pgClient *pkgpg.Client,
	chClient *pkgch.Client,
	prices repository.PriceStore,
	runs repository.ModelRunStore,
	forecasts repository.ForecastStore,
	publisher repository.EventPublisher,
	consumer *pkgkafka.Consumer,
	kh *usecase.PriceEventsHandler,
	scheduler *usecase.Scheduler,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		pgClient:    pgClient,
		chClient:    chClient,
		prices:      prices,
		runs:        runs,
		forecasts:   forecasts,
		publisher:   publisher,
		consumer:    consumer,
		kh:          kh,
		scheduler:   scheduler,
		httpHandler: httpHandler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.initStores(ctx); err != nil {
		return err
	}

	if a.cfg.Kafka.Enabled && a.cfg.Kafka.LogsTopic != "" {
		if pub, ok := a.publisher.(applogger.Publisher); ok {
			a.log.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   30 * time.Second,
				CountThreshold: 100,
				Topic:          a.cfg.Kafka.LogsTopic,
				Publisher:      pub,
			})
		}
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.scheduler != nil && a.cfg.Scheduler.Enabled {
		a.scheduler.Start()
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// initStores ensures tables exist before any traffic.
func (a *App) initStores(ctx context.Context) error {
	if err := a.prices.Init(ctx); err != nil {
		a.log.Error("price store init error", applogger.Error(err))
		return err
	}
	if err := a.runs.Init(ctx); err != nil {
		a.log.Error("model run store init error", applogger.Error(err))
		return err
	}
	if err := a.forecasts.Init(ctx); err != nil {
		a.log.Error("forecast store init error", applogger.Error(err))
		return err
	}
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	a.log.RemoveCollector()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.pgClient != nil {
		if err := a.pgClient.Close(); err != nil {
			a.log.Warn("postgres close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
