package di

import (
	"context"
	"fmt"
	"net"
	"time"

	"CoinCast/internal/domain/repository"
	"CoinCast/internal/forecast"
	"CoinCast/internal/handler/api"
	"CoinCast/internal/jobs"
	internalrepo "CoinCast/internal/repository"
	"CoinCast/internal/service/coingecko"
	"CoinCast/internal/usecase"
	"CoinCast/pkg/cache"
	pkgch "CoinCast/pkg/clickhouse"
	"CoinCast/pkg/config"
	xhttp "CoinCast/pkg/http"
	pkgkafka "CoinCast/pkg/kafka"
	applogger "CoinCast/pkg/logger"
	"CoinCast/pkg/metrics"
	pkgpg "CoinCast/pkg/postgres"
	"CoinCast/pkg/server"
	"CoinCast/pkg/util"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	l, err := applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvidePostgresClient creates a Postgres client.
func ProvidePostgresClient(cfg *config.Config) (*pkgpg.Client, error) {
	client, err := pkgpg.NewClient(
		pkgpg.WithHost(cfg.Postgres.Host),
		pkgpg.WithPort(cfg.Postgres.Port),
		pkgpg.WithDatabase(cfg.Postgres.Database),
		pkgpg.WithCredentials(cfg.Postgres.User, cfg.Postgres.Password),
		pkgpg.WithSSLMode(cfg.Postgres.SSLMode),
		pkgpg.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
		pkgpg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, nil
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCache creates the cache service, layered over Redis when enabled.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}

	host, port := splitAddr(cfg.Redis.Addr, 6379)
	redisCache, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(redisCache), nil
}

func splitAddr(addr string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	return host, util.ParseIntDefault(portStr, defaultPort)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvidePriceStore creates the ClickHouse price store behind a read cache.
func ProvidePriceStore(chClient *pkgch.Client, c cache.Service, cfg *config.Config, l *applogger.Logger) repository.PriceStore {
	table := cfg.ClickHouse.Database + ".daily_prices"
	inner := internalrepo.NewClickHousePriceStore(chClient.DB(), table)
	inner.SetLogger(l)

	ttl := cfg.Prices.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	store := internalrepo.NewCachedPriceStore(inner, c, ttl)
	store.SetLogger(l)
	return store
}

// ProvideModelRunStore creates the Postgres model run store.
func ProvideModelRunStore(pgClient *pkgpg.Client, l *applogger.Logger) repository.ModelRunStore {
	store := internalrepo.NewPostgresModelRunStore(pgClient.DB())
	store.SetLogger(l)
	return store
}

// ProvideForecastStore creates the Postgres forecast store.
func ProvideForecastStore(pgClient *pkgpg.Client, l *applogger.Logger) repository.ForecastStore {
	store := internalrepo.NewPostgresForecastStore(pgClient.DB())
	store.SetLogger(l)
	return store
}

// ProvideEventPublisher creates the Kafka publisher, or a noop one when
// Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config) (repository.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NoopEventPublisher{}, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.PricesTopic, cfg.Kafka.EventsTopic), nil
}

// ProvideKafkaConsumer creates a Kafka consumer, nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvidePriceSource creates the CoinGecko history client.
func ProvidePriceSource(cfg *config.Config, l *applogger.Logger) repository.PriceSource {
	client := coingecko.New(cfg.Prices.BaseURL, cfg.Prices.APIKey, cfg.Prices.Timeout, cfg.Prices.RatePerMin)
	client.SetLogger(l)
	return client
}

// ProvideModelRegistry creates the model run registry.
func ProvideModelRegistry(runs repository.ModelRunStore, cfg *config.Config, l *applogger.Logger) *forecast.Registry {
	r := forecast.NewRegistry(runs, cfg.Forecast.WorkDir)
	r.SetLogger(l)
	return r
}

// ProvideTrainer creates the model trainer.
func ProvideTrainer(prices repository.PriceStore, registry *forecast.Registry, c cache.Service, m repository.Metrics, l *applogger.Logger) *forecast.Trainer {
	t := forecast.NewTrainer(prices, registry, c, m)
	t.SetLogger(l)
	return t
}

// ProvidePredictor creates the forecast predictor.
func ProvidePredictor(prices repository.PriceStore, forecasts repository.ForecastStore, registry *forecast.Registry, m repository.Metrics, l *applogger.Logger) *forecast.Predictor {
	p := forecast.NewPredictor(prices, forecasts, registry, m)
	p.SetLogger(l)
	return p
}

// ProvideJobRegistry creates the single-flight job registry.
func ProvideJobRegistry(m repository.Metrics, l *applogger.Logger) *jobs.Registry {
	r := jobs.NewRegistry(m)
	r.SetLogger(l)
	return r
}

// ProvideForecastService creates the forecast orchestration service.
func ProvideForecastService(
	trainer *forecast.Trainer,
	predictor *forecast.Predictor,
	jobRegistry *jobs.Registry,
	runs repository.ModelRunStore,
	forecasts repository.ForecastStore,
	publisher repository.EventPublisher,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.ForecastService {
	svc := usecase.NewForecastService(trainer, predictor, jobRegistry, runs, forecasts, publisher, cfg)
	svc.SetLogger(l)
	return svc
}

// ProvidePriceUpdater creates the price updater.
func ProvidePriceUpdater(
	source repository.PriceSource,
	prices repository.PriceStore,
	publisher repository.EventPublisher,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.PriceUpdater {
	u := usecase.NewPriceUpdater(source, prices, publisher, m, cfg.Prices.LookbackDays)
	u.SetLogger(l)
	return u
}

// ProvideScheduler creates the periodic refresh scheduler.
func ProvideScheduler(updater *usecase.PriceUpdater, svc *usecase.ForecastService, cfg *config.Config, l *applogger.Logger) *usecase.Scheduler {
	s := usecase.NewScheduler(updater, svc, cfg)
	s.SetLogger(l)
	return s
}

// ProvidePriceEventsHandler registers the handler for the prices topic.
func ProvidePriceEventsHandler(cfg *config.Config, svc *usecase.ForecastService, l *applogger.Logger) *usecase.PriceEventsHandler {
	h := usecase.NewPriceEventsHandler(cfg.Kafka.PricesTopic, svc)
	h.SetLogger(l)
	return h
}

// ProvideHTTPHandler creates the Echo route handler.
func ProvideHTTPHandler(l *applogger.Logger, svc *usecase.ForecastService, prices repository.PriceStore) xhttp.Handler {
	return api.NewForecastEchoHandler(l, svc, prices)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
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
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.LoggingHook{})
	}
	return server.New(cfg, l, pgClient, chClient, prices, runs, forecasts, publisher, consumer, kh, scheduler, httpHandler)
}
