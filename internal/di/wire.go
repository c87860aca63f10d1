//go:build wireinject
// +build wireinject

package di

import (
	"CoinCast/pkg/config"
	"CoinCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvidePostgresClient,
		ProvideClickHouseClient,
		ProvideCache,
		ProvideEventPublisher,
		ProvideKafkaConsumer,

		// Repositories
		ProvidePriceStore,
		ProvideModelRunStore,
		ProvideForecastStore,
		ProvidePriceSource,

		// Forecasting
		ProvideModelRegistry,
		ProvideTrainer,
		ProvidePredictor,
		ProvideJobRegistry,

		// Use cases
		ProvideForecastService,
		ProvidePriceUpdater,
		ProvideScheduler,
		ProvidePriceEventsHandler,

		// HTTP
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
