//go:build wireinject
// +build wireinject

package di

import (
	"PlantDex/pkg/config"
	"PlantDex/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	// Observability
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,

	// Infrastructure clients
	ProvideRedisCache,
	ProvideCache,
	ProvideLocker,
	ProvideClickHouseClient,
	ProvidePostgresClient,

	// Repositories
	ProvideMemoryStore,
	ProvideStore,
	ProvideObservationStore,
	ProvideSeasonalReference,
)

var engineSet = wire.NewSet(
	ProvideAggregator,
	ProvideIndexCalculator,
	ProvideScorer,
	ProvideForecaster,
	ProvideOpportunityDetector,
	ProvideComputeUseCase,
	ProvideQueryUseCase,
)

// InitializeApp wires up all dependencies and returns the serving application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		engineSet,

		// Ingest
		ProvideObservationPublisher,
		ProvideObservationProcessor,
		ProvideCollector,
		ProvideKafkaConsumer,
		ProvideKafkaObservationsHandler,

		// Triggers
		ProvideJobQueue,
		ProvideScheduler,

		// Application server
		ProvideMarketHandler,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeEngine wires the engine for one-shot CLI commands.
func InitializeEngine(cfg *config.Config) (*Engine, func(), error) {
	wire.Build(
		infraSet,
		engineSet,
		ProvideJobPublisher,
		ProvideEngine,
	)
	return nil, nil, nil
}
