//go:build wireinject
// +build wireinject

package di

import (
	"SetupScan/pkg/config"
	"SetupScan/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideRedisCache,
	ProvideKafkaConsumer,
)

var domainSet = wire.NewSet(
	ProvideRuleRegistry,
	ProvideModelStore,
	ProvideDetector,
	ProvideEvaluator,
	ProvideScorer,
	ProvidePhaseMachine,
	ProvideNewsCalendar,
	ProvideContextProvider,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		domainSet,

		// Repositories
		ProvideCandleSource,
		ProvidePhaseStore,
		ProvideResultArchive,

		// Alert delivery
		ProvideHub,
		ProvideAlertEmitter,
		ProvideAlertRelay,

		// Use cases
		ProvideSnapshotLoader,
		ProvideScanner,
		ProvideEvaluateUseCase,

		// HTTP and application server
		ProvideSetupsHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
