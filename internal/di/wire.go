//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"NeuralTrade/internal/domain/repository"
	"NeuralTrade/pkg/config"
	"NeuralTrade/pkg/metrics"
	"NeuralTrade/pkg/server"
)

// PipelineSet builds everything a prediction needs, without the serving layer.
var PipelineSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),

	// Infrastructure clients
	ProvideClickHouseClient,
	ProvideKafkaProducer,
	ProvideRedisClient,

	// Repositories
	ProvideSignalStore,
	ProvideCandleStore,
	ProvidePredictionCache,

	// Domain services
	ProvideEngine,
	ProvideCalculator,
	ProvideAssessor,

	// Sinks and use cases
	ProvideHub,
	ProvideDispatcher,
	ProvidePredictor,
	ProvideOutcomeRecorder,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		PipelineSet,

		ProvideKafkaConsumer,
		ProvideCandlesHandler,
		ProvideOutcomeQueue,

		ProvideSignalsHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
