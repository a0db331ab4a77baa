//go:build wireinject
// +build wireinject

package di

import (
	"ModelHub/internal/usecase"
	"ModelHub/pkg/config"
	"ModelHub/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideDialect,
		ProvideDatabase,
		ProvideCache,

		// Repositories
		ProvideModelStore,
		ProvideRegistryStore,
		ProvideBlobCache,
		ProvideEventPublisher,

		// Use cases
		ProvideEngine,
		usecase.NewRunHub,
		ProvideTrainingUseCase,
		usecase.NewRegistryUseCase,
		ProvideKafkaTrainHandler,

		// Transport
		ProvideHandlers,
		ProvideHTTPServer,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
