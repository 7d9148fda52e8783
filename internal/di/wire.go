//go:build wireinject
// +build wireinject

package di

import (
	"SignalHub/pkg/config"
	"SignalHub/pkg/server"

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
		ProvideStore,
		ProvideCache,
		ProvideCandleArchive,
		ProvideKafkaProducer,
		ProvideEventPublisher,
		ProvideKafkaConsumer,
		ProvideBinanceClient,

		// Core
		ProvideHub,
		ProvideGateway,
		ProvideSignalIngestor,

		// Background work
		ProvideCandleRefresher,
		ProvidePriceRelay,
		ProvideKafkaSignalHandler,

		// HTTP
		ProvideAuth,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
