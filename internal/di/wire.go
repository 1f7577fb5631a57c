//go:build wireinject
// +build wireinject

package di

import (
	"TapeDeck/pkg/config"
	"TapeDeck/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideOverlay,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideCache,
		ProvideBus,
		ProvideStore,
		ProvidePersister,

		// Collaborators
		ProvideDataAPI,
		ProvideQuoteStream,
		ProvideEngines,
		ProvideBroker,

		// Services and orchestration
		ProvideServices,
		ProvideSession,
		ProvideModeManager,
		ProvideController,
		ProvideRouter,

		// HTTP surface
		ProvideHandler,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
