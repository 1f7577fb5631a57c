package bus

import (
	"context"

	"TapeDeck/internal/domain/models"
	"TapeDeck/pkg/logger"
)

// Dispatcher accepts state events; implemented by the store.
type Dispatcher interface {
	Dispatch(ev models.Event)
}

// IntentHandler consumes order intents; implemented by the controller.
type IntentHandler interface {
	HandleOrderIntent(ctx context.Context, intent models.OrderIntent) error
}

// Router drains the bus on a single goroutine: order intents go to the
// controller, everything else becomes a store dispatch. One consumer
// keeps per-key ordering intact downstream.
type Router struct {
	bus     *Bus
	store   Dispatcher
	intents IntentHandler
	log     *logger.Logger
}

// NewRouter wires the bus to its consumers.
func NewRouter(b *Bus, store Dispatcher, intents IntentHandler, log *logger.Logger) *Router {
	return &Router{bus: b, store: store, intents: intents, log: log}
}

// Run consumes events until the context is done or the bus is closed.
func (r *Router) Run(ctx context.Context) {
	for {
		ev, err := r.bus.Next(ctx)
		if err != nil {
			r.log.Debug("event router exit", logger.Error(err))
			return
		}
		switch e := ev.(type) {
		case models.OrderIntent:
			if r.intents != nil {
				if err := r.intents.HandleOrderIntent(ctx, e); err != nil {
					r.log.Warn("order intent failed", logger.String("symbol", e.Symbol), logger.Error(err))
				}
			}
		default:
			r.store.Dispatch(ev)
		}
	}
}
