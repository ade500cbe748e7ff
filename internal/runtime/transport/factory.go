package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/sqsbinder/internal/runtime/config"
	newtransport "github.com/drblury/sqsbinder/transport"

	// Import all transport packages to register them.
	_ "github.com/drblury/sqsbinder/transport/aws"
	_ "github.com/drblury/sqsbinder/transport/channel"
)

// Transport bundles the broker client with a publisher and subscriber pair.
type Transport = newtransport.Transport

// ReceiveSettings shape how the subscriber receives from one queue.
type ReceiveSettings = newtransport.ReceiveSettings

// Factory abstracts how the binder initialises its broker backend.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// DefaultFactory returns the built-in transport factory that uses the
// modular transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	t, err := newtransport.Build(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}
	if t.Broker == nil || t.Publisher == nil || t.Subscriber == nil {
		_ = t.Close()
		return Transport{}, fmt.Errorf("transport %q returned an incomplete transport", conf.TransportName())
	}
	return t, nil
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}
