package runtime

import (
	"context"

	configpkg "github.com/drblury/sqsbinder/internal/runtime/config"
	errspkg "github.com/drblury/sqsbinder/internal/runtime/errors"
	handlerpkg "github.com/drblury/sqsbinder/internal/runtime/handlers"
	metadatapkg "github.com/drblury/sqsbinder/internal/runtime/metadata"
)

// JSONConsumerRegistration binds a typed JSON handler. T must be a pointer type.
type JSONConsumerRegistration[T any] struct {
	Name       string
	Group      string
	Properties *configpkg.ConsumerProperties
	Handler    handlerpkg.JSONMessageHandler[T]
}

// BindJSONConsumer decodes every payload of the bound queue into T before
// calling the handler. Payloads that do not decode are returned to the router
// as errors.
func BindJSONConsumer[T any](ctx context.Context, b *Binder, reg JSONConsumerRegistration[T]) (*ConsumerBinding, error) {
	if b == nil {
		return nil, errspkg.ErrBinderRequired
	}

	wrapped, err := handlerpkg.BuildJSONHandler(reg.Handler, b.Logger)
	if err != nil {
		return nil, err
	}

	return b.BindConsumer(ctx, ConsumerRegistration{
		Name:       reg.Name,
		Group:      reg.Group,
		Properties: reg.Properties,
		Handler:    wrapped,
	})
}

// PublishJSON encodes payload and publishes it to the destination.
func (p *ProducerBinding) PublishJSON(ctx context.Context, payload any, md metadatapkg.Metadata) error {
	msg, err := handlerpkg.NewJSONMessage(payload, md)
	if err != nil {
		return err
	}
	return p.Publish(ctx, msg)
}
