// Package transport defines how the binder obtains broker backends. Each
// implementation (aws, channel) lives in its own sub-package and registers
// itself with the transport registry.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/sqsbinder/internal/runtime/broker"
)

// Transport bundles the control plane client used for provisioning with the
// publisher and subscriber that move messages.
type Transport struct {
	// Broker provisions topics, queues and subscriptions.
	Broker broker.Client
	// Publisher sends to topics in the fanout mode and to queues in the direct mode.
	Publisher message.Publisher
	// Subscriber consumes queues.
	Subscriber message.Subscriber
	// ReceiveSettings is consulted by the subscriber for each queue it
	// receives from. Nil when the transport has no receive knobs.
	ReceiveSettings *ReceiveSettingsRegistry
}

// Close closes the publisher and the subscriber.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		errs = append(errs, t.Publisher.Close())
	}
	if t.Subscriber != nil {
		errs = append(errs, t.Subscriber.Close())
	}
	return errors.Join(errs...)
}

// Builder is the function signature for creating a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports.
// This interface allows transports to access only the config they need
// without depending on the full config package.
type Config interface {
	// GetTransport returns the transport name.
	GetTransport() string
	// GetMode returns the topology mode, "fanout" or "direct".
	GetMode() string
	// GetPartitionHeader returns the header carrying the partition index.
	GetPartitionHeader() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}
