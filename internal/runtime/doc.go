/*
Package runtime binds logical message destinations to SNS topics and SQS queues.

# Architecture Overview

A Binder owns a transport (broker client, publisher and subscriber), a topology
provisioner and a Watermill router. Binding a producer or a consumer provisions
the broker resources it needs and returns a binding that moves messages:

  - fanout mode: one topic per destination, one queue per consumer group
    subscribed to it. Inbound messages arrive wrapped in a notification
    envelope which the inbound adapter strips before the handler runs.
  - direct mode: one queue per destination shared by producers and consumers,
    no envelope.

# Package Structure

## Binder (binder.go, bindings.go)

NewBinder validates the configuration, builds the transport and prepares the
router. BindProducer and BindConsumer provision topology on demand; Run starts
the router.

## Typed JSON bindings (registration_json.go)

BindJSONConsumer and ProducerBinding.PublishJSON encode and decode JSON bodies.

## Middleware (middleware.go)

Router middlewares run before the inbound adapter:
  - CorrelationID: Ensures message traceability
  - LogMessages: Debug logging of message payloads
  - Tracer: OpenTelemetry spans around handlers
  - Metrics: Watermill router metrics on the binder registry
  - Retry: Exponential backoff, never for malformed envelopes (opt-in)
  - Recoverer: Panic recovery

# Sub-packages

  - broker/: control plane client for topics, queues and subscriptions (AWS and in-memory)
  - config/: binder configuration with validation
  - destination/: provisioned producer and consumer destinations
  - envelope/: notification envelope codec and payload adapters
  - errors/: sentinel errors and error types
  - handlers/: typed JSON handlers
  - ids/: ULIDs and anonymous queue suffixes
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
  - metadata/: message header utilities
  - metrics/: Prometheus collectors
  - provisioning/: topology provisioner, filter policies, queue attributes and naming
  - transport/: transport factory over the registry

# Usage Example

	cfg := &sqsbinder.Config{
		AWSRegion: "eu-west-1",
		Mode:      sqsbinder.ModeFanOut,
	}

	binder, err := sqsbinder.NewBinder(ctx, cfg, logger, sqsbinder.BinderDependencies{})
	if err != nil {
		return err
	}
	defer binder.Close()

	_, err = binder.BindConsumer(ctx, sqsbinder.ConsumerRegistration{
		Name:    "orders",
		Group:   "billing",
		Handler: bill,
	})

	orders, err := binder.BindProducer(ctx, "orders", nil)

	go binder.Run(ctx)
	err = orders.PublishJSON(ctx, &OrderPlaced{ID: "o-1"}, nil)
*/
package runtime
