// Package sqsbinder is a small layer on top of Watermill that binds logical
// message destinations to AWS SNS topics and SQS queues. It provisions the
// broker topology a binding needs on demand and adapts payloads on the way in
// and out, so applications publish and consume plain messages.
//
// Two topologies are supported, selected by Config.Mode:
//   - fanout (default): a topic per destination and a queue per consumer group
//     subscribed to it. Groups get durable queues; consumers without a group
//     get an anonymous queue of their own. Partitioned groups get one queue per
//     instance, filtered down to the instance's partition with a subscription
//     filter policy on the partition header.
//   - direct: a single queue per destination shared by producers and consumers.
//
// Binder hosts the Watermill router. BindProducer and BindConsumer provision
// and attach bindings; BindJSONConsumer and ProducerBinding.PublishJSON take
// care of JSON encoding. A minimal setup fills Config, creates a Binder, binds
// consumers and producers, and calls Run.
//
// # Transports
//
//   - aws: SNS/SQS through the AWS SDK and watermill-aws, with LocalStack support
//   - channel: in-memory Go channels and an in-memory broker, direct mode only
//
// BinderDependencies.TransportFactory plugs in a custom backend.
//
// # Middleware
//
// The default router chain adds correlation IDs, debug logging of payloads,
// OpenTelemetry tracing, Prometheus router metrics and panic recovery. Custom
// middleware can be added via BinderDependencies.Middlewares.
package sqsbinder
