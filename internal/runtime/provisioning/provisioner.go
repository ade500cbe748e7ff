// Package provisioning creates the broker topology behind logical bindings:
// topics for producers, queues subscribed to those topics for consumer groups,
// and partition filter policies on the subscriptions.
package provisioning

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/sqsbinder/internal/runtime/broker"
	"github.com/drblury/sqsbinder/internal/runtime/config"
	"github.com/drblury/sqsbinder/internal/runtime/destination"
	errspkg "github.com/drblury/sqsbinder/internal/runtime/errors"
	idspkg "github.com/drblury/sqsbinder/internal/runtime/ids"
	metricspkg "github.com/drblury/sqsbinder/internal/runtime/metrics"
)

const tracerName = "sqsbinder/provisioning"

// Broker operations, used in errors, spans and metrics.
const (
	OpCreateTopic     = "create_topic"
	OpCreateQueue     = "create_queue"
	OpSubscribe       = "subscribe"
	OpSetFilterPolicy = "set_filter_policy"
	OpListQueues      = "list_queues"
	OpDeleteQueue     = "delete_queue"
)

// Provisioner turns logical destinations into broker resources. All create
// calls rely on the broker being idempotent, so provisioning the same
// destination twice converges on the same resources.
type Provisioner struct {
	client  broker.Client
	mode    config.Mode
	header  string
	logger  watermill.LoggerAdapter
	metrics *metricspkg.Metrics
	tracer  trace.Tracer
	suffix  func() string
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithMode selects the fanout or direct topology. Defaults to fanout.
func WithMode(mode config.Mode) Option {
	return func(p *Provisioner) {
		if mode != "" {
			p.mode = mode
		}
	}
}

// WithPartitionHeader overrides the header used as filter policy key.
func WithPartitionHeader(header string) Option {
	return func(p *Provisioner) {
		if header != "" {
			p.header = header
		}
	}
}

// WithLogger sets the logger for provisioning steps. Nil is ignored.
func WithLogger(logger watermill.LoggerAdapter) Option {
	return func(p *Provisioner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics counts provisioned resources and failed operations on m.
func WithMetrics(m *metricspkg.Metrics) Option {
	return func(p *Provisioner) {
		p.metrics = m
	}
}

// WithTracer sets the tracer that spans each provisioning call. Nil is ignored.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Provisioner) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithSuffixGenerator replaces the random suffix of anonymous queue names.
func WithSuffixGenerator(fn func() string) Option {
	return func(p *Provisioner) {
		if fn != nil {
			p.suffix = fn
		}
	}
}

// New returns a Provisioner issuing calls through client.
func New(client broker.Client, opts ...Option) (*Provisioner, error) {
	if client == nil {
		return nil, errspkg.ErrBrokerRequired
	}
	p := &Provisioner{
		client: client,
		mode:   config.ModeFanOut,
		header: config.DefaultPartitionHeader,
		logger: watermill.NopLogger{},
		tracer: otel.Tracer(tracerName),
		suffix: idspkg.AnonymousSuffix,
	}
	for _, opt := range opts {
		opt(p)
	}
	switch p.mode {
	case config.ModeFanOut, config.ModeDirect:
	default:
		return nil, fmt.Errorf("provisioning: unsupported mode %q", p.mode)
	}
	return p, nil
}

// Mode returns the topology the provisioner builds.
func (p *Provisioner) Mode() config.Mode {
	return p.mode
}

// ProvisionProducer ensures the destination a producer publishes to exists:
// a topic named after the destination in the fanout mode, a queue of the same
// name in the direct mode.
func (p *Provisioner) ProvisionProducer(ctx context.Context, name string, props config.ProducerProperties) (destination.Producer, error) {
	if name == "" {
		return destination.Producer{}, errspkg.ErrNameRequired
	}
	ctx, span := p.tracer.Start(ctx, "ProvisionProducer", trace.WithAttributes(
		attribute.String("destination.name", name),
		attribute.String("binder.mode", string(p.mode)),
		attribute.Bool("destination.partitioned", props.Partitioned),
	))
	defer span.End()

	if p.mode == config.ModeDirect {
		queue, err := p.createQueue(ctx, name, nil)
		if err != nil {
			return destination.Producer{}, recordError(span, err)
		}
		return destination.Producer{Name: name, Queue: queue, Mode: p.mode}, nil
	}

	topic, err := p.createTopic(ctx, name)
	if err != nil {
		return destination.Producer{}, recordError(span, err)
	}
	return destination.Producer{Name: name, Topic: topic, Mode: p.mode}, nil
}

// ProvisionConsumer ensures the queue a consumer reads from exists. In the
// fanout mode the queue is subscribed to the destination topic and, for
// partitioned consumers, filtered down to the instance's partition. In the
// direct mode the queue is named after the destination and group is ignored.
func (p *Provisioner) ProvisionConsumer(ctx context.Context, name, group string, props config.ConsumerProperties) (destination.Consumer, error) {
	if name == "" {
		return destination.Consumer{}, errspkg.ErrNameRequired
	}
	ctx, span := p.tracer.Start(ctx, "ProvisionConsumer", trace.WithAttributes(
		attribute.String("destination.name", name),
		attribute.String("destination.group", group),
		attribute.String("binder.mode", string(p.mode)),
		attribute.Bool("destination.partitioned", props.Partitioned),
	))
	defer span.End()

	if p.mode == config.ModeDirect {
		if props.Partitioned {
			return destination.Consumer{}, recordError(span, errspkg.ErrPartitioningUnsupported)
		}
		queue, err := p.createQueue(ctx, name, QueueAttributes(props.Queue))
		if err != nil {
			return destination.Consumer{}, recordError(span, err)
		}
		return destination.Consumer{Name: name, Queue: queue}, nil
	}

	queueName, anonymous := ConsumerQueueName(name, group, props.Partitioned, props.InstanceIndex, p.suffix)
	span.SetAttributes(attribute.String("queue.name", queueName))

	queue, err := p.createQueue(ctx, queueName, QueueAttributes(props.Queue))
	if err != nil {
		return destination.Consumer{}, recordError(span, err)
	}
	topic, err := p.createTopic(ctx, name)
	if err != nil {
		return destination.Consumer{}, recordError(span, err)
	}
	sub, err := p.subscribe(ctx, topic, queue)
	if err != nil {
		return destination.Consumer{}, recordError(span, err)
	}
	if props.Partitioned {
		if err := p.filterPartition(ctx, sub, props.InstanceIndex); err != nil {
			return destination.Consumer{}, recordError(span, err)
		}
	}

	p.logger.Info("Provisioned consumer destination", watermill.LogFields{
		"destination":  name,
		"group":        group,
		"queue":        queueName,
		"subscription": string(sub),
		"partitioned":  props.Partitioned,
		"anonymous":    anonymous,
	})
	return destination.Consumer{
		Name:         queueName,
		Queue:        queue,
		Subscription: sub,
		Anonymous:    anonymous,
	}, nil
}

// RemoveQueues deletes every queue whose name starts with prefix and returns
// how many were removed. It is meant for whoever owns the lifecycle of
// anonymous queues, see AnonymousQueuePrefix.
func (p *Provisioner) RemoveQueues(ctx context.Context, prefix string) (int, error) {
	ctx, span := p.tracer.Start(ctx, "RemoveQueues", trace.WithAttributes(attribute.String("queue.prefix", prefix)))
	defer span.End()

	queues, err := p.client.ListQueues(ctx, prefix)
	if err != nil {
		return 0, recordError(span, p.fail(OpListQueues, prefix, err))
	}
	removed := 0
	for _, q := range queues {
		if err := p.client.DeleteQueue(ctx, q); err != nil {
			return removed, recordError(span, p.fail(OpDeleteQueue, string(q), err))
		}
		removed++
		p.logger.Info("Deleted queue", watermill.LogFields{"queue": string(q)})
	}
	span.SetAttributes(attribute.Int("queue.removed", removed))
	return removed, nil
}

func (p *Provisioner) createQueue(ctx context.Context, name string, attrs map[string]string) (broker.QueueHandle, error) {
	queue, err := p.client.CreateQueue(ctx, name, attrs)
	if err != nil {
		return "", p.fail(OpCreateQueue, name, err)
	}
	p.metrics.ResourceProvisioned("queue")
	p.logger.Debug("Queue ready", watermill.LogFields{"queue": name, "url": string(queue), "attributes": len(attrs)})
	return queue, nil
}

func (p *Provisioner) createTopic(ctx context.Context, name string) (broker.TopicHandle, error) {
	topic, err := p.client.CreateTopic(ctx, name)
	if err != nil {
		return "", p.fail(OpCreateTopic, name, err)
	}
	p.metrics.ResourceProvisioned("topic")
	p.logger.Debug("Topic ready", watermill.LogFields{"topic": name, "arn": string(topic)})
	return topic, nil
}

func (p *Provisioner) subscribe(ctx context.Context, topic broker.TopicHandle, queue broker.QueueHandle) (broker.SubscriptionHandle, error) {
	sub, err := p.client.SubscribeQueueToTopic(ctx, topic, queue)
	if err != nil {
		return "", p.fail(OpSubscribe, string(queue), err)
	}
	p.metrics.ResourceProvisioned("subscription")
	return sub, nil
}

func (p *Provisioner) filterPartition(ctx context.Context, sub broker.SubscriptionHandle, index int) error {
	policy, err := PartitionFilterPolicy(p.header, index)
	if err != nil {
		return p.fail(OpSetFilterPolicy, string(sub), err)
	}
	if err := p.client.SetSubscriptionAttribute(ctx, sub, FilterPolicyAttribute, policy); err != nil {
		return p.fail(OpSetFilterPolicy, string(sub), err)
	}
	p.metrics.ResourceProvisioned("filter_policy")
	p.logger.Debug("Partition filter attached", watermill.LogFields{"subscription": string(sub), "policy": policy})
	return nil
}

func (p *Provisioner) fail(op, resource string, err error) error {
	p.metrics.ProvisioningFailed(op)
	perr := errspkg.NewProvisioningError(op, resource, err)
	p.logger.Error("Provisioning failed", perr, watermill.LogFields{"operation": op, "resource": resource})
	return perr
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
