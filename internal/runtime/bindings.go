package runtime

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/sqsbinder/internal/runtime/config"
	"github.com/drblury/sqsbinder/internal/runtime/destination"
	"github.com/drblury/sqsbinder/internal/runtime/envelope"
	errspkg "github.com/drblury/sqsbinder/internal/runtime/errors"
	idspkg "github.com/drblury/sqsbinder/internal/runtime/ids"
	loggingpkg "github.com/drblury/sqsbinder/internal/runtime/logging"
	metadatapkg "github.com/drblury/sqsbinder/internal/runtime/metadata"
)

// NewMessage builds an outgoing message with a ULID identifier and a copy of md.
func NewMessage(payload []byte, md metadatapkg.Metadata) *message.Message {
	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(md)
	return msg
}

// ProducerBinding publishes to a provisioned destination.
type ProducerBinding struct {
	destination     destination.Producer
	props           configpkg.ProducerProperties
	partitionHeader string
	publisher       message.Publisher
}

// Destination returns the provisioned destination.
func (p *ProducerBinding) Destination() destination.Producer {
	return p.destination
}

// Publish sends msgs to the destination. Partitioned bindings reject messages
// without the partition header.
func (p *ProducerBinding) Publish(ctx context.Context, msgs ...*message.Message) error {
	if ctx != nil {
		for _, msg := range msgs {
			msg.SetContext(ctx)
		}
	}
	return p.publisher.Publish(p.destination.Target(), msgs...)
}

// PublishToPartition sets the partition header on msgs and publishes them.
func (p *ProducerBinding) PublishToPartition(ctx context.Context, partition int, msgs ...*message.Message) error {
	if partition < 0 || (p.props.PartitionCount > 0 && partition >= p.props.PartitionCount) {
		return fmt.Errorf("partition %d out of range for %d partitions", partition, p.props.PartitionCount)
	}
	value := strconv.Itoa(partition)
	for _, msg := range msgs {
		msg.Metadata.Set(p.partitionHeader, value)
	}
	return p.Publish(ctx, msgs...)
}

// BindProducer provisions the destination name and returns a binding that
// publishes to it. Properties default to the ones configured for name.
// Repeated calls for the same name return the same binding.
func (b *Binder) BindProducer(ctx context.Context, name string, props *configpkg.ProducerProperties) (*ProducerBinding, error) {
	if name == "" {
		return nil, errspkg.ErrNameRequired
	}
	resolved := b.Conf.Producer(name)
	if props != nil {
		resolved = *props
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errspkg.ErrBinderClosed
	}
	if existing, ok := b.producers[name]; ok {
		return existing, nil
	}

	dest, err := b.provisioner.ProvisionProducer(ctx, name, resolved)
	if err != nil {
		return nil, err
	}

	header := b.Conf.PartitionHeaderOrDefault()
	opts := b.adapterOptions()
	if resolved.Partitioned {
		opts = append(opts, envelope.RequirePartitionHeader(header))
	}
	publisher, err := envelope.OutboundDecorator(dest.Mode, opts...)(b.transport.Publisher)
	if err != nil {
		return nil, err
	}

	binding := &ProducerBinding{
		destination:     dest,
		props:           resolved,
		partitionHeader: header,
		publisher:       publisher,
	}
	b.producers[name] = binding

	b.Logger.Info("Bound producer", loggingpkg.LogFields{
		"destination": name,
		"target":      dest.Target(),
		"partitioned": resolved.Partitioned,
	})
	return binding, nil
}

// ConsumerRegistration describes a consumer to bind.
type ConsumerRegistration struct {
	// Name is the logical destination.
	Name string
	// Group selects a durable queue shared by the group members. An empty
	// group gets an anonymous queue of its own. Ignored in the direct mode.
	Group string
	// Properties overrides the consumer properties configured for Name.
	Properties *configpkg.ConsumerProperties
	Handler    message.NoPublishHandlerFunc
}

// ConsumerBinding is a handler attached to a provisioned queue.
type ConsumerBinding struct {
	// HandlerName is the router handler name, the physical queue name.
	HandlerName string
	Destination destination.Consumer
}

// BindConsumer provisions the queue for the registration and attaches its
// handler to the router. Handlers receive the application payload: the
// notification envelope is already stripped in the fanout mode. The deletion
// policy decides whether failed messages are deleted. Consumers bound after
// Run start immediately.
func (b *Binder) BindConsumer(ctx context.Context, reg ConsumerRegistration) (*ConsumerBinding, error) {
	if reg.Handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if reg.Name == "" {
		return nil, errspkg.ErrNameRequired
	}
	props := b.Conf.Consumer(reg.Name)
	if reg.Properties != nil {
		props = *reg.Properties
	}
	if err := props.Validate(); err != nil {
		return nil, fmt.Errorf("consumer %q: %w", reg.Name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errspkg.ErrBinderClosed
	}

	dest, err := b.provisioner.ProvisionConsumer(ctx, reg.Name, reg.Group, props)
	if err != nil {
		return nil, err
	}
	if _, ok := b.consumers[dest.Name]; ok {
		return nil, fmt.Errorf("consumer for queue %q is already bound", dest.Name)
	}

	b.transport.ReceiveSettings.Set(dest.Name, receiveSettings(props))
	subscriber := b.transport.Subscriber
	if acksFailures(props) {
		subscriber = ackingSubscriber{
			Subscriber: subscriber,
			logger:     b.Logger.With(loggingpkg.LogFields{"queue": dest.Name, "deletion_policy": props.DeletionPolicy}),
		}
	}

	handler := b.router.AddNoPublisherHandler(dest.Name, dest.Name, subscriber, reg.Handler)
	handler.AddMiddleware(envelope.InboundMiddleware(b.provisioner.Mode(), b.codec, b.adapterOptions()...))

	binding := &ConsumerBinding{HandlerName: dest.Name, Destination: dest}
	b.consumers[dest.Name] = binding

	b.Logger.Info("Bound consumer", loggingpkg.LogFields{
		"destination": reg.Name,
		"group":       reg.Group,
		"queue":       dest.Name,
		"anonymous":   dest.Anonymous,
	})

	if b.router.IsRunning() {
		if err := b.router.RunHandlers(ctx); err != nil {
			return nil, err
		}
	}
	return binding, nil
}
