package sqsbinder

import (
	"context"

	runtimepkg "github.com/drblury/sqsbinder/internal/runtime"
	brokerpkg "github.com/drblury/sqsbinder/internal/runtime/broker"
	configpkg "github.com/drblury/sqsbinder/internal/runtime/config"
	destinationpkg "github.com/drblury/sqsbinder/internal/runtime/destination"
	"github.com/drblury/sqsbinder/internal/runtime/envelope"
	errspkg "github.com/drblury/sqsbinder/internal/runtime/errors"
	handlerpkg "github.com/drblury/sqsbinder/internal/runtime/handlers"
	idspkg "github.com/drblury/sqsbinder/internal/runtime/ids"
	jsoncodec "github.com/drblury/sqsbinder/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/sqsbinder/internal/runtime/logging"
	metadatapkg "github.com/drblury/sqsbinder/internal/runtime/metadata"
	"github.com/drblury/sqsbinder/internal/runtime/provisioning"
	transportpkg "github.com/drblury/sqsbinder/internal/runtime/transport"
	newtransport "github.com/drblury/sqsbinder/transport"
)

type (
	Config             = configpkg.Config
	Mode               = configpkg.Mode
	ConsumerProperties = configpkg.ConsumerProperties
	ProducerProperties = configpkg.ProducerProperties
	QueueProperties    = configpkg.QueueProperties
	DeletionPolicy     = configpkg.DeletionPolicy

	Binder               = runtimepkg.Binder
	BinderDependencies   = runtimepkg.BinderDependencies
	ProducerBinding      = runtimepkg.ProducerBinding
	ConsumerBinding      = runtimepkg.ConsumerBinding
	ConsumerRegistration = runtimepkg.ConsumerRegistration
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	JSONConsumerRegistration[T any] = runtimepkg.JSONConsumerRegistration[T]
	JSONMessageContext[T any]       = handlerpkg.JSONMessageContext[T]
	JSONMessageHandler[T any]       = handlerpkg.JSONMessageHandler[T]
	MessageContextBase              = handlerpkg.MessageContextBase

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	Provisioner         = provisioning.Provisioner
	ProvisionerOption   = provisioning.Option
	ProducerDestination = destinationpkg.Producer
	ConsumerDestination = destinationpkg.Consumer
	BrokerClient        = brokerpkg.Client
	MemoryBroker        = brokerpkg.Memory
	TopicHandle         = brokerpkg.TopicHandle
	QueueHandle         = brokerpkg.QueueHandle
	SubscriptionHandle  = brokerpkg.SubscriptionHandle

	EnvelopeCodec       = envelope.Codec
	EnvelopeCodecOption = envelope.Option

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ProvisioningError      = errspkg.ProvisioningError
	AttributeConflictError = errspkg.AttributeConflictError
	MalformedEnvelopeError = errspkg.MalformedEnvelopeError

	// Modular transport types
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

const (
	ModeFanOut = configpkg.ModeFanOut
	ModeDirect = configpkg.ModeDirect

	TransportAWS     = configpkg.TransportAWS
	TransportChannel = configpkg.TransportChannel

	DefaultPartitionHeader = configpkg.DefaultPartitionHeader
	FilterPolicyAttribute  = provisioning.FilterPolicyAttribute

	DeletionPolicyAlways    = configpkg.DeletionPolicyAlways
	DeletionPolicyNever     = configpkg.DeletionPolicyNever
	DeletionPolicyNoRedrive = configpkg.DeletionPolicyNoRedrive
	DeletionPolicyOnSuccess = configpkg.DeletionPolicyOnSuccess

	MetadataKeyCorrelationID = handlerpkg.MetadataKeyCorrelationID
	MetadataKeyPayloadType   = handlerpkg.MetadataKeyPayloadType
)

var (
	NewBinder      = runtimepkg.NewBinder
	NewMessage     = runtimepkg.NewMessage
	NewJSONMessage = handlerpkg.NewJSONMessage
	ValidateConfig = configpkg.ValidateConfig

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	NewProvisioner            = provisioning.New
	WithMode                  = provisioning.WithMode
	WithPartitionHeader       = provisioning.WithPartitionHeader
	WithProvisioningLogger    = provisioning.WithLogger
	WithSuffixGenerator       = provisioning.WithSuffixGenerator
	PartitionFilterPolicy     = provisioning.PartitionFilterPolicy
	QueueAttributes           = provisioning.QueueAttributes
	ConsumerQueueName         = provisioning.ConsumerQueueName
	AnonymousQueuePrefix      = provisioning.AnonymousQueuePrefix
	IsAnonymousQueue          = provisioning.IsAnonymousQueue
	NewMemoryBroker           = brokerpkg.NewMemory
	NewAWSBrokerClient        = brokerpkg.NewAWSClient
	DefaultTransportFactory   = transportpkg.DefaultFactory
	DefaultTransportRegistry  = newtransport.DefaultRegistry
	RegisterTransport         = newtransport.Register
	BuildTransport            = newtransport.Build
	GetTransportCapabilities  = newtransport.GetCapabilities
	NewEnvelopeCodec          = envelope.NewCodec
	WithStrictUnescape        = envelope.WithStrictUnescape
	WithoutMessageAttributes  = envelope.WithoutMessageAttributes
	WithTopicArn              = envelope.WithTopicArn
	AdaptPayload              = envelope.Adapt
	OutboundDecorator         = envelope.OutboundDecorator
	InboundMiddleware         = envelope.InboundMiddleware
	RequirePartitionHeader    = envelope.RequirePartitionHeader
	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	CreateULID = idspkg.CreateULID

	ErrProvisioning                = errspkg.ErrProvisioning
	ErrAttributeConflict           = errspkg.ErrAttributeConflict
	ErrMalformedEnvelope           = errspkg.ErrMalformedEnvelope
	ErrPartitioningUnsupported     = errspkg.ErrPartitioningUnsupported
	ErrPartitionHeaderMissing      = errspkg.ErrPartitionHeaderMissing
	ErrBrokerRequired              = errspkg.ErrBrokerRequired
	ErrNameRequired                = errspkg.ErrNameRequired
	ErrConfigRequired              = errspkg.ErrConfigRequired
	ErrLoggerRequired              = errspkg.ErrLoggerRequired
	ErrPublisherRequired           = errspkg.ErrPublisherRequired
	ErrHandlerRequired             = errspkg.ErrHandlerRequired
	ErrBinderClosed                = errspkg.ErrBinderClosed
	ErrBinderRequired              = errspkg.ErrBinderRequired
	ErrPayloadRequired             = errspkg.ErrPayloadRequired
	ErrConsumeMessageTypeRequired  = errspkg.ErrConsumeMessageTypeRequired
	ErrConsumeMessagePointerNeeded = errspkg.ErrConsumeMessagePointerNeeded
)

// BindJSONConsumer binds a typed JSON handler to the destination of reg.
func BindJSONConsumer[T any](ctx context.Context, b *Binder, reg JSONConsumerRegistration[T]) (*ConsumerBinding, error) {
	return runtimepkg.BindJSONConsumer(ctx, b, reg)
}
