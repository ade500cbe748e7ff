package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects how logical destinations map onto the broker.
type Mode string

const (
	// ModeFanOut provisions a topic per destination and a subscribed queue per
	// consumer group. Inbound messages arrive wrapped in a notification envelope.
	ModeFanOut Mode = "fanout"
	// ModeDirect provisions a single queue per destination, shared by producers
	// and consumers. Messages are not enveloped.
	ModeDirect Mode = "direct"
)

const (
	TransportAWS     = "aws"
	TransportChannel = "channel"

	// DefaultPartitionHeader is the header carrying the partition index of an
	// outgoing message and the key of partition filter policies.
	DefaultPartitionHeader = "scst_partition"
)

// DeletionPolicy controls when the consumer endpoint deletes received messages.
type DeletionPolicy string

const (
	// DeletionPolicyAlways deletes every received message, handled or not.
	DeletionPolicyAlways DeletionPolicy = "always"
	// DeletionPolicyNever leaves every message on the queue until it expires.
	DeletionPolicyNever DeletionPolicy = "never"
	// DeletionPolicyNoRedrive deletes failed messages unless the queue has a
	// redrive policy that moves them to a dead letter queue.
	DeletionPolicyNoRedrive DeletionPolicy = "no_redrive"
	// DeletionPolicyOnSuccess deletes handled messages only. It is the default.
	DeletionPolicyOnSuccess DeletionPolicy = "on_success"
)

// Receive limits enforced by SQS.
const (
	MaxMessagesPerPollLimit     = 10
	MaxWaitTimeoutSeconds       = 20
	MaxVisibilityTimeoutSeconds = 43200
)

// QueueProperties are optional broker queue settings applied on queue creation.
// Nil fields are left out of the request so the broker keeps its own defaults.
type QueueProperties struct {
	DelaySeconds                  *int
	MaximumMessageSize            *int
	MessageRetentionPeriod        *int
	Policy                        *string
	ReceiveMessageWaitTimeSeconds *int
	VisibilityTimeout             *int
	// RedrivePolicy is the JSON redrive policy naming the dead letter queue.
	RedrivePolicy *string
}

// ConsumerProperties describe a consumer binding.
type ConsumerProperties struct {
	// Partitioned restricts the consumer to messages whose partition header
	// equals InstanceIndex.
	Partitioned   bool
	InstanceIndex int
	InstanceCount int

	// MaxMessagesPerPoll, VisibilityTimeoutSeconds and WaitTimeoutSeconds
	// shape each receive request. Zero keeps the transport defaults.
	MaxMessagesPerPoll       int
	VisibilityTimeoutSeconds int
	WaitTimeoutSeconds       int
	// QueueStopTimeout bounds how long closing the consumer endpoint may take.
	QueueStopTimeout time.Duration
	DeletionPolicy   DeletionPolicy

	Queue *QueueProperties
}

// ProducerProperties describe a producer binding.
type ProducerProperties struct {
	// Partitioned requires every outgoing message to carry the partition header.
	Partitioned    bool
	PartitionCount int
}

// Config groups the binder settings. Consumer and producer properties are keyed
// by logical destination name; missing entries mean zero-value properties.
type Config struct {
	// Transport selects the registered transport builder: "aws" (default) or
	// "channel" for in-memory testing.
	Transport string
	// Mode selects the topology: "fanout" (default) or "direct".
	Mode Mode

	// AWS (SNS/SQS) configuration.
	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	// AWSEndpoint optionally points to a custom endpoint (for example, LocalStack
	// in local development).
	AWSEndpoint string

	// PartitionHeader overrides DefaultPartitionHeader.
	PartitionHeader string
	// DisableMessageAttributes stops envelope message attributes from being
	// copied into the headers of unwrapped messages. Producer headers,
	// including the partition header, travel only as attributes in the
	// fanout mode.
	DisableMessageAttributes bool
	// StrictEnvelopeDecoding decodes the envelope Message field as a JSON string
	// instead of applying the pattern-based unescape.
	StrictEnvelopeDecoding bool

	MetricsEnabled bool

	Consumers map[string]ConsumerProperties
	Producers map[string]ProducerProperties
}

// Getter methods to implement transport.Config interface.
func (c *Config) GetTransport() string          { return c.TransportName() }
func (c *Config) GetMode() string               { return string(c.ModeOrDefault()) }
func (c *Config) GetAWSRegion() string          { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string       { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string     { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string        { return c.AWSEndpoint }
func (c *Config) GetPartitionHeader() string    { return c.PartitionHeaderOrDefault() }

// TransportName returns the configured transport, defaulting to aws.
func (c *Config) TransportName() string {
	if c.Transport == "" {
		return TransportAWS
	}
	return strings.ToLower(c.Transport)
}

// ModeOrDefault returns the configured mode, defaulting to fanout.
func (c *Config) ModeOrDefault() Mode {
	if c.Mode == "" {
		return ModeFanOut
	}
	return Mode(strings.ToLower(string(c.Mode)))
}

// PartitionHeaderOrDefault returns the configured partition header name.
func (c *Config) PartitionHeaderOrDefault() string {
	if c.PartitionHeader == "" {
		return DefaultPartitionHeader
	}
	return c.PartitionHeader
}

// Consumer returns the properties configured for the named destination.
func (c *Config) Consumer(name string) ConsumerProperties {
	return c.Consumers[name]
}

// Producer returns the properties configured for the named destination.
func (c *Config) Producer(name string) ProducerProperties {
	return c.Producers[name]
}

func (c Config) String() string {
	copy := c
	if copy.AWSSecretAccessKey != "" {
		copy.AWSSecretAccessKey = "***REDACTED***"
	}
	if copy.AWSAccessKeyID != "" {
		copy.AWSAccessKeyID = "***REDACTED***"
	}
	// Use a type alias to avoid infinite recursion when printing
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copy))
}

// Validate checks that the configuration is usable by the selected transport and mode.
// Unknown transport names pass so custom transport factories can be plugged in.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateTransport()...)
	errs = append(errs, c.validateMode()...)
	for name, props := range c.Consumers {
		if err := props.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("consumer %q: %w", name, err))
		}
		if props.Partitioned && c.ModeOrDefault() == ModeDirect {
			errs = append(errs, fmt.Errorf("consumer %q: partitioned consumers require the %s mode", name, ModeFanOut))
		}
	}
	for name, props := range c.Producers {
		if props.PartitionCount < 0 {
			errs = append(errs, fmt.Errorf("producer %q: partition count cannot be negative", name))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) validateTransport() []error {
	switch c.TransportName() {
	case TransportAWS:
		if c.AWSRegion == "" {
			return []error{errors.New("aws: region is required")}
		}
	case TransportChannel:
		if c.ModeOrDefault() == ModeFanOut {
			return []error{errors.New("channel: only the direct mode is supported")}
		}
	}
	return nil
}

func (c *Config) validateMode() []error {
	switch c.ModeOrDefault() {
	case ModeFanOut, ModeDirect:
		return nil
	default:
		return []error{fmt.Errorf("mode: unsupported value %q", c.Mode)}
	}
}

// Validate checks the consumer properties for values no broker would accept.
func (p ConsumerProperties) Validate() error {
	var errs []error
	if p.InstanceIndex < 0 {
		errs = append(errs, errors.New("instance index cannot be negative"))
	}
	if p.Partitioned && p.InstanceCount > 0 && p.InstanceIndex >= p.InstanceCount {
		errs = append(errs, fmt.Errorf("instance index %d out of range for %d instances", p.InstanceIndex, p.InstanceCount))
	}
	if p.MaxMessagesPerPoll < 0 {
		errs = append(errs, errors.New("max messages per poll cannot be negative"))
	} else if p.MaxMessagesPerPoll > MaxMessagesPerPollLimit {
		errs = append(errs, fmt.Errorf("max messages per poll cannot exceed %d", MaxMessagesPerPollLimit))
	}
	if p.VisibilityTimeoutSeconds < 0 {
		errs = append(errs, errors.New("visibility timeout cannot be negative"))
	} else if p.VisibilityTimeoutSeconds > MaxVisibilityTimeoutSeconds {
		errs = append(errs, fmt.Errorf("visibility timeout cannot exceed %d seconds", MaxVisibilityTimeoutSeconds))
	}
	if p.WaitTimeoutSeconds < 0 {
		errs = append(errs, errors.New("wait timeout cannot be negative"))
	} else if p.WaitTimeoutSeconds > MaxWaitTimeoutSeconds {
		errs = append(errs, fmt.Errorf("wait timeout cannot exceed %d seconds", MaxWaitTimeoutSeconds))
	}
	if p.QueueStopTimeout < 0 {
		errs = append(errs, errors.New("queue stop timeout cannot be negative"))
	}
	switch p.DeletionPolicy {
	case "", DeletionPolicyAlways, DeletionPolicyNever, DeletionPolicyNoRedrive, DeletionPolicyOnSuccess:
	default:
		errs = append(errs, fmt.Errorf("unknown deletion policy %q", p.DeletionPolicy))
	}
	return errors.Join(errs...)
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
