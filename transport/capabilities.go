package transport

// Capabilities describes the features supported by a transport backend.
// Use this to introspect what operations are available at runtime.
type Capabilities struct {
	// SupportsFanOut indicates the transport can publish to topics with
	// subscribed queues.
	SupportsFanOut bool

	// SupportsDirect indicates the transport can publish straight to queues.
	SupportsDirect bool

	// SupportsPartitioning indicates subscriptions can be filtered by the
	// partition header.
	SupportsPartitioning bool

	// SupportsMessageAttributes indicates headers travel as broker attributes.
	SupportsMessageAttributes bool

	// SupportsDelay indicates queues can delay delivery natively.
	SupportsDelay bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// MaxDelayDuration is the maximum delay in milliseconds (0 = unlimited/unknown).
	MaxDelayDuration int64

	// Name is the human-readable name of the transport.
	Name string
}

// SupportsMode reports whether the transport can build the given topology.
func (c Capabilities) SupportsMode(mode string) bool {
	switch mode {
	case "fanout":
		return c.SupportsFanOut
	case "direct":
		return c.SupportsDirect
	default:
		return false
	}
}

// Predefined capability sets for the built-in transports.
var (
	// AWSCapabilities for the SNS/SQS transport.
	AWSCapabilities = Capabilities{
		Name:                      "aws",
		SupportsFanOut:            true,
		SupportsDirect:            true,
		SupportsPartitioning:      true,
		SupportsMessageAttributes: true,
		SupportsDelay:             true,
		MaxMessageSize:            262144, // 256KB
		MaxDelayDuration:          900000, // 15 minutes in ms
	}

	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:                      "channel",
		SupportsFanOut:            false,
		SupportsDirect:            true,
		SupportsPartitioning:      false,
		SupportsMessageAttributes: true,
		SupportsDelay:             false,
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Uses the registry to look up capabilities registered by each transport package.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
