package envelope

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/sqsbinder/internal/runtime/config"
	errspkg "github.com/drblury/sqsbinder/internal/runtime/errors"
	"github.com/drblury/sqsbinder/internal/runtime/metadata"
	metricspkg "github.com/drblury/sqsbinder/internal/runtime/metrics"
)

type adapterSettings struct {
	partitionHeader string
	metrics         *metricspkg.Metrics
	logger          watermill.LoggerAdapter
}

// AdapterOption configures the inbound and outbound adapters.
type AdapterOption func(*adapterSettings)

// RequirePartitionHeader makes the outbound adapter reject messages without
// the given header.
func RequirePartitionHeader(header string) AdapterOption {
	return func(s *adapterSettings) { s.partitionHeader = header }
}

// WithAdapterMetrics counts adapted messages and rejected envelopes on m.
func WithAdapterMetrics(m *metricspkg.Metrics) AdapterOption {
	return func(s *adapterSettings) { s.metrics = m }
}

// WithAdapterLogger sets the logger for envelopes that fail to unwrap. Nil is ignored.
func WithAdapterLogger(logger watermill.LoggerAdapter) AdapterOption {
	return func(s *adapterSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func newAdapterSettings(opts []AdapterOption) adapterSettings {
	s := adapterSettings{logger: watermill.NopLogger{}}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// OutboundDecorator returns a publisher decorator turning outgoing payloads
// into text, as both the topic and the queue send APIs only accept strings.
func OutboundDecorator(mode config.Mode, opts ...AdapterOption) message.PublisherDecorator {
	settings := newAdapterSettings(opts)
	return func(pub message.Publisher) (message.Publisher, error) {
		if pub == nil {
			return nil, errspkg.ErrPublisherRequired
		}
		return &outboundPublisher{Publisher: pub, mode: mode, settings: settings}, nil
	}
}

type outboundPublisher struct {
	message.Publisher
	mode     config.Mode
	settings adapterSettings
}

func (p *outboundPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if h := p.settings.partitionHeader; h != "" && msg.Metadata.Get(h) == "" {
			return fmt.Errorf("%w: header %q, message %s", errspkg.ErrPartitionHeaderMissing, h, msg.UUID)
		}
		msg.Payload = []byte(Adapt(msg))
		p.settings.metrics.MessageAdapted("outbound", string(p.mode))
	}
	return p.Publisher.Publish(topic, msgs...)
}

// InboundMiddleware returns the handler middleware restoring application
// messages. In the fanout mode it strips the notification envelope; a message
// that fails to unwrap is returned to the router as an error so it is nacked
// rather than dropped. In the direct mode it copies the text payload back into
// a fresh message.
func InboundMiddleware(mode config.Mode, codec *Codec, opts ...AdapterOption) message.HandlerMiddleware {
	settings := newAdapterSettings(opts)
	if codec == nil {
		codec = NewCodec()
	}
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			var (
				out *message.Message
				err error
			)
			if mode == config.ModeDirect {
				out = fromText(msg)
			} else {
				out, err = codec.UnwrapMessage(msg)
				if err != nil {
					settings.metrics.EnvelopeRejected()
					settings.logger.Error("Failed to unwrap envelope", err, watermill.LogFields{"message_uuid": msg.UUID})
					return nil, err
				}
			}
			settings.metrics.MessageAdapted("inbound", string(mode))
			return h(out)
		}
	}
}

func fromText(msg *message.Message) *message.Message {
	out := message.NewMessage(msg.UUID, []byte(Adapt(msg)))
	out.Metadata = metadata.ToWatermill(metadata.FromWatermill(msg.Metadata))
	out.SetContext(msg.Context())
	return out
}
