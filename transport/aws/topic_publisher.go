package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// ErrPublisherClosed is returned when publishing on a closed TopicPublisher.
var ErrPublisherClosed = errors.New("sqsbinder: topic publisher is closed")

// SNSPublishAPI is the SNS call used by TopicPublisher.
type SNSPublishAPI interface {
	Publish(ctx context.Context, params *amazonsns.PublishInput, optFns ...func(*amazonsns.Options)) (*amazonsns.PublishOutput, error)
}

// TopicPublisherConfig configures a TopicPublisher.
type TopicPublisherConfig struct {
	// PartitionHeader is sent as a Number attribute so numeric filter
	// policies on subscriptions match it.
	PartitionHeader string
	// TopicResolver turns plain topic names into ARNs. Without it, Publish
	// only accepts topic ARNs.
	TopicResolver sns.TopicResolver
}

// TopicPublisher publishes message payloads as SNS notifications. The payload
// becomes the notification Message and metadata becomes message attributes.
type TopicPublisher struct {
	client SNSPublishAPI
	config TopicPublisherConfig
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

var _ message.Publisher = (*TopicPublisher)(nil)

// NewTopicPublisher returns a publisher sending through client.
func NewTopicPublisher(client SNSPublishAPI, cfg TopicPublisherConfig, logger watermill.LoggerAdapter) *TopicPublisher {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &TopicPublisher{client: client, config: cfg, logger: logger}
}

// Publish sends each message to topic, which is either a topic ARN or, with a
// TopicResolver configured, a topic name.
func (p *TopicPublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	for _, msg := range msgs {
		ctx := msg.Context()
		arn, err := p.resolve(ctx, topic)
		if err != nil {
			return err
		}
		fields := watermill.LogFields{"message_uuid": msg.UUID, "topic_arn": string(arn)}

		out, err := p.client.Publish(ctx, &amazonsns.PublishInput{
			TopicArn:          aws.String(string(arn)),
			Message:           aws.String(string(msg.Payload)),
			MessageAttributes: p.attributes(msg.Metadata),
		})
		if err != nil {
			p.logger.Error("Failed to publish to SNS topic", err, fields)
			return fmt.Errorf("publish message %s to %s: %w", msg.UUID, arn, err)
		}
		fields["sns_message_id"] = aws.ToString(out.MessageId)
		p.logger.Trace("Message published to SNS topic", fields)
	}
	return nil
}

// Close marks the publisher closed. The SNS client holds no resources.
func (p *TopicPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *TopicPublisher) resolve(ctx context.Context, topic string) (sns.TopicArn, error) {
	if strings.HasPrefix(topic, "arn:") {
		arn := sns.TopicArn(topic)
		if _, err := sns.ExtractTopicNameFromTopicArn(arn); err != nil {
			return "", fmt.Errorf("invalid topic ARN %q: %w", topic, err)
		}
		return arn, nil
	}
	if p.config.TopicResolver == nil {
		return "", fmt.Errorf("topic %q is not an ARN and no topic resolver is configured", topic)
	}
	arn, err := p.config.TopicResolver.ResolveTopic(ctx, topic)
	if err != nil {
		return "", fmt.Errorf("resolve topic %q: %w", topic, err)
	}
	return arn, nil
}

func (p *TopicPublisher) attributes(md message.Metadata) map[string]snstypes.MessageAttributeValue {
	if len(md) == 0 {
		return nil
	}
	attrs := make(map[string]snstypes.MessageAttributeValue, len(md))
	for k, v := range md {
		// The service rejects empty attribute values.
		if v == "" {
			continue
		}
		dataType := "String"
		if k == p.config.PartitionHeader {
			dataType = "Number"
		}
		attrs[k] = snstypes.MessageAttributeValue{
			DataType:    aws.String(dataType),
			StringValue: aws.String(v),
		}
	}
	return attrs
}
