package runtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/sqsbinder/internal/runtime/config"
	loggingpkg "github.com/drblury/sqsbinder/internal/runtime/logging"
	transportpkg "github.com/drblury/sqsbinder/internal/runtime/transport"
)

// receiveSettings maps consumer properties onto the transport receive knobs.
func receiveSettings(props configpkg.ConsumerProperties) transportpkg.ReceiveSettings {
	return transportpkg.ReceiveSettings{
		MaxMessages:       int32(props.MaxMessagesPerPoll),
		VisibilityTimeout: int32(props.VisibilityTimeoutSeconds),
		WaitTime:          int32(props.WaitTimeoutSeconds),
		SkipDelete:        props.DeletionPolicy == configpkg.DeletionPolicyNever,
	}
}

// acksFailures reports whether messages the handler chain rejects are still
// acknowledged, and so deleted from the queue.
func acksFailures(props configpkg.ConsumerProperties) bool {
	switch props.DeletionPolicy {
	case configpkg.DeletionPolicyAlways:
		return true
	case configpkg.DeletionPolicyNoRedrive:
		return props.Queue == nil || props.Queue.RedrivePolicy == nil
	default:
		return false
	}
}

// ackingSubscriber hands the router a copy of each message and acknowledges
// the original once the router settles the copy, whatever the outcome.
type ackingSubscriber struct {
	message.Subscriber
	logger loggingpkg.ServiceLogger
}

func (s ackingSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	in, err := s.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make(chan *message.Message)
	go func() {
		defer close(out)
		for msg := range in {
			if !s.forward(ctx, msg, out) {
				return
			}
		}
	}()
	return out, nil
}

func (s ackingSubscriber) forward(ctx context.Context, msg *message.Message, out chan<- *message.Message) bool {
	routed := msg.CopyWithContext()

	select {
	case out <- routed:
	case <-ctx.Done():
		msg.Nack()
		return false
	}

	select {
	case <-routed.Acked():
	case <-routed.Nacked():
		s.logger.Info("Deleting message after failed handling", loggingpkg.LogFields{"message_uuid": msg.UUID})
	case <-ctx.Done():
		msg.Nack()
		return false
	}
	msg.Ack()
	return true
}
