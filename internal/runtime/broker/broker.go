// Package broker abstracts the SNS/SQS control-plane calls used to provision
// binder topology. AWSClient talks to the real services, Memory keeps the same
// topology in process for tests and the channel transport.
package broker

import (
	"context"
	"strings"
)

// TopicHandle identifies a topic. For SNS it is the topic ARN.
type TopicHandle string

// QueueHandle identifies a queue. For SQS it is the queue URL.
type QueueHandle string

// SubscriptionHandle identifies a topic to queue subscription. For SNS it is
// the subscription ARN.
type SubscriptionHandle string

// Client is the set of broker operations the provisioner relies on. Every
// create call must be idempotent: creating an existing resource with equal
// settings returns the existing handle.
type Client interface {
	CreateTopic(ctx context.Context, name string) (TopicHandle, error)
	CreateQueue(ctx context.Context, name string, attributes map[string]string) (QueueHandle, error)
	// SubscribeQueueToTopic subscribes the queue to the topic and grants the
	// topic permission to deliver into the queue.
	SubscribeQueueToTopic(ctx context.Context, topic TopicHandle, queue QueueHandle) (SubscriptionHandle, error)
	SetSubscriptionAttribute(ctx context.Context, subscription SubscriptionHandle, name, value string) error
	ListQueues(ctx context.Context, prefix string) ([]QueueHandle, error)
	DeleteQueue(ctx context.Context, queue QueueHandle) error
}

// QueueName returns the last path segment of a queue URL.
func QueueName(queue QueueHandle) string {
	s := strings.TrimRight(string(queue), "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// TopicName returns the resource part of a topic ARN.
func TopicName(topic TopicHandle) string {
	s := string(topic)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[i+1:]
	}
	return s
}
