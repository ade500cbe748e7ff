// Package destination holds the provisioned, physical side of a logical
// binding.
package destination

import (
	"github.com/drblury/sqsbinder/internal/runtime/broker"
	"github.com/drblury/sqsbinder/internal/runtime/config"
)

// Producer is where a producer binding sends messages. In the fanout mode
// Topic is set; in the direct mode Queue is set and the same queue serves
// consumers of that name.
type Producer struct {
	Name  string
	Topic broker.TopicHandle
	Queue broker.QueueHandle
	Mode  config.Mode
}

// NameForPartition returns the destination name for a partition. A single
// topic carries every partition, so the name never changes.
func (p Producer) NameForPartition(partition int) string {
	return p.Name
}

// Target returns the handle messages are published to.
func (p Producer) Target() string {
	if p.Mode == config.ModeDirect {
		return broker.QueueName(p.Queue)
	}
	return string(p.Topic)
}

// Consumer is the queue a consumer binding reads from.
type Consumer struct {
	// Name is the physical queue name.
	Name         string
	Queue        broker.QueueHandle
	Subscription broker.SubscriptionHandle
	// Anonymous marks a queue named with a random suffix. Nothing removes it
	// automatically.
	Anonymous bool
}
