package broker

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/aws/smithy-go"
)

const (
	memoryAccount   = "000000000000"
	memoryRegion    = "local"
	memoryQueueBase = "memory://" + memoryAccount + "/"
)

// MemoryQueue is a queue recorded by Memory.
type MemoryQueue struct {
	Name       string
	URL        QueueHandle
	Attributes map[string]string
}

// MemorySubscription is a subscription recorded by Memory.
type MemorySubscription struct {
	Handle     SubscriptionHandle
	Topic      TopicHandle
	Queue      QueueHandle
	Attributes map[string]string
}

// Memory is an in-process Client. It records the provisioned topology and
// answers with deterministic handles.
type Memory struct {
	mu            sync.Mutex
	topics        map[string]TopicHandle
	queues        map[string]*MemoryQueue
	subscriptions map[SubscriptionHandle]*MemorySubscription
}

var _ Client = (*Memory)(nil)

// NewMemory returns an empty in-memory broker.
func NewMemory() *Memory {
	return &Memory{
		topics:        make(map[string]TopicHandle),
		queues:        make(map[string]*MemoryQueue),
		subscriptions: make(map[SubscriptionHandle]*MemorySubscription),
	}
}

func (m *Memory) CreateTopic(ctx context.Context, name string) (TopicHandle, error) {
	if name == "" {
		return "", apiError("InvalidParameter", "topic name is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if topic, ok := m.topics[name]; ok {
		return topic, nil
	}
	topic := TopicHandle(fmt.Sprintf("arn:aws:sns:%s:%s:%s", memoryRegion, memoryAccount, name))
	m.topics[name] = topic
	return topic, nil
}

func (m *Memory) CreateQueue(ctx context.Context, name string, attributes map[string]string) (QueueHandle, error) {
	if name == "" {
		return "", apiError("InvalidParameterValue", "queue name is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[name]; ok {
		for k, v := range attributes {
			if cur, set := q.Attributes[k]; set && cur != v {
				return "", apiError("QueueAlreadyExists", fmt.Sprintf("A queue already exists with the same name and a different value for attribute %s", k))
			}
		}
		return q.URL, nil
	}
	q := &MemoryQueue{
		Name:       name,
		URL:        QueueHandle(memoryQueueBase + name),
		Attributes: maps.Clone(attributes),
	}
	if q.Attributes == nil {
		q.Attributes = map[string]string{}
	}
	m.queues[name] = q
	return q.URL, nil
}

func (m *Memory) SubscribeQueueToTopic(ctx context.Context, topic TopicHandle, queue QueueHandle) (SubscriptionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.topics[TopicName(topic)]; !ok {
		return "", apiError("NotFound", fmt.Sprintf("topic %s does not exist", topic))
	}
	if _, ok := m.queues[QueueName(queue)]; !ok {
		return "", apiError("AWS.SimpleQueueService.NonExistentQueue", fmt.Sprintf("queue %s does not exist", queue))
	}

	handle := SubscriptionHandle(string(topic) + ":" + QueueName(queue))
	if _, ok := m.subscriptions[handle]; !ok {
		m.subscriptions[handle] = &MemorySubscription{
			Handle:     handle,
			Topic:      topic,
			Queue:      queue,
			Attributes: map[string]string{},
		}
	}
	return handle, nil
}

func (m *Memory) SetSubscriptionAttribute(ctx context.Context, subscription SubscriptionHandle, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[subscription]
	if !ok {
		return apiError("NotFound", fmt.Sprintf("subscription %s does not exist", subscription))
	}
	sub.Attributes[name] = value
	return nil
}

func (m *Memory) ListQueues(ctx context.Context, prefix string) ([]QueueHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var queues []QueueHandle
	for name, q := range m.queues {
		if strings.HasPrefix(name, prefix) {
			queues = append(queues, q.URL)
		}
	}
	sort.Slice(queues, func(i, j int) bool { return queues[i] < queues[j] })
	return queues, nil
}

func (m *Memory) DeleteQueue(ctx context.Context, queue QueueHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := QueueName(queue)
	if _, ok := m.queues[name]; !ok {
		return apiError("AWS.SimpleQueueService.NonExistentQueue", fmt.Sprintf("queue %s does not exist", queue))
	}
	delete(m.queues, name)
	for handle, sub := range m.subscriptions {
		if sub.Queue == queue {
			delete(m.subscriptions, handle)
		}
	}
	return nil
}

// Topics returns the names of all created topics, sorted.
func (m *Memory) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.topics))
	for name := range m.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Queue returns a copy of the named queue.
func (m *Memory) Queue(name string) (MemoryQueue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[name]
	if !ok {
		return MemoryQueue{}, false
	}
	out := *q
	out.Attributes = maps.Clone(q.Attributes)
	return out, true
}

// Subscriptions returns copies of all subscriptions, sorted by handle.
func (m *Memory) Subscriptions() []MemorySubscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := make([]MemorySubscription, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		c := *s
		c.Attributes = maps.Clone(s.Attributes)
		subs = append(subs, c)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Handle < subs[j].Handle })
	return subs
}

func apiError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message, Fault: smithy.FaultClient}
}
