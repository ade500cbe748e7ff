package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqserrors "github.com/drblury/sqsbinder/internal/runtime/errors"
)

func TestMemoryCreateIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	t1, err := m.CreateTopic(ctx, "orders")
	require.NoError(t, err)
	t2, err := m.CreateTopic(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, t1, t2)
	assert.Equal(t, "orders", TopicName(t1))

	q1, err := m.CreateQueue(ctx, "group-name", map[string]string{"DelaySeconds": "10"})
	require.NoError(t, err)
	q2, err := m.CreateQueue(ctx, "group-name", map[string]string{"DelaySeconds": "10"})
	require.NoError(t, err)
	assert.Equal(t, q1, q2)
	assert.Equal(t, "group-name", QueueName(q1))

	s1, err := m.SubscribeQueueToTopic(ctx, t1, q1)
	require.NoError(t, err)
	s2, err := m.SubscribeQueueToTopic(ctx, t1, q1)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Len(t, m.Subscriptions(), 1)
	assert.Equal(t, []string{"orders"}, m.Topics())
}

func TestMemoryCreateQueueConflictingAttributes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.CreateQueue(ctx, "group-name", map[string]string{"DelaySeconds": "10"})
	require.NoError(t, err)

	_, err = m.CreateQueue(ctx, "group-name", map[string]string{"DelaySeconds": "5"})
	require.Error(t, err)
	assert.True(t, sqserrors.IsConflictCode(err))
}

func TestMemorySubscriptionAttributes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	topic, _ := m.CreateTopic(ctx, "orders")
	queue, _ := m.CreateQueue(ctx, "group-name-2", nil)
	sub, err := m.SubscribeQueueToTopic(ctx, topic, queue)
	require.NoError(t, err)

	require.NoError(t, m.SetSubscriptionAttribute(ctx, sub, "FilterPolicy", `{"scst_partition": [2]}`))
	subs := m.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, topic, subs[0].Topic)
	assert.Equal(t, queue, subs[0].Queue)
	assert.Equal(t, `{"scst_partition": [2]}`, subs[0].Attributes["FilterPolicy"])

	assert.Error(t, m.SetSubscriptionAttribute(ctx, "missing", "FilterPolicy", "{}"))
}

func TestMemorySubscribeUnknownResources(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	queue, _ := m.CreateQueue(ctx, "q", nil)
	_, err := m.SubscribeQueueToTopic(ctx, "arn:aws:sns:local:000000000000:missing", queue)
	assert.Error(t, err)

	topic, _ := m.CreateTopic(ctx, "t")
	_, err = m.SubscribeQueueToTopic(ctx, topic, "memory://000000000000/missing")
	assert.Error(t, err)
}

func TestMemoryListAndDeleteQueues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	topic, _ := m.CreateTopic(ctx, "orders")
	anon, _ := m.CreateQueue(ctx, "orders_anonymous_abc", nil)
	_, _ = m.CreateQueue(ctx, "group-name", nil)
	_, err := m.SubscribeQueueToTopic(ctx, topic, anon)
	require.NoError(t, err)

	queues, err := m.ListQueues(ctx, "orders_anonymous_")
	require.NoError(t, err)
	assert.Equal(t, []QueueHandle{anon}, queues)

	require.NoError(t, m.DeleteQueue(ctx, anon))
	_, ok := m.Queue("orders_anonymous_abc")
	assert.False(t, ok)
	assert.Empty(t, m.Subscriptions())
	assert.Error(t, m.DeleteQueue(ctx, anon))

	all, err := m.ListQueues(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryRejectsEmptyNames(t *testing.T) {
	m := NewMemory()
	_, err := m.CreateTopic(context.Background(), "")
	assert.Error(t, err)
	_, err = m.CreateQueue(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestHandleNames(t *testing.T) {
	assert.Equal(t, "group-name", QueueName(testQueueURL))
	assert.Equal(t, "group-name", QueueName(testQueueURL+"/"))
	assert.Equal(t, "plain", QueueName("plain"))
	assert.Equal(t, "orders", TopicName(testTopicArn))
	assert.Equal(t, "plain", TopicName("plain"))
}
