package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/sqsbinder/internal/runtime/broker"
	configpkg "github.com/drblury/sqsbinder/internal/runtime/config"
	"github.com/drblury/sqsbinder/internal/runtime/envelope"
	errspkg "github.com/drblury/sqsbinder/internal/runtime/errors"
	handlerpkg "github.com/drblury/sqsbinder/internal/runtime/handlers"
	loggingpkg "github.com/drblury/sqsbinder/internal/runtime/logging"
	metadatapkg "github.com/drblury/sqsbinder/internal/runtime/metadata"
	"github.com/drblury/sqsbinder/internal/runtime/provisioning"
	transportpkg "github.com/drblury/sqsbinder/internal/runtime/transport"
)

const receiveTimeout = 5 * time.Second

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// topicPublisher stands in for the topic layer: every message published to a
// topic is delivered to each subscribed queue as a notification envelope,
// unless the subscription filter policy excludes its partition.
type topicPublisher struct {
	broker *broker.Memory
	codec  *envelope.Codec
	queues message.Publisher
	header string
}

func (p *topicPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, sub := range p.broker.Subscriptions() {
		if string(sub.Topic) != topic {
			continue
		}
		for _, msg := range msgs {
			if policy, ok := sub.Attributes[provisioning.FilterPolicyAttribute]; ok {
				partition, err := strconv.Atoi(msg.Metadata.Get(p.header))
				if err != nil {
					continue
				}
				want, err := provisioning.PartitionFilterPolicy(p.header, partition)
				if err != nil {
					return err
				}
				if policy != want {
					continue
				}
			}
			wrapped, err := p.codec.Wrap(msg.Payload, metadatapkg.FromWatermill(msg.Metadata))
			if err != nil {
				return err
			}
			if err := p.queues.Publish(broker.QueueName(sub.Queue), message.NewMessage(msg.UUID, wrapped)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *topicPublisher) Close() error {
	return nil
}

func fanOutFactory(mem *broker.Memory) transportpkg.Factory {
	return transportpkg.FactoryFunc(func(_ context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error) {
		queues := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, logger)
		return transportpkg.Transport{
			Broker: mem,
			Publisher: &topicPublisher{
				broker: mem,
				codec:  envelope.NewCodec(),
				queues: queues,
				header: conf.PartitionHeaderOrDefault(),
			},
			Subscriber: queues,
		}, nil
	})
}

func newTestBinder(t *testing.T, conf *configpkg.Config, deps BinderDependencies) *Binder {
	t.Helper()
	deps.DisableSignalsHandler = true
	b, err := NewBinder(context.Background(), conf, newTestLogger(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func runBinder(t *testing.T, b *Binder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = b.Close()
		select {
		case <-done:
		case <-time.After(receiveTimeout):
			t.Error("binder did not stop")
		}
	})

	select {
	case <-b.Running():
	case <-time.After(receiveTimeout):
		t.Fatal("router did not start")
	}
}

func awaitTimeout() <-chan time.Time {
	return time.After(receiveTimeout)
}

func collectInto(ch chan<- *message.Message) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		ch <- msg
		return nil
	}
}

func awaitMessage(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-awaitTimeout():
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func assertNoMessage(t *testing.T, ch <-chan *message.Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %s: %s", msg.UUID, msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNewBinderValidatesArguments(t *testing.T) {
	_, err := NewBinder(context.Background(), nil, newTestLogger(), BinderDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = NewBinder(context.Background(), &configpkg.Config{Transport: "channel", Mode: "direct"}, nil, BinderDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)

	_, err = NewBinder(context.Background(), &configpkg.Config{Transport: "channel"}, newTestLogger(), BinderDependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel: only the direct mode is supported")
}

func TestNewBinderFactoryError(t *testing.T) {
	boom := errors.New("boom")
	factory := transportpkg.FactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{}, boom
	})

	_, err := NewBinder(context.Background(), &configpkg.Config{Transport: "memory"}, newTestLogger(), BinderDependencies{TransportFactory: factory})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `failed to build transport "memory"`)
}

func TestNewBinderMiddlewareBuilderErrorClosesTransport(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	factory := transportpkg.FactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{Broker: broker.NewMemory(), Publisher: pubSub, Subscriber: pubSub}, nil
	})

	_, err := NewBinder(context.Background(), &configpkg.Config{Transport: "memory"}, newTestLogger(), BinderDependencies{
		TransportFactory:      factory,
		DisableSignalsHandler: true,
		Middlewares: []MiddlewareRegistration{{
			Name: "broken",
			Builder: func(*Binder) (message.HandlerMiddleware, error) {
				return nil, errors.New("cannot build")
			},
		}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register middleware broken")
	assert.Error(t, pubSub.Publish("orders", message.NewMessage("1", nil)), "transport should be closed")
}

func TestDirectModeRoundTrip(t *testing.T) {
	conf := &configpkg.Config{
		Transport:      configpkg.TransportChannel,
		Mode:           configpkg.ModeDirect,
		MetricsEnabled: true,
	}
	b := newTestBinder(t, conf, BinderDependencies{})

	received := make(chan *message.Message, 10)
	binding, err := b.BindConsumer(context.Background(), ConsumerRegistration{
		Name:    "orders",
		Group:   "ignored",
		Handler: collectInto(received),
	})
	require.NoError(t, err)
	assert.Equal(t, "orders", binding.HandlerName)
	assert.False(t, binding.Destination.Anonymous)

	producer, err := b.BindProducer(context.Background(), "orders", nil)
	require.NoError(t, err)
	assert.Equal(t, "orders", producer.Destination().Target())

	runBinder(t, b)

	msg := NewMessage([]byte(`{"order":42}`), metadatapkg.Metadata{"source": "test"})
	require.NoError(t, producer.Publish(context.Background(), msg))

	got := awaitMessage(t, received)
	assert.Equal(t, msg.UUID, got.UUID)
	assert.JSONEq(t, `{"order":42}`, string(got.Payload))
	assert.Equal(t, "test", got.Metadata.Get("source"))
	assert.NotEmpty(t, got.Metadata.Get(MetadataKeyCorrelationID))

	rec := httptest.NewRecorder()
	b.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `sqsbinder_messages_adapted_total{direction="inbound",mode="direct"} 1`)
	assert.Contains(t, rec.Body.String(), `sqsbinder_messages_adapted_total{direction="outbound",mode="direct"} 1`)
}

func TestFanOutPartitionedRoundTrip(t *testing.T) {
	mem := broker.NewMemory()
	conf := &configpkg.Config{Transport: "memory", Mode: configpkg.ModeFanOut, MetricsEnabled: true}
	b := newTestBinder(t, conf, BinderDependencies{
		TransportFactory: fanOutFactory(mem),
		SuffixGenerator:  func() string { return "fixed" },
	})

	partitions := []chan *message.Message{make(chan *message.Message, 10), make(chan *message.Message, 10)}
	for i, ch := range partitions {
		_, err := b.BindConsumer(context.Background(), ConsumerRegistration{
			Name:       "orders",
			Group:      "workers",
			Properties: &configpkg.ConsumerProperties{Partitioned: true, InstanceIndex: i, InstanceCount: 2},
			Handler:    collectInto(ch),
		})
		require.NoError(t, err)
	}
	everything := make(chan *message.Message, 10)
	anonymous, err := b.BindConsumer(context.Background(), ConsumerRegistration{Name: "orders", Handler: collectInto(everything)})
	require.NoError(t, err)
	assert.True(t, anonymous.Destination.Anonymous)
	assert.Equal(t, "orders_anonymous_fixed", anonymous.Destination.Name)

	producer, err := b.BindProducer(context.Background(), "orders", &configpkg.ProducerProperties{Partitioned: true, PartitionCount: 2})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sns:local:000000000000:orders", producer.Destination().Target())

	_, ok := mem.Queue("workers-0")
	assert.True(t, ok)
	_, ok = mem.Queue("workers-1")
	assert.True(t, ok)

	runBinder(t, b)

	msg := NewMessage([]byte(`{"order":"<42>"}`), nil)
	require.NoError(t, producer.PublishToPartition(context.Background(), 1, msg))

	got := awaitMessage(t, partitions[1])
	assert.JSONEq(t, `{"order":"<42>"}`, string(got.Payload))
	assert.Equal(t, msg.UUID, got.UUID)

	got = awaitMessage(t, everything)
	assert.JSONEq(t, `{"order":"<42>"}`, string(got.Payload))

	assertNoMessage(t, partitions[0])

	rec := httptest.NewRecorder()
	b.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `sqsbinder_messages_adapted_total{direction="inbound",mode="fanout"} 2`)
	assert.Contains(t, rec.Body.String(), `sqsbinder_provisioned_resources_total`)
}

func TestFanOutDeliversProducerHeaders(t *testing.T) {
	mem := broker.NewMemory()
	b := newTestBinder(t, &configpkg.Config{Transport: "memory", Mode: configpkg.ModeFanOut}, BinderDependencies{
		TransportFactory: fanOutFactory(mem),
	})

	received := make(chan *message.Message, 1)
	_, err := b.BindConsumer(context.Background(), ConsumerRegistration{
		Name:       "orders",
		Group:      "workers",
		Properties: &configpkg.ConsumerProperties{Partitioned: true, InstanceIndex: 1, InstanceCount: 2},
		Handler:    collectInto(received),
	})
	require.NoError(t, err)
	producer, err := b.BindProducer(context.Background(), "orders", &configpkg.ProducerProperties{Partitioned: true, PartitionCount: 2})
	require.NoError(t, err)

	runBinder(t, b)

	msg := NewMessage([]byte(`{"order":"42"}`), metadatapkg.Metadata{"source": "app"})
	require.NoError(t, producer.PublishToPartition(context.Background(), 1, msg))

	got := awaitMessage(t, received)
	assert.Equal(t, "app", got.Metadata.Get("source"))
	assert.Equal(t, "1", got.Metadata.Get(configpkg.DefaultPartitionHeader))

	partition, ok := handlerpkg.MessageContextBase{Metadata: metadatapkg.FromWatermill(got.Metadata)}.Partition(configpkg.DefaultPartitionHeader)
	assert.True(t, ok)
	assert.Equal(t, 1, partition)
}

func TestFanOutWithoutMessageAttributesDropsProducerHeaders(t *testing.T) {
	mem := broker.NewMemory()
	conf := &configpkg.Config{Transport: "memory", Mode: configpkg.ModeFanOut, DisableMessageAttributes: true}
	b := newTestBinder(t, conf, BinderDependencies{TransportFactory: fanOutFactory(mem)})

	received := make(chan *message.Message, 1)
	_, err := b.BindConsumer(context.Background(), ConsumerRegistration{Name: "orders", Group: "workers", Handler: collectInto(received)})
	require.NoError(t, err)
	producer, err := b.BindProducer(context.Background(), "orders", nil)
	require.NoError(t, err)

	runBinder(t, b)

	require.NoError(t, producer.Publish(context.Background(), NewMessage([]byte(`{}`), metadatapkg.Metadata{"source": "app"})))

	got := awaitMessage(t, received)
	assert.Empty(t, got.Metadata.Get("source"))
}

func TestBindProducerReturnsCachedBinding(t *testing.T) {
	mem := broker.NewMemory()
	b := newTestBinder(t, &configpkg.Config{Transport: "memory"}, BinderDependencies{TransportFactory: fanOutFactory(mem)})

	first, err := b.BindProducer(context.Background(), "orders", nil)
	require.NoError(t, err)
	second, err := b.BindProducer(context.Background(), "orders", nil)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []string{"orders"}, mem.Topics())

	_, err = b.BindProducer(context.Background(), "", nil)
	assert.ErrorIs(t, err, errspkg.ErrNameRequired)
}

func TestPartitionedProducerRequiresPartition(t *testing.T) {
	conf := &configpkg.Config{
		Transport: "memory",
		Producers: map[string]configpkg.ProducerProperties{
			"orders": {Partitioned: true, PartitionCount: 2},
		},
	}
	b := newTestBinder(t, conf, BinderDependencies{TransportFactory: fanOutFactory(broker.NewMemory())})

	producer, err := b.BindProducer(context.Background(), "orders", nil)
	require.NoError(t, err)

	err = producer.Publish(context.Background(), NewMessage([]byte("x"), nil))
	assert.ErrorIs(t, err, errspkg.ErrPartitionHeaderMissing)

	err = producer.PublishToPartition(context.Background(), 2, NewMessage([]byte("x"), nil))
	assert.EqualError(t, err, "partition 2 out of range for 2 partitions")

	err = producer.PublishToPartition(context.Background(), -1, NewMessage([]byte("x"), nil))
	assert.Error(t, err)

	msg := NewMessage([]byte("x"), nil)
	require.NoError(t, producer.PublishToPartition(context.Background(), 0, msg))
	assert.Equal(t, "0", msg.Metadata.Get(configpkg.DefaultPartitionHeader))
}

func TestBindConsumerValidations(t *testing.T) {
	handler := func(*message.Message) error { return nil }

	fanOut := newTestBinder(t, &configpkg.Config{Transport: "memory"}, BinderDependencies{TransportFactory: fanOutFactory(broker.NewMemory())})

	_, err := fanOut.BindConsumer(context.Background(), ConsumerRegistration{Name: "orders"})
	assert.ErrorIs(t, err, errspkg.ErrHandlerRequired)

	_, err = fanOut.BindConsumer(context.Background(), ConsumerRegistration{Handler: handler})
	assert.ErrorIs(t, err, errspkg.ErrNameRequired)

	_, err = fanOut.BindConsumer(context.Background(), ConsumerRegistration{
		Name:       "orders",
		Properties: &configpkg.ConsumerProperties{MaxMessagesPerPoll: -1},
		Handler:    handler,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `consumer "orders": max messages per poll cannot be negative`)

	_, err = fanOut.BindConsumer(context.Background(), ConsumerRegistration{Name: "orders", Group: "workers", Handler: handler})
	require.NoError(t, err)
	_, err = fanOut.BindConsumer(context.Background(), ConsumerRegistration{Name: "orders", Group: "workers", Handler: handler})
	assert.EqualError(t, err, `consumer for queue "workers" is already bound`)

	direct := newTestBinder(t, &configpkg.Config{Transport: configpkg.TransportChannel, Mode: configpkg.ModeDirect}, BinderDependencies{})
	_, err = direct.BindConsumer(context.Background(), ConsumerRegistration{
		Name:       "orders",
		Properties: &configpkg.ConsumerProperties{Partitioned: true},
		Handler:    handler,
	})
	assert.ErrorIs(t, err, errspkg.ErrPartitioningUnsupported)
}

func TestBindConsumerAfterRunStartsHandler(t *testing.T) {
	b := newTestBinder(t, &configpkg.Config{Transport: configpkg.TransportChannel, Mode: configpkg.ModeDirect}, BinderDependencies{})

	_, err := b.BindConsumer(context.Background(), ConsumerRegistration{
		Name:    "warmup",
		Handler: func(*message.Message) error { return nil },
	})
	require.NoError(t, err)
	runBinder(t, b)

	received := make(chan *message.Message, 1)
	_, err = b.BindConsumer(context.Background(), ConsumerRegistration{Name: "late", Handler: collectInto(received)})
	require.NoError(t, err)

	producer, err := b.BindProducer(context.Background(), "late", nil)
	require.NoError(t, err)
	require.NoError(t, producer.Publish(context.Background(), NewMessage([]byte("hello"), nil)))

	assert.Equal(t, "hello", string(awaitMessage(t, received).Payload))
}

func TestClosedBinderRejectsBindings(t *testing.T) {
	b := newTestBinder(t, &configpkg.Config{Transport: configpkg.TransportChannel, Mode: configpkg.ModeDirect}, BinderDependencies{})
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.BindProducer(context.Background(), "orders", nil)
	assert.ErrorIs(t, err, errspkg.ErrBinderClosed)

	_, err = b.BindConsumer(context.Background(), ConsumerRegistration{
		Name:    "orders",
		Handler: func(*message.Message) error { return nil },
	})
	assert.ErrorIs(t, err, errspkg.ErrBinderClosed)
}

func TestRunDelegatesToRouter(t *testing.T) {
	origRun := routerRun
	defer func() { routerRun = origRun }()

	called := make(chan struct{})
	routerRun = func(_ *message.Router, ctx context.Context) error {
		close(called)
		<-ctx.Done()
		return nil
	}

	b := newTestBinder(t, &configpkg.Config{Transport: configpkg.TransportChannel, Mode: configpkg.ModeDirect}, BinderDependencies{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case <-called:
	case <-time.After(receiveTimeout):
		t.Fatal("routerRun override not invoked")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestRemoveAnonymousQueues(t *testing.T) {
	mem := broker.NewMemory()
	b := newTestBinder(t, &configpkg.Config{Transport: "memory"}, BinderDependencies{TransportFactory: fanOutFactory(mem)})
	handler := func(*message.Message) error { return nil }

	for i := 0; i < 2; i++ {
		_, err := b.BindConsumer(context.Background(), ConsumerRegistration{Name: "orders", Handler: handler})
		require.NoError(t, err)
	}
	_, err := b.BindConsumer(context.Background(), ConsumerRegistration{Name: "orders", Group: "workers", Handler: handler})
	require.NoError(t, err)

	removed, err := b.RemoveAnonymousQueues(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok := mem.Queue("workers")
	assert.True(t, ok)
	assert.Len(t, mem.Subscriptions(), 1)

	_, err = b.RemoveAnonymousQueues(context.Background(), "")
	assert.ErrorIs(t, err, errspkg.ErrNameRequired)
}

func TestCloseTimeoutUsesLongestQueueStopTimeout(t *testing.T) {
	assert.Zero(t, closeTimeout(&configpkg.Config{}))
	assert.Equal(t, 3*time.Second, closeTimeout(&configpkg.Config{
		Consumers: map[string]configpkg.ConsumerProperties{
			"a": {QueueStopTimeout: time.Second},
			"b": {QueueStopTimeout: 3 * time.Second},
		},
	}))
}

func TestBinderAccessors(t *testing.T) {
	mem := broker.NewMemory()
	b := newTestBinder(t, &configpkg.Config{Transport: "memory", Mode: configpkg.ModeFanOut}, BinderDependencies{TransportFactory: fanOutFactory(mem)})

	assert.Same(t, mem, b.Broker())
	assert.Equal(t, configpkg.ModeFanOut, b.Provisioner().Mode())

	rec := httptest.NewRecorder()
	b.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
}
