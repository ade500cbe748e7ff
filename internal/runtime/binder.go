package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/sqsbinder/internal/runtime/broker"
	configpkg "github.com/drblury/sqsbinder/internal/runtime/config"
	"github.com/drblury/sqsbinder/internal/runtime/envelope"
	errspkg "github.com/drblury/sqsbinder/internal/runtime/errors"
	loggingpkg "github.com/drblury/sqsbinder/internal/runtime/logging"
	metricspkg "github.com/drblury/sqsbinder/internal/runtime/metrics"
	"github.com/drblury/sqsbinder/internal/runtime/provisioning"
	transportpkg "github.com/drblury/sqsbinder/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// BinderDependencies holds the optional collaborators the Binder can use.
// Leave fields nil to get the defaults.
type BinderDependencies struct {
	TransportFactory transportpkg.Factory
	// Registry receives the binder and router collectors when metrics are
	// enabled. A private registry is used when nil.
	Registry                  *prometheus.Registry
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	DisableSignalsHandler     bool                     // Keeps the router from closing on SIGINT/SIGTERM.
	// SuffixGenerator overrides how anonymous queue names are randomised.
	SuffixGenerator func() string
}

// Binder maps logical destinations onto broker topology and moves messages
// between the application and the broker. Bind producers and consumers, then
// call Run.
type Binder struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	wmLogger    watermill.LoggerAdapter
	transport   transportpkg.Transport
	provisioner *provisioning.Provisioner
	codec       *envelope.Codec
	metrics     *metricspkg.Metrics
	registry    *prometheus.Registry
	router      *message.Router

	mu        sync.Mutex
	producers map[string]*ProducerBinding
	consumers map[string]*ConsumerBinding
	closed    bool
}

// NewBinder validates conf, builds the transport and prepares the router.
// Nothing is provisioned until a producer or consumer is bound.
func NewBinder(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps BinderDependencies) (*Binder, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid binder config: %w", err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating binder", loggingpkg.LogFields{
		"transport": conf.TransportName(),
		"mode":      conf.ModeOrDefault(),
		"config":    conf,
	})

	b := &Binder{
		Conf:      conf,
		Logger:    log,
		wmLogger:  wmLogger,
		registry:  deps.Registry,
		producers: make(map[string]*ProducerBinding),
		consumers: make(map[string]*ConsumerBinding),
	}
	if b.registry == nil {
		b.registry = prometheus.NewRegistry()
	}
	if conf.MetricsEnabled {
		m, err := metricspkg.New(b.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register binder metrics: %w", err)
		}
		b.metrics = m
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to build transport %q: %w", conf.TransportName(), err)
	}
	b.transport = transport

	if err := b.init(deps); err != nil {
		_ = transport.Close()
		return nil, err
	}
	return b, nil
}

func (b *Binder) init(deps BinderDependencies) error {
	provisioner, err := provisioning.New(b.transport.Broker,
		provisioning.WithMode(b.Conf.ModeOrDefault()),
		provisioning.WithPartitionHeader(b.Conf.PartitionHeaderOrDefault()),
		provisioning.WithLogger(b.wmLogger),
		provisioning.WithMetrics(b.metrics),
		provisioning.WithSuffixGenerator(deps.SuffixGenerator),
	)
	if err != nil {
		return err
	}
	b.provisioner = provisioner

	var codecOpts []envelope.Option
	if b.Conf.StrictEnvelopeDecoding {
		codecOpts = append(codecOpts, envelope.WithStrictUnescape())
	}
	if b.Conf.DisableMessageAttributes {
		codecOpts = append(codecOpts, envelope.WithoutMessageAttributes())
	}
	b.codec = envelope.NewCodec(codecOpts...)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: closeTimeout(b.Conf)}, b.wmLogger)
	if err != nil {
		return err
	}
	b.router = router
	if !deps.DisableSignalsHandler {
		b.router.AddPlugin(plugin.SignalsHandler)
	}

	return b.registerConfiguredMiddlewares(deps)
}

// closeTimeout is the longest queue stop timeout of the configured consumers.
// Zero leaves the router default in place.
func closeTimeout(conf *configpkg.Config) time.Duration {
	var longest time.Duration
	for _, props := range conf.Consumers {
		if props.QueueStopTimeout > longest {
			longest = props.QueueStopTimeout
		}
	}
	return longest
}

// Run starts consuming on every bound consumer and blocks until ctx is
// cancelled or the binder is closed.
func (b *Binder) Run(ctx context.Context) error {
	return routerRun(b.router, ctx)
}

// Running is closed once the router is running.
func (b *Binder) Running() chan struct{} {
	return b.router.Running()
}

// Close stops the router and closes the transport. Consumers get at most the
// longest configured queue stop timeout to finish in-flight messages.
func (b *Binder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.router.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close router: %w", err))
	}
	if err := b.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	return errors.Join(errs...)
}

// Provisioner exposes the topology provisioner, for example to provision
// destinations ahead of binding them.
func (b *Binder) Provisioner() *provisioning.Provisioner {
	return b.provisioner
}

// Broker returns the control plane client of the transport.
func (b *Binder) Broker() broker.Client {
	return b.transport.Broker
}

// MetricsHandler serves the binder registry in the Prometheus exposition format.
func (b *Binder) MetricsHandler() http.Handler {
	return b.metrics.Handler()
}

// RemoveAnonymousQueues deletes the anonymous queues created for name by any
// binder instance and returns how many were removed. Anonymous queues outlive
// the binder, so whoever owns their lifecycle calls this once the consumers
// are gone.
func (b *Binder) RemoveAnonymousQueues(ctx context.Context, name string) (int, error) {
	if name == "" {
		return 0, errspkg.ErrNameRequired
	}
	return b.provisioner.RemoveQueues(ctx, provisioning.AnonymousQueuePrefix(name))
}

func (b *Binder) adapterOptions() []envelope.AdapterOption {
	return []envelope.AdapterOption{
		envelope.WithAdapterMetrics(b.metrics),
		envelope.WithAdapterLogger(b.wmLogger),
	}
}
