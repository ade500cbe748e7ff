package runtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	errspkg "github.com/drblury/sqsbinder/internal/runtime/errors"
	handlerpkg "github.com/drblury/sqsbinder/internal/runtime/handlers"
	idspkg "github.com/drblury/sqsbinder/internal/runtime/ids"
	loggingpkg "github.com/drblury/sqsbinder/internal/runtime/logging"
)

// MetadataKeyCorrelationID is the header carrying the correlation identifier.
const MetadataKeyCorrelationID = handlerpkg.MetadataKeyCorrelationID

const handlerTracerName = "sqsbinder/binder"

// MiddlewareBuilder constructs a handler middleware using the provided binder.
type MiddlewareBuilder func(*Binder) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware should be registered on the binder router.
// Router middlewares run before the inbound adapter, so they see the message as delivered.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// RetryMiddlewareConfig customises the retry middleware behaviour.
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// RetryIf decides whether an error is retried. By default every error is
	// retried except malformed envelopes, which never unwrap on a second try.
	RetryIf func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 8 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = func(err error) bool {
			return !errors.Is(err, errspkg.ErrMalformedEnvelope)
		}
	}
	return cfg
}

// DefaultMiddlewares returns the standard middleware chain used by NewBinder.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware adds the Watermill router metrics to the binder registry
// when metrics are enabled.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(b *Binder) (message.HandlerMiddleware, error) {
			if !b.Conf.MetricsEnabled {
				return nil, nil
			}

			metricsBuilder := metrics.NewPrometheusMetricsBuilder(
				b.registry,
				"sqsbinder",
				b.Conf.TransportName(),
			)
			metricsBuilder.AddPrometheusRouterMetrics(b.router)

			return metricsBuilder.NewRouterMiddleware().Middleware, nil
		},
	}
}

// CorrelationIDMiddleware ensures each processed message carries a correlation identifier.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "correlation_id",
		Middleware: correlationIDMiddleware,
	}
}

// LogMessagesMiddleware logs the payload and metadata of handled messages at
// debug level. A nil logger falls back to the binder logger.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(b *Binder) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = b.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return logMessagesMiddleware(l), nil
		},
	}
}

// TracerMiddleware wraps message handling with an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "tracer",
		Middleware: tracerMiddleware,
	}
}

// RetryMiddleware retries handler execution using the provided configuration (defaults applied to zero values).
func RetryMiddleware(cfg RetryMiddlewareConfig) MiddlewareRegistration {
	normalized := cfg.withDefaults()
	return MiddlewareRegistration{
		Name: "retry",
		Builder: func(b *Binder) (message.HandlerMiddleware, error) {
			return middleware.Retry{
				MaxRetries:      normalized.MaxRetries,
				InitialInterval: normalized.InitialInterval,
				MaxInterval:     normalized.MaxInterval,
				Multiplier:      2,
				ShouldRetry: func(params middleware.RetryParams) bool {
					return normalized.RetryIf(params.Err)
				},
				Logger: b.wmLogger,
			}.Middleware, nil
		},
	}
}

// RecovererMiddleware turns handler panics into errors so the message is nacked.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches the supplied middleware to the router. It must be
// called before Run.
func (b *Binder) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if b.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(b)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	b.router.AddMiddleware(mw)
	return nil
}

func (b *Binder) registerConfiguredMiddlewares(deps BinderDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := b.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

func correlationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if _, ok := msg.Metadata[MetadataKeyCorrelationID]; !ok {
			msg.Metadata.Set(MetadataKeyCorrelationID, idspkg.CreateULID())
		}
		return h(msg)
	}
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Processing message", loggingpkg.LogFields{
				"handler":      message.HandlerNameFromCtx(msg.Context()),
				"message_uuid": msg.UUID,
				"payload":      string(msg.Payload),
				"metadata":     msg.Metadata,
			})
			return h(msg)
		}
	}
}

func tracerMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		tracer := otel.Tracer(handlerTracerName)
		ctx, span := tracer.Start(msg.Context(), "ProcessMessage")
		defer span.End()
		msg.SetContext(ctx)

		span.SetAttributes(
			attribute.String("message.uuid", msg.UUID),
			attribute.String("messaging.handler", message.HandlerNameFromCtx(ctx)),
			attribute.String("messaging.source", message.SubscribeTopicFromCtx(ctx)),
		)
		msgs, err := h(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return msgs, err
	}
}
