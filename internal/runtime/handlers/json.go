// Package handlers adapts typed application handlers to Watermill handler
// functions.
package handlers

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/sqsbinder/internal/runtime/errors"
	idspkg "github.com/drblury/sqsbinder/internal/runtime/ids"
	jsoncodec "github.com/drblury/sqsbinder/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/sqsbinder/internal/runtime/logging"
	metadatapkg "github.com/drblury/sqsbinder/internal/runtime/metadata"
)

// JSONMessageContext exposes the decoded payload and metadata to JSON handlers.
type JSONMessageContext[T any] struct {
	MessageContextBase
	UUID    string
	Payload T
}

// JSONMessageHandler processes a decoded JSON payload.
type JSONMessageHandler[T any] func(ctx context.Context, msg JSONMessageContext[T]) error

// BuildJSONHandler converts a typed JSON handler into a Watermill handler.
// T must be a pointer type; a fresh value is decoded for every message.
func BuildJSONHandler[T any](handler JSONMessageHandler[T], logger loggingpkg.ServiceLogger) (message.NoPublishHandlerFunc, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	prototypeFactory, err := jsonPrototypeFactory[T]()
	if err != nil {
		return nil, err
	}

	return func(msg *message.Message) error {
		typed := prototypeFactory()

		if err := jsoncodec.Unmarshal(msg.Payload, typed); err != nil {
			return fmt.Errorf("failed to unmarshal JSON payload: %w", err)
		}

		return handler(msg.Context(), JSONMessageContext[T]{
			MessageContextBase: MessageContextBase{
				Metadata: metadatapkg.FromWatermill(msg.Metadata),
				Logger:   logger,
			},
			UUID:    msg.UUID,
			Payload: typed,
		})
	}, nil
}

// NewJSONMessage encodes payload into a message with a ULID identifier. The
// metadata is copied and tagged with the payload type.
func NewJSONMessage(payload any, md metadatapkg.Metadata) (*message.Message, error) {
	if payload == nil {
		return nil, errspkg.ErrPayloadRequired
	}
	if v := reflect.ValueOf(payload); v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, errspkg.ErrPayloadRequired
	}

	body, err := jsoncodec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
	}

	headers := md.Clone()
	headers[MetadataKeyPayloadType] = fmt.Sprintf("%T", payload)

	msg := message.NewMessage(idspkg.CreateULID(), body)
	msg.Metadata = metadatapkg.ToWatermill(headers)
	return msg, nil
}

func jsonPrototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return nil, errspkg.ErrConsumeMessageTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return nil, errspkg.ErrConsumeMessagePointerNeeded
	}
	elem := typ.Elem()
	return func() T {
		clone := reflect.New(elem).Interface()
		return clone.(T)
	}, nil
}
