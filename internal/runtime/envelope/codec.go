// Package envelope bridges between raw application payloads and the
// notification envelopes the fanout layer wraps them in.
package envelope

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/sqsbinder/internal/runtime/errors"
	idspkg "github.com/drblury/sqsbinder/internal/runtime/ids"
	"github.com/drblury/sqsbinder/internal/runtime/jsoncodec"
	"github.com/drblury/sqsbinder/internal/runtime/metadata"
)

// NotificationType is the Type of envelopes built by Wrap.
const NotificationType = "Notification"

const timestampLayout = "2006-01-02T15:04:05.000Z"

// notification is the inbound view of an envelope. Only Message and
// MessageAttributes are interpreted.
type notification struct {
	Message           json.RawMessage             `json:"Message"`
	MessageAttributes map[string]messageAttribute `json:"MessageAttributes"`
}

type messageAttribute struct {
	Type  string `json:"Type"`
	Value string `json:"Value"`
}

// wrappedNotification is the outbound view used by Wrap.
type wrappedNotification struct {
	Type              string                      `json:"Type"`
	MessageID         string                      `json:"MessageId"`
	TopicArn          string                      `json:"TopicArn,omitempty"`
	Message           string                      `json:"Message"`
	Timestamp         string                      `json:"Timestamp"`
	MessageAttributes map[string]messageAttribute `json:"MessageAttributes,omitempty"`
}

// Codec unwraps notification envelopes on the inbound path. The zero value is
// not usable; build one with NewCodec.
type Codec struct {
	strict         bool
	liftAttributes bool
	topicArn       string
	now            func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithStrictUnescape decodes the Message field as a JSON string instead of
// applying the pattern-based unescape. Payloads that are not JSON objects
// then survive unwrapping intact.
func WithStrictUnescape() Option {
	return func(c *Codec) { c.strict = true }
}

// WithoutMessageAttributes keeps envelope message attributes out of the
// headers of unwrapped messages. Producer headers then do not reach handlers.
func WithoutMessageAttributes() Option {
	return func(c *Codec) { c.liftAttributes = false }
}

// WithTopicArn sets the TopicArn of envelopes built by Wrap.
func WithTopicArn(arn string) Option {
	return func(c *Codec) { c.topicArn = arn }
}

// NewCodec returns a Codec. Without options it reverses exactly the escaping
// the fanout layer applies to JSON object payloads and copies envelope message
// attributes into the headers of unwrapped messages. Headers already present
// win over attributes.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{now: time.Now, liftAttributes: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unwrap removes one envelope layer from raw and returns the embedded payload
// together with a copy of headers. headers itself is never modified.
func (c *Codec) Unwrap(raw []byte, headers metadata.Metadata) ([]byte, metadata.Metadata, error) {
	if !jsoncodec.Valid(raw) {
		return nil, nil, &errspkg.MalformedEnvelopeError{Reason: "payload is not valid JSON"}
	}
	var env notification
	if err := jsoncodec.Unmarshal(raw, &env); err != nil {
		return nil, nil, &errspkg.MalformedEnvelopeError{Reason: "payload is not a notification object", Err: err}
	}
	field := bytes.TrimSpace(env.Message)
	if len(field) == 0 || string(field) == "null" {
		return nil, nil, &errspkg.MalformedEnvelopeError{Reason: "Message field is missing"}
	}

	payload, err := c.decodeMessage(field)
	if err != nil {
		return nil, nil, err
	}

	out := headers.Clone()
	if c.liftAttributes && len(env.MessageAttributes) > 0 {
		lifted := make(metadata.Metadata, len(env.MessageAttributes))
		for name, attr := range env.MessageAttributes {
			lifted[name] = attr.Value
		}
		out = out.WithDefaults(lifted)
	}
	return payload, out, nil
}

func (c *Codec) decodeMessage(field []byte) ([]byte, error) {
	if !c.strict {
		return []byte(unescape(string(field))), nil
	}
	if field[0] != '"' {
		return append([]byte(nil), field...), nil
	}
	var text string
	if err := jsoncodec.Unmarshal(field, &text); err != nil {
		return nil, &errspkg.MalformedEnvelopeError{Reason: "Message field is not a JSON string", Err: err}
	}
	return []byte(text), nil
}

// unescape reverses the escaping of a JSON object embedded as a string. It
// only handles payloads that are JSON objects at the outermost level.
func unescape(s string) string {
	s = strings.ReplaceAll(s, `"{`, "{")
	s = strings.ReplaceAll(s, `}"`, "}")
	return strings.ReplaceAll(s, `\"`, `"`)
}

// UnwrapMessage returns a new message carrying the unwrapped payload and a copy
// of msg's metadata. msg is left untouched.
func (c *Codec) UnwrapMessage(msg *message.Message) (*message.Message, error) {
	payload, headers, err := c.Unwrap(msg.Payload, metadata.FromWatermill(msg.Metadata))
	if err != nil {
		return nil, err
	}
	out := message.NewMessage(msg.UUID, payload)
	out.Metadata = metadata.ToWatermill(headers)
	out.SetContext(msg.Context())
	return out, nil
}

// Wrap builds the notification envelope the fanout layer would deliver for
// payload. Headers become string message attributes.
func (c *Codec) Wrap(payload []byte, headers metadata.Metadata) ([]byte, error) {
	env := wrappedNotification{
		Type:      NotificationType,
		MessageID: idspkg.CreateULID(),
		TopicArn:  c.topicArn,
		Message:   string(payload),
		Timestamp: c.now().UTC().Format(timestampLayout),
	}
	if len(headers) > 0 {
		env.MessageAttributes = make(map[string]messageAttribute, len(headers))
		for k, v := range headers {
			env.MessageAttributes[k] = messageAttribute{Type: "String", Value: v}
		}
	}
	return jsoncodec.MarshalWire(env)
}

// Adapt returns the payload of an outbound message as text. Bytes that are not
// valid UTF-8 are replaced, so binary payloads do not survive.
func Adapt(msg *message.Message) string {
	return strings.ToValidUTF8(string(msg.Payload), "\uFFFD")
}
