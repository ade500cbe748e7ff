package errors

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrProvisioning", ErrProvisioning, "sqsbinder: provisioning failed"},
		{"ErrMalformedEnvelope", ErrMalformedEnvelope, "sqsbinder: malformed envelope"},
		{"ErrBrokerRequired", ErrBrokerRequired, "sqsbinder: broker client is required"},
		{"ErrNameRequired", ErrNameRequired, "sqsbinder: destination name is required"},
		{"ErrPublisherRequired", ErrPublisherRequired, "sqsbinder: publisher is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestProvisioningError(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewProvisioningError("create queue", "orders", inner)

	assert.True(t, errors.Is(err, ErrProvisioning))
	assert.True(t, errors.Is(err, inner))
	assert.False(t, errors.Is(err, ErrAttributeConflict))
	assert.Equal(t, `sqsbinder: provisioning failed: create queue "orders": connection refused`, err.Error())

	noResource := &ProvisioningError{Operation: "list queues", Err: inner}
	assert.Equal(t, "sqsbinder: provisioning failed: list queues: connection refused", noResource.Error())
}

func TestProvisioningErrorMarksAttributeConflicts(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "QueueAlreadyExists", Message: "A queue already exists with the same name and a different value for attribute DelaySeconds"}
	err := NewProvisioningError("create queue", "orders", apiErr)

	assert.True(t, errors.Is(err, ErrProvisioning))
	assert.True(t, errors.Is(err, ErrAttributeConflict))

	var conflict *AttributeConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "orders", conflict.Resource)
	assert.Equal(t, apiErr.Error(), conflict.Error())

	var surfaced smithy.APIError
	require.True(t, errors.As(err, &surfaced))
	assert.Equal(t, "QueueAlreadyExists", surfaced.ErrorCode())
}

func TestIsConflictCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("boom"), false},
		{"sqs queue exists", &smithy.GenericAPIError{Code: "QueueNameExists"}, true},
		{"sns topic attributes", &smithy.GenericAPIError{Code: "InvalidParameter", Message: "Invalid parameter: Attributes Reason: Topic already exists with different attributes"}, true},
		{"sns other invalid parameter", &smithy.GenericAPIError{Code: "InvalidParameter", Message: "Invalid parameter: TopicArn"}, false},
		{"throttling", &smithy.GenericAPIError{Code: "Throttling"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConflictCode(tt.err))
		})
	}
}

func TestMalformedEnvelopeError(t *testing.T) {
	cause := errors.New("unexpected end of input")
	err := &MalformedEnvelopeError{Reason: "payload is not JSON", Err: cause}

	assert.True(t, errors.Is(err, ErrMalformedEnvelope))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "sqsbinder: malformed envelope: payload is not JSON: unexpected end of input", err.Error())

	bare := &MalformedEnvelopeError{Reason: `missing "Message" field`}
	assert.Equal(t, `sqsbinder: malformed envelope: missing "Message" field`, bare.Error())
}
