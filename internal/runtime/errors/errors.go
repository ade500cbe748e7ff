package errors

import (
	sterrors "errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

var (
	ErrProvisioning            = sterrors.New("sqsbinder: provisioning failed")
	ErrAttributeConflict       = sterrors.New("sqsbinder: resource exists with conflicting attributes")
	ErrMalformedEnvelope       = sterrors.New("sqsbinder: malformed envelope")
	ErrPartitioningUnsupported = sterrors.New("sqsbinder: partitioning requires the fanout mode")
	ErrPartitionHeaderMissing  = sterrors.New("sqsbinder: partition header is required for partitioned producers")
	ErrBrokerRequired          = sterrors.New("sqsbinder: broker client is required")
	ErrNameRequired            = sterrors.New("sqsbinder: destination name is required")
	ErrConfigRequired          = sterrors.New("sqsbinder: configuration is required")
	ErrLoggerRequired          = sterrors.New("sqsbinder: logger is required")
	ErrPublisherRequired       = sterrors.New("sqsbinder: publisher is required")
	ErrSubscriberRequired      = sterrors.New("sqsbinder: subscriber is required")
	ErrHandlerRequired         = sterrors.New("sqsbinder: handler function is required")
	ErrBinderClosed            = sterrors.New("sqsbinder: binder is closed")

	ErrBinderRequired              = sterrors.New("sqsbinder: binder is required")
	ErrPayloadRequired             = sterrors.New("sqsbinder: payload is required")
	ErrConsumeMessageTypeRequired  = sterrors.New("sqsbinder: consume message type is required")
	ErrConsumeMessagePointerNeeded = sterrors.New("sqsbinder: consume message type must be a pointer")
)

// ProvisioningError reports a broker call that failed while wiring topology.
// Operation names the broker call, Resource the queue, topic or subscription involved.
type ProvisioningError struct {
	Operation string
	Resource  string
	Err       error
}

// NewProvisioningError wraps err and marks broker-reported attribute conflicts.
func NewProvisioningError(operation, resource string, err error) *ProvisioningError {
	if IsConflictCode(err) {
		err = &AttributeConflictError{Resource: resource, Err: err}
	}
	return &ProvisioningError{Operation: operation, Resource: resource, Err: err}
}

func (e *ProvisioningError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("sqsbinder: provisioning failed: %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("sqsbinder: provisioning failed: %s %q: %v", e.Operation, e.Resource, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for ProvisioningError.
func (e *ProvisioningError) Is(target error) bool {
	return target == ErrProvisioning
}

// AttributeConflictError carries the broker error for a create call that hit an
// existing resource with different settings. The broker error is kept verbatim.
type AttributeConflictError struct {
	Resource string
	Err      error
}

func (e *AttributeConflictError) Error() string {
	return e.Err.Error()
}

func (e *AttributeConflictError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for AttributeConflictError.
func (e *AttributeConflictError) Is(target error) bool {
	return target == ErrAttributeConflict
}

// MalformedEnvelopeError is returned when an inbound payload is not a fan-out
// notification envelope.
type MalformedEnvelopeError struct {
	Reason string
	Err    error
}

func (e *MalformedEnvelopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sqsbinder: malformed envelope: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("sqsbinder: malformed envelope: %s", e.Reason)
}

func (e *MalformedEnvelopeError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for MalformedEnvelopeError.
func (e *MalformedEnvelopeError) Is(target error) bool {
	return target == ErrMalformedEnvelope
}

var conflictCodes = map[string]struct{}{
	"QueueAlreadyExists":                     {},
	"QueueNameExists":                        {},
	"AWS.SimpleQueueService.QueueNameExists": {},
}

// IsConflictCode reports whether err is a broker API error signalling that the
// resource already exists with incompatible attributes.
func IsConflictCode(err error) bool {
	var apiErr smithy.APIError
	if !sterrors.As(err, &apiErr) {
		return false
	}
	if _, ok := conflictCodes[apiErr.ErrorCode()]; ok {
		return true
	}
	// SNS reports topic attribute mismatches as a generic InvalidParameter.
	return apiErr.ErrorCode() == "InvalidParameter" &&
		strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "already exists")
}
