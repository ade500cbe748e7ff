package provisioning

import (
	"strconv"

	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/drblury/sqsbinder/internal/runtime/config"
)

// QueueAttributes maps queue properties onto the broker's canonical attribute
// names. Unset properties are left out. The result is never nil.
func QueueAttributes(props *config.QueueProperties) map[string]string {
	attrs := map[string]string{}
	if props == nil {
		return attrs
	}

	putInt(attrs, sqstypes.QueueAttributeNameDelaySeconds, props.DelaySeconds)
	putInt(attrs, sqstypes.QueueAttributeNameMaximumMessageSize, props.MaximumMessageSize)
	putInt(attrs, sqstypes.QueueAttributeNameMessageRetentionPeriod, props.MessageRetentionPeriod)
	putInt(attrs, sqstypes.QueueAttributeNameReceiveMessageWaitTimeSeconds, props.ReceiveMessageWaitTimeSeconds)
	putInt(attrs, sqstypes.QueueAttributeNameVisibilityTimeout, props.VisibilityTimeout)
	if props.Policy != nil {
		attrs[string(sqstypes.QueueAttributeNamePolicy)] = *props.Policy
	}
	if props.RedrivePolicy != nil {
		attrs[string(sqstypes.QueueAttributeNameRedrivePolicy)] = *props.RedrivePolicy
	}
	return attrs
}

func putInt(attrs map[string]string, name sqstypes.QueueAttributeName, v *int) {
	if v != nil {
		attrs[string(name)] = strconv.Itoa(*v)
	}
}
