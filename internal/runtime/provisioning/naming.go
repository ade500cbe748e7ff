package provisioning

import (
	"strconv"
	"strings"
)

const anonymousInfix = "_anonymous_"

// ConsumerQueueName computes the physical queue of a fanout consumer. A named
// group maps to the group, suffixed with the instance index when partitioned.
// An empty group yields an anonymous queue named after the destination with a
// random suffix, partitioned or not.
func ConsumerQueueName(name, group string, partitioned bool, instanceIndex int, suffix func() string) (queue string, anonymous bool) {
	if group == "" {
		return AnonymousQueuePrefix(name) + suffix(), true
	}
	if partitioned {
		return group + "-" + strconv.Itoa(instanceIndex), false
	}
	return group, false
}

// AnonymousQueuePrefix returns the name prefix shared by all anonymous queues
// of a destination.
func AnonymousQueuePrefix(name string) string {
	return name + anonymousInfix
}

// IsAnonymousQueue reports whether queue was named by ConsumerQueueName for an
// empty group.
func IsAnonymousQueue(queue string) bool {
	return strings.Contains(queue, anonymousInfix)
}
