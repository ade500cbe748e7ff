package provisioning

import (
	"fmt"

	"github.com/drblury/sqsbinder/internal/runtime/jsoncodec"
)

// FilterPolicyAttribute is the subscription attribute holding the filter policy.
const FilterPolicyAttribute = "FilterPolicy"

// PartitionFilterPolicy returns the subscription filter policy matching messages
// whose header equals index, for example {"scst_partition": [2]}.
func PartitionFilterPolicy(header string, index int) (string, error) {
	key, err := jsoncodec.Quote(header)
	if err != nil {
		return "", fmt.Errorf("quote partition header: %w", err)
	}
	return fmt.Sprintf("{%s: [%d]}", key, index), nil
}
