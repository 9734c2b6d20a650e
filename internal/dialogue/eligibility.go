package dialogue

import (
	"strconv"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/flow"
)

// Qualifies reports whether data satisfies every rule. A missing or
// unparseable field fails its rule.
func Qualifies(rules []flow.Rule, data map[string]string) bool {
	for _, r := range rules {
		value, ok := data[r.Field]
		if !ok {
			return false
		}
		if r.Minimum != nil {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < *r.Minimum {
				return false
			}
			continue
		}
		if !contains(r.Allowed, value) {
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
