// Package pathres flattens member-access chains into storage paths.
//
// A chain such as o.Props.Address.City resolves to the path "Address.City":
// the property-bag root marker is dropped, dictionary and array indexers
// become name[key] segments, and the pseudo-members Length and Count end
// the path and become a function applied to the stored value.
//
// Every resolved path is checked against a depth Policy. A chain deeper than
// the policy allows fails with PATH_DEPTH_EXCEEDED; paths are never
// truncated.
package pathres

import (
	"fmt"
	"strings"
)

// Tier selects a depth policy.
type Tier int

const (
	// TierOpen caps paths at OpenMaxDepth segments.
	TierOpen Tier = iota
	// TierPro removes the cap unless MaxDepth sets one.
	TierPro
)

// OpenMaxDepth is the segment limit of the open tier.
const OpenMaxDepth = 2

func (t Tier) String() string {
	if t == TierPro {
		return "pro"
	}
	return "open"
}

// ParseTier maps a configuration value to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return TierOpen, nil
	case "pro":
		return TierPro, nil
	}
	return TierOpen, fmt.Errorf("unknown tier %q (want open or pro)", s)
}

// Policy bounds the number of retained path segments.
type Policy struct {
	Tier Tier

	// MaxDepth overrides the pro tier's limit when positive. The open tier
	// ignores it.
	MaxDepth int
}

// DefaultPolicy is the open tier.
func DefaultPolicy() Policy {
	return Policy{Tier: TierOpen}
}

// Limit returns the maximum segment count, 0 meaning unlimited.
func (p Policy) Limit() int {
	if p.Tier == TierOpen {
		return OpenMaxDepth
	}
	if p.MaxDepth > 0 {
		return p.MaxDepth
	}
	return 0
}
