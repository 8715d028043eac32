package placement

import (
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

// NewerThan orders node instances by the last use of role, most recent first: it is negative when
// a was used more recently than b, positive for the reverse and zero on an exact tie. A host with
// no entry for role counts as never used.
func NewerThan(role int) func(a, b *NodeInstance) int {
	return func(a, b *NodeInstance) int {
		return compareLastUsed(a.LastUsed(role), b.LastUsed(role))
	}
}

func compareLastUsed(a, b time.Time) int {
	switch {
	case a.After(b):
		return -1
	case b.After(a):
		return 1
	default:
		return 0
	}
}

type rankedNode struct {
	node     *NodeInstance
	lastUsed time.Time
}

// SortByRecency returns nodes ordered most-recently-used first for role. Timestamps are read once
// per node before sorting, so concurrent updates cannot make the ordering inconsistent. Ties keep
// their input order.
func SortByRecency(nodes []*NodeInstance, role int) []*NodeInstance {
	ranked := make([]rankedNode, len(nodes))
	for i, node := range nodes {
		ranked[i] = rankedNode{node: node, lastUsed: node.LastUsed(role)}
	}
	slices.SortStableFunc(ranked, func(a, b rankedNode) bool {
		return compareLastUsed(a.lastUsed, b.lastUsed) < 0
	})
	sorted := make([]*NodeInstance, len(ranked))
	for i, r := range ranked {
		sorted[i] = r.node
	}
	return sorted
}

// Policy is the direction in which recency biases placement. The zero value is not
// a valid policy: callers must choose one.
type Policy int

const (
	PolicyUnset Policy = iota
	// Affinity prefers hosts that ran the role most recently.
	Affinity
	// Spread prefers hosts that have been idle for the role the longest.
	Spread
)

func (p Policy) String() string {
	switch p {
	case Affinity:
		return "affinity"
	case Spread:
		return "spread"
	default:
		return "unset"
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "affinity":
		return Affinity, nil
	case "spread":
		return Spread, nil
	default:
		return PolicyUnset, &flotillaerrors.ErrInvalidArgument{
			Name:    "policy",
			Value:   s,
			Message: "must be one of affinity, spread",
		}
	}
}

// Rank orders nodes as candidates for a new instance of role under policy. Under Spread, hosts
// already running the role are moved behind every available host.
func Rank(nodes []*NodeInstance, role int, policy Policy) ([]*NodeInstance, error) {
	sorted := SortByRecency(nodes, role)
	switch policy {
	case Affinity:
		return sorted, nil
	case Spread:
		reversed := make([]*NodeInstance, 0, len(sorted))
		var busy []*NodeInstance
		for i := len(sorted) - 1; i >= 0; i-- {
			if sorted[i].Available(role) {
				reversed = append(reversed, sorted[i])
			} else {
				busy = append(busy, sorted[i])
			}
		}
		return append(reversed, busy...), nil
	default:
		return nil, &flotillaerrors.ErrInvalidArgument{
			Name:    "policy",
			Value:   policy,
			Message: "a placement policy must be chosen explicitly",
		}
	}
}
