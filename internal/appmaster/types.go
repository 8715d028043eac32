// Package appmaster is the RPC surface of a cluster's deployed coordinator: the long-lived process
// that owns live placement decisions once a cluster is running.
package appmaster

import (
	"context"
	"fmt"
	"strings"

	"github.com/G-Research/flotilla/internal/clusterspec"
)

type NodeState int

const (
	NodeCreated NodeState = iota
	NodeLive
	NodeStopped
	NodeDestroyed
)

var nodeStateNames = []string{"CREATED", "LIVE", "STOPPED", "DESTROYED"}

func (s NodeState) String() string {
	if s < 0 || int(s) >= len(nodeStateNames) {
		return fmt.Sprintf("NodeState(%d)", int(s))
	}
	return nodeStateNames[s]
}

func (s NodeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *NodeState) UnmarshalText(text []byte) error {
	for i, name := range nodeStateNames {
		if strings.EqualFold(name, string(text)) {
			*s = NodeState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown node state %q", string(text))
}

// ClusterNode is one role instance as seen by the deployed coordinator.
type ClusterNode struct {
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Host        string    `json:"host"`
	State       NodeState `json:"state"`
	LastUpdated int64     `json:"lastUpdated,omitempty"`
	Diagnostics string    `json:"diagnostics,omitempty"`
}

// Client talks to the deployed coordinator of one cluster.
type Client interface {
	StopCluster(ctx context.Context, message string) error
	// Resize applies the role counts of spec and reports whether anything changed.
	Resize(ctx context.Context, spec *clusterspec.ClusterSpecification) (bool, error)
	GetStatus(ctx context.Context) (*clusterspec.ClusterSpecification, error)
	ListNodesByRole(ctx context.Context, role string) ([]string, error)
	GetNode(ctx context.Context, nodeId string) (*ClusterNode, error)
	Close() error
}

// Connector bonds to the coordinator of cluster listening on host:port.
type Connector func(cluster string, host string, port int) (Client, error)
