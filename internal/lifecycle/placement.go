package lifecycle

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/flotilla/internal/appmaster"
	"github.com/G-Research/flotilla/internal/common"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/placement"
	"github.com/G-Research/flotilla/internal/provider"
)

// ObservePlacement records in the placement history where the nodes of each role of a running cluster
// are. Each node moves its host's entry through requested, starting and live, and ends as completed
// once the cluster reports it stopped or destroyed. A node the cluster stops reporting is counted as
// failed. It returns the number of live nodes seen.
func (m *Manager) ObservePlacement(name string) (int, error) {
	client, _, err := m.bond(name)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	tracker := m.tracker(name)
	total := 0
	for _, role := range m.provider.Roles() {
		observed, err := m.observeRole(client, role.Name)
		if err != nil {
			return total, err
		}
		live, err := tracker.Observe(role.Key, observed)
		if err != nil {
			return total, err
		}
		total += live
	}
	log.Debugf("Observed %d live nodes of cluster %s on %d hosts", total, name, len(m.history.Hosts()))
	return total, nil
}

func (m *Manager) tracker(cluster string) *placement.Tracker {
	m.trackersMu.Lock()
	defer m.trackersMu.Unlock()
	tracker, ok := m.trackers[cluster]
	if !ok {
		tracker = placement.NewTracker(m.history)
		m.trackers[cluster] = tracker
	}
	return tracker
}

func (m *Manager) observeRole(client appmaster.Client, role string) ([]placement.Observation, error) {
	ctx, cancel := common.ContextWithTimeout(m.config.RpcTimeout)
	defer cancel()
	ids, err := client.ListNodesByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	observed := make([]placement.Observation, 0, len(ids))
	for _, id := range ids {
		node, err := client.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if node.Host == "" {
			continue
		}
		observed = append(observed, placement.Observation{
			Instance: node.Name,
			Host:     node.Host,
			Phase:    phaseOf(node.State),
		})
	}
	return observed, nil
}

func phaseOf(state appmaster.NodeState) placement.Phase {
	switch state {
	case appmaster.NodeCreated:
		return placement.PhaseStarting
	case appmaster.NodeLive:
		return placement.PhaseLive
	default:
		return placement.PhaseEnded
	}
}

// RankHosts orders the hosts in the placement history for a new instance of role.
func (m *Manager) RankHosts(role string, policy placement.Policy) ([]string, error) {
	key, ok := provider.RoleKey(m.provider, role)
	if !ok {
		return nil, &flotillaerrors.ErrInvalidArgument{Name: "role", Value: role, Message: "unknown role"}
	}
	ranked, err := placement.Rank(m.history.Nodes(), key, policy)
	if err != nil {
		return nil, err
	}
	hosts := make([]string, len(ranked))
	for i, node := range ranked {
		hosts[i] = node.Hostname()
	}
	return hosts, nil
}

// WaitForRoleInstanceLive waits until a node of role in a running cluster is live and returns it.
func (m *Manager) WaitForRoleInstanceLive(name string, role string, timeout time.Duration) (*appmaster.ClusterNode, error) {
	client, _, err := m.bond(name)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var found *appmaster.ClusterNode
	var seen []string
	reached, err := m.poller.Until(timeout, func() (bool, error) {
		ctx, cancel := common.ContextWithTimeout(m.config.RpcTimeout)
		defer cancel()
		ids, err := client.ListNodesByRole(ctx, role)
		if err != nil {
			return false, err
		}
		seen = ids
		for _, id := range ids {
			node, err := client.GetNode(ctx, id)
			if err != nil {
				return false, err
			}
			if node.State == appmaster.NodeLive {
				found = node
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if !reached {
		return nil, &flotillaerrors.ErrTimedOut{
			Cluster: name,
			Waiting: fmt.Sprintf("a live %s instance, found %d: [%s]", role, len(seen), strings.Join(seen, ", ")),
			Budget:  timeout,
		}
	}
	log.Infof("Node %s of role %s is %s on %s", found.Name, role, found.State, found.Host)
	return found, nil
}
