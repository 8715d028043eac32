// Package placement tracks, per host and per role, how instances have been placed over time. The
// history biases future placement by recency of use and forgets hosts that have been idle for long
// enough.
package placement

import (
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// History is keyed by hostname. There is no lock spanning hosts: each NodeInstance guards its own
// slots, so placements on different hosts never contend.
type History struct {
	roles int
	clock clock.Clock
	// hostname -> *NodeInstance
	nodes sync.Map
}

func NewHistory(roles int, clock clock.Clock) *History {
	return &History{
		roles: roles,
		clock: clock,
	}
}

func (h *History) RoleCount() int {
	return h.roles
}

func (h *History) Now() time.Time {
	return h.clock.Now()
}

func (h *History) load(host string) *NodeInstance {
	if v, ok := h.nodes.Load(host); ok {
		return v.(*NodeInstance)
	}
	return nil
}

func (h *History) loadOrStore(host string) *NodeInstance {
	if node := h.load(host); node != nil {
		return node
	}
	v, _ := h.nodes.LoadOrStore(host, NewNodeInstance(host, h.roles))
	return v.(*NodeInstance)
}

// Node returns the instance for host, or nil if the host is unknown.
func (h *History) Node(host string) *NodeInstance {
	return h.load(host)
}

// Get returns the entry for (host, role), nil if absent.
func (h *History) Get(host string, role int) (*NodeEntry, error) {
	if err := checkRole(role, h.roles); err != nil {
		return nil, err
	}
	node := h.load(host)
	if node == nil {
		return nil, nil
	}
	return node.Get(role)
}

// GetOrCreate returns the entry for (host, role), allocating the host and the entry as needed.
func (h *History) GetOrCreate(host string, role int) (*NodeEntry, error) {
	if err := checkRole(role, h.roles); err != nil {
		return nil, err
	}
	for {
		node := h.loadOrStore(host)
		node.mu.Lock()
		entry, ok := node.getOrCreate(role)
		node.mu.Unlock()
		if ok {
			return entry, nil
		}
		// Lost a race with the reaper; the retired instance is already gone from the map.
	}
}

// Remove detaches and returns the entry for (host, role), nil if absent.
func (h *History) Remove(host string, role int) (*NodeEntry, error) {
	if err := checkRole(role, h.roles); err != nil {
		return nil, err
	}
	node := h.load(host)
	if node == nil {
		return nil, nil
	}
	return node.Remove(role)
}

// Set replaces the entry for (host, role) with a copy of entry; see NodeInstance.Set.
func (h *History) Set(host string, role int, entry *NodeEntry) error {
	if err := checkRole(role, h.roles); err != nil {
		return err
	}
	status := snapshot(entry)
	for {
		node := h.loadOrStore(host)
		node.mu.Lock()
		if !node.retired {
			node.set(role, status)
			node.mu.Unlock()
			return nil
		}
		node.mu.Unlock()
	}
}

// PurgeUnusedEntries drops every entry on host that has been available since before cutoff and
// reports whether any entry remains. A host left with no entries is forgotten.
func (h *History) PurgeUnusedEntries(host string, cutoff time.Time) bool {
	node := h.load(host)
	if node == nil {
		return false
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	if node.retired {
		return false
	}
	active := node.purgeUnusedEntries(cutoff)
	if !active {
		node.retired = true
		h.nodes.Delete(host)
	}
	return active
}

// Hosts returns the known hostnames in lexical order.
func (h *History) Hosts() []string {
	var hosts []string
	h.nodes.Range(func(key, _ interface{}) bool {
		hosts = append(hosts, key.(string))
		return true
	})
	sort.Strings(hosts)
	return hosts
}

// Nodes returns the known node instances ordered by hostname.
func (h *History) Nodes() []*NodeInstance {
	hosts := h.Hosts()
	nodes := make([]*NodeInstance, 0, len(hosts))
	for _, host := range hosts {
		if node := h.load(host); node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes
}
