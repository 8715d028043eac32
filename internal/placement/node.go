package placement

import (
	"fmt"
	"sync"
	"time"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

// NodeInstance holds one slot per role for a single host. Two instances with the same hostname
// describe the same host.
type NodeInstance struct {
	hostname string

	mu      sync.Mutex
	entries []*NodeEntry
	// Set once the instance has been dropped from its History; a retired instance is never reused.
	retired bool
}

func NewNodeInstance(hostname string, roles int) *NodeInstance {
	return &NodeInstance{
		hostname: hostname,
		entries:  make([]*NodeEntry, roles),
	}
}

func (n *NodeInstance) Hostname() string {
	return n.hostname
}

func (n *NodeInstance) Equal(other *NodeInstance) bool {
	return other != nil && n.hostname == other.hostname
}

func (n *NodeInstance) checkRole(role int) error {
	return checkRole(role, len(n.entries))
}

func checkRole(role int, roles int) error {
	if role < 0 || role >= roles {
		return &flotillaerrors.ErrInvalidArgument{
			Name:    "role",
			Value:   role,
			Message: fmt.Sprintf("role index out of range [0,%d)", roles),
		}
	}
	return nil
}

// Get returns the entry for role, or nil if there is none.
func (n *NodeInstance) Get(role int) (*NodeEntry, error) {
	if err := n.checkRole(role); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.entries[role], nil
}

func (n *NodeInstance) GetOrCreate(role int) (*NodeEntry, error) {
	if err := n.checkRole(role); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, _ := n.getOrCreate(role)
	return entry, nil
}

// getOrCreate must be called with the lock held. It returns false on a retired instance.
func (n *NodeInstance) getOrCreate(role int) (*NodeEntry, bool) {
	if n.retired {
		return nil, false
	}
	entry := n.entries[role]
	if entry == nil {
		entry = &NodeEntry{mu: &n.mu}
		n.entries[role] = entry
	}
	return entry, true
}

// Remove detaches and returns the entry for role, nil if there was none.
func (n *NodeInstance) Remove(role int) (*NodeEntry, error) {
	if err := n.checkRole(role); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	entry := n.entries[role]
	n.entries[role] = nil
	return entry, nil
}

// Set replaces the entry for role with a copy of entry taken under entry's own lock. The caller
// keeps entry; later changes to it are not seen by this instance. A nil entry clears the slot.
func (n *NodeInstance) Set(role int, entry *NodeEntry) error {
	if err := n.checkRole(role); err != nil {
		return err
	}
	status := snapshot(entry)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.set(role, status)
	return nil
}

// snapshot must be called without holding any instance lock.
func snapshot(entry *NodeEntry) *EntryStatus {
	if entry == nil {
		return nil
	}
	status := entry.Status()
	return &status
}

func (n *NodeInstance) set(role int, status *EntryStatus) {
	if status == nil {
		n.entries[role] = nil
		return
	}
	n.entries[role] = entryFrom(&n.mu, *status)
}

// PurgeUnusedEntries drops every slot that has been available since before cutoff and reports
// whether any slot remains.
func (n *NodeInstance) PurgeUnusedEntries(cutoff time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.purgeUnusedEntries(cutoff)
}

func (n *NodeInstance) purgeUnusedEntries(cutoff time.Time) bool {
	active := false
	for i, entry := range n.entries {
		if entry == nil {
			continue
		}
		if entry.notUsedSince(cutoff) {
			n.entries[i] = nil
		} else {
			active = true
		}
	}
	return active
}

// LastUsed is the last use of role on this host; the zero time if the role has no entry.
func (n *NodeInstance) LastUsed(role int) time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	if role < 0 || role >= len(n.entries) || n.entries[role] == nil {
		return time.Time{}
	}
	return n.entries[role].lastUsed
}

// Available reports whether role could be placed on this host without sharing it with a running
// or pending instance of the same role.
func (n *NodeInstance) Available(role int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if role < 0 || role >= len(n.entries) || n.entries[role] == nil {
		return true
	}
	return n.entries[role].available()
}

// Statuses returns a copy of every slot; absent slots are nil.
func (n *NodeInstance) Statuses() []*EntryStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	statuses := make([]*EntryStatus, len(n.entries))
	for i, entry := range n.entries {
		if entry == nil {
			continue
		}
		status := entry.status()
		statuses[i] = &status
	}
	return statuses
}

func (n *NodeInstance) String() string {
	return fmt.Sprintf("NodeInstance{%s}", n.hostname)
}
