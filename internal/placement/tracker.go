package placement

import (
	"sync"
	"time"
)

// Phase is how far an instance of a role has got, as reported by the cluster running it.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseLive
	PhaseEnded
)

// Observation is one instance of a role seen on a host.
type Observation struct {
	Instance string
	Host     string
	Phase    Phase
}

// Tracker turns successive observations of the instances of each role into events on the entries of
// a History. An instance missing from an observation after being seen starting or live is counted as
// failed on the host it was last seen on.
type Tracker struct {
	history *History

	mu   sync.Mutex
	seen []map[string]tracked
}

type tracked struct {
	host     string
	phase    Phase
	lastLive time.Time
}

func NewTracker(history *History) *Tracker {
	seen := make([]map[string]tracked, history.RoleCount())
	for i := range seen {
		seen[i] = map[string]tracked{}
	}
	return &Tracker{
		history: history,
		seen:    seen,
	}
}

// Observe applies a complete observation of the instances of role and returns how many are live.
func (t *Tracker) Observe(role int, observed []Observation) (int, error) {
	if err := checkRole(role, t.history.RoleCount()); err != nil {
		return 0, err
	}
	now := t.history.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	previous := t.seen[role]
	current := make(map[string]tracked, len(observed))
	live := 0
	for _, o := range observed {
		prev, ok := previous[o.Instance]
		delete(previous, o.Instance)
		next, err := t.apply(role, prev, ok, o, now)
		if err != nil {
			return live, err
		}
		current[o.Instance] = next
		if o.Phase == PhaseLive {
			live++
		}
	}
	for _, prev := range previous {
		if err := t.lost(role, prev); err != nil {
			return live, err
		}
	}
	t.seen[role] = current
	return live, nil
}

func (t *Tracker) apply(role int, prev tracked, known bool, o Observation, now time.Time) (tracked, error) {
	if known && prev.host != o.Host {
		if err := t.lost(role, prev); err != nil {
			return prev, err
		}
		known = false
	}
	if !known || prev.phase == PhaseEnded {
		if o.Phase == PhaseEnded {
			return tracked{host: o.Host, phase: PhaseEnded}, nil
		}
		entry, err := t.history.GetOrCreate(o.Host, role)
		if err != nil {
			return prev, err
		}
		entry.OnRequested()
		entry.OnStarting()
		prev = tracked{host: o.Host, phase: PhaseStarting}
	}

	entry, err := t.history.GetOrCreate(o.Host, role)
	if err != nil {
		return prev, err
	}
	switch {
	case prev.phase == PhaseStarting && o.Phase == PhaseLive:
		entry.OnStartCompleted(now)
	case prev.phase == PhaseStarting && o.Phase == PhaseEnded:
		entry.OnStartFailed()
	case prev.phase == PhaseLive && o.Phase == PhaseLive:
		entry.Touch(now)
	case prev.phase == PhaseLive && o.Phase == PhaseEnded:
		entry.OnRelease()
		entry.OnCompleted(prev.lastLive)
	case prev.phase == PhaseLive && o.Phase == PhaseStarting:
		// Restarted in place.
		entry.OnRelease()
		entry.OnCompleted(prev.lastLive)
		entry.OnRequested()
		entry.OnStarting()
	}

	next := tracked{host: o.Host, phase: o.Phase, lastLive: prev.lastLive}
	if o.Phase == PhaseLive {
		next.lastLive = now
	}
	return next, nil
}

// lost ends an instance that was not reported by the cluster. Its entry counts as used until the
// instance was last seen live.
func (t *Tracker) lost(role int, prev tracked) error {
	if prev.phase == PhaseEnded {
		return nil
	}
	entry, err := t.history.GetOrCreate(prev.host, role)
	if err != nil {
		return err
	}
	if prev.phase == PhaseStarting {
		entry.OnStartFailed()
	} else {
		entry.OnFailed(prev.lastLive)
	}
	return nil
}
