package placement

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

func TestTracker_Transitions(t *testing.T) {
	later := baseTime.Add(time.Minute)
	tests := map[string]struct {
		observations [][]Observation
		expected     EntryStatus
		live         int
	}{
		"first seen starting": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseStarting}},
			},
			expected: EntryStatus{Starting: 1},
		},
		"first seen live": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseLive}},
			},
			expected: EntryStatus{Live: 1, LastUsed: baseTime},
			live:     1,
		},
		"starting then live": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseStarting}},
				{{Instance: "w0", Host: "host1", Phase: PhaseLive}},
			},
			expected: EntryStatus{Live: 1, LastUsed: later},
			live:     1,
		},
		"live stays live": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseLive}},
				{{Instance: "w0", Host: "host1", Phase: PhaseLive}},
			},
			expected: EntryStatus{Live: 1, LastUsed: later},
			live:     1,
		},
		"starting then ended": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseStarting}},
				{{Instance: "w0", Host: "host1", Phase: PhaseEnded}},
			},
			expected: EntryStatus{StartFailed: 1},
		},
		"starting then missing": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseStarting}},
				{},
			},
			expected: EntryStatus{StartFailed: 1},
		},
		"live then ended": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseLive}},
				{{Instance: "w0", Host: "host1", Phase: PhaseEnded}},
			},
			expected: EntryStatus{Completed: 1, LastUsed: baseTime},
		},
		"live then missing": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseLive}},
				{},
			},
			expected: EntryStatus{Failed: 1, LastUsed: baseTime},
		},
		"live then restarting": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseLive}},
				{{Instance: "w0", Host: "host1", Phase: PhaseStarting}},
			},
			expected: EntryStatus{Starting: 1, Completed: 1, LastUsed: baseTime},
		},
		"ended then started again": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseLive}},
				{{Instance: "w0", Host: "host1", Phase: PhaseEnded}},
				{{Instance: "w0", Host: "host1", Phase: PhaseLive}},
			},
			expected: EntryStatus{Live: 1, Completed: 1, LastUsed: later.Add(time.Minute)},
			live:     1,
		},
		"first seen ended": {
			observations: [][]Observation{
				{{Instance: "w0", Host: "host1", Phase: PhaseEnded}},
			},
		},
		"two instances on one host": {
			observations: [][]Observation{
				{
					{Instance: "w0", Host: "host1", Phase: PhaseLive},
					{Instance: "w1", Host: "host1", Phase: PhaseStarting},
				},
			},
			expected: EntryStatus{Starting: 1, Live: 1, LastUsed: baseTime},
			live:     1,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			h, clock := newTestHistory()
			tracker := NewTracker(h)
			live := 0
			for i, observation := range tc.observations {
				if i > 0 {
					clock.Step(time.Minute)
				}
				var err error
				live, err = tracker.Observe(roleWorker, observation)
				require.NoError(t, err)
			}
			assert.Equal(t, tc.live, live)

			entry, err := h.Get("host1", roleWorker)
			require.NoError(t, err)
			var status EntryStatus
			if entry != nil {
				status = entry.Status()
			}
			if diff := cmp.Diff(tc.expected, status); diff != "" {
				t.Errorf("unexpected entry after %d observations (-want +got):\n%s", len(tc.observations), diff)
			}
		})
	}
}

func TestTracker_MovedInstanceFailsOnOldHost(t *testing.T) {
	h, clock := newTestHistory()
	tracker := NewTracker(h)
	_, err := tracker.Observe(roleWorker, []Observation{{Instance: "w0", Host: "host1", Phase: PhaseLive}})
	require.NoError(t, err)

	clock.Step(time.Minute)
	live, err := tracker.Observe(roleWorker, []Observation{{Instance: "w0", Host: "host2", Phase: PhaseLive}})
	require.NoError(t, err)
	assert.Equal(t, 1, live)

	old, err := h.Get("host1", roleWorker)
	require.NoError(t, err)
	assert.Equal(t, EntryStatus{Failed: 1, LastUsed: baseTime}, old.Status())
	moved, err := h.Get("host2", roleWorker)
	require.NoError(t, err)
	assert.Equal(t, EntryStatus{Live: 1, LastUsed: baseTime.Add(time.Minute)}, moved.Status())
}

func TestTracker_RolesAreIndependent(t *testing.T) {
	h, _ := newTestHistory()
	tracker := NewTracker(h)
	_, err := tracker.Observe(roleMaster, []Observation{{Instance: "m0", Host: "host1", Phase: PhaseLive}})
	require.NoError(t, err)
	_, err = tracker.Observe(roleWorker, nil)
	require.NoError(t, err)

	master, err := h.Get("host1", roleMaster)
	require.NoError(t, err)
	assert.Equal(t, 1, master.Active())
	assert.Equal(t, 0, master.Status().Failed)
}

func TestTracker_RoleOutOfRange(t *testing.T) {
	h, _ := newTestHistory()
	_, err := NewTracker(h).Observe(roleCount, nil)
	var invalid *flotillaerrors.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)
}
