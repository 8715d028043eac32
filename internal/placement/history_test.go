package placement

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	roleMaster = 0
	roleWorker = 1
	roleCount  = 2
)

func newTestHistory() (*History, *clocktesting.FakeClock) {
	c := clocktesting.NewFakeClock(baseTime)
	return NewHistory(roleCount, c), c
}

func TestGetOrCreate_ReturnsSameEntryUntilRemoved(t *testing.T) {
	h, _ := newTestHistory()

	created, err := h.GetOrCreate("host1", roleWorker)
	require.NoError(t, err)
	got, err := h.Get("host1", roleWorker)
	require.NoError(t, err)
	assert.Same(t, created, got)

	again, err := h.GetOrCreate("host1", roleWorker)
	require.NoError(t, err)
	assert.Same(t, created, again)

	removed, err := h.Remove("host1", roleWorker)
	require.NoError(t, err)
	assert.Same(t, created, removed)

	got, err = h.Get("host1", roleWorker)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSet_ReplacesEntry(t *testing.T) {
	h, _ := newTestHistory()
	original, err := h.GetOrCreate("host1", roleMaster)
	require.NoError(t, err)

	replacement := NewNodeEntry(2, baseTime)
	require.NoError(t, h.Set("host1", roleMaster, replacement))

	got, err := h.Get("host1", roleMaster)
	require.NoError(t, err)
	assert.NotSame(t, original, got)
	assert.NotSame(t, replacement, got)
	assert.Equal(t, replacement.Status(), got.Status())

	replacement.OnRequested()
	replacement.Touch(baseTime.Add(time.Hour))
	assert.Equal(t, 0, got.Status().Requested)
	assert.Equal(t, baseTime, got.LastUsed())
}

func TestSet_CurrentEntry(t *testing.T) {
	h, _ := newTestHistory()
	entry, err := h.GetOrCreate("host1", roleWorker)
	require.NoError(t, err)
	entry.OnRequested()

	require.NoError(t, h.Set("host1", roleWorker, entry))

	got, err := h.Get("host1", roleWorker)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Status().Requested)
}

func TestSet_ConcurrentWithCallerUpdates(t *testing.T) {
	h, _ := newTestHistory()
	entry := NewNodeEntry(1, baseTime)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
				entry.Touch(baseTime.Add(time.Duration(i) * time.Second))
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		require.NoError(t, h.Set("host1", roleWorker, entry))
		stored, err := h.Get("host1", roleWorker)
		require.NoError(t, err)
		stored.Touch(baseTime)
	}
	close(done)
	wg.Wait()

	stored, err := h.Get("host1", roleWorker)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Active())
	assert.Equal(t, baseTime, stored.LastUsed())
}

func TestRoleOutOfRange(t *testing.T) {
	h, _ := newTestHistory()
	tests := map[string]func() error{
		"get": func() error {
			_, err := h.Get("host1", roleCount)
			return err
		},
		"getOrCreate": func() error {
			_, err := h.GetOrCreate("host1", -1)
			return err
		},
		"remove": func() error {
			_, err := h.Remove("host1", roleCount+3)
			return err
		},
		"set": func() error {
			return h.Set("host1", roleCount, NewNodeEntry(0, baseTime))
		},
	}
	for name, call := range tests {
		t.Run(name, func(t *testing.T) {
			err := call()
			var invalid *flotillaerrors.ErrInvalidArgument
			assert.True(t, errors.As(err, &invalid), "expected ErrInvalidArgument, got %v", err)
		})
	}
	assert.Empty(t, h.Hosts())
}

func TestGet_UnknownHost(t *testing.T) {
	h, _ := newTestHistory()
	entry, err := h.Get("nowhere", roleMaster)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestPurgeUnusedEntries(t *testing.T) {
	tests := map[string]struct {
		setup          func(h *History)
		cutoff         time.Time
		expectedActive bool
		expectedHosts  []string
	}{
		"stale idle entry is dropped and host forgotten": {
			setup: func(h *History) {
				require.NoError(t, h.Set("host1", roleWorker, NewNodeEntry(0, baseTime)))
			},
			cutoff:         baseTime.Add(time.Minute),
			expectedActive: false,
			expectedHosts:  nil,
		},
		"recent idle entry is kept": {
			setup: func(h *History) {
				require.NoError(t, h.Set("host1", roleWorker, NewNodeEntry(0, baseTime.Add(time.Hour))))
			},
			cutoff:         baseTime.Add(time.Minute),
			expectedActive: true,
			expectedHosts:  []string{"host1"},
		},
		"entry used exactly at cutoff is kept": {
			setup: func(h *History) {
				require.NoError(t, h.Set("host1", roleWorker, NewNodeEntry(0, baseTime)))
			},
			cutoff:         baseTime,
			expectedActive: true,
			expectedHosts:  []string{"host1"},
		},
		"stale entry with live instances is kept": {
			setup: func(h *History) {
				require.NoError(t, h.Set("host1", roleMaster, NewNodeEntry(1, baseTime)))
			},
			cutoff:         baseTime.Add(time.Minute),
			expectedActive: true,
			expectedHosts:  []string{"host1"},
		},
		"one stale slot and one fresh slot": {
			setup: func(h *History) {
				require.NoError(t, h.Set("host1", roleMaster, NewNodeEntry(0, baseTime)))
				require.NoError(t, h.Set("host1", roleWorker, NewNodeEntry(0, baseTime.Add(time.Hour))))
			},
			cutoff:         baseTime.Add(time.Minute),
			expectedActive: true,
			expectedHosts:  []string{"host1"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			h, _ := newTestHistory()
			tc.setup(h)

			first := h.PurgeUnusedEntries("host1", tc.cutoff)
			second := h.PurgeUnusedEntries("host1", tc.cutoff)
			assert.Equal(t, tc.expectedActive, first)
			assert.Equal(t, first, second)
			assert.Equal(t, tc.expectedHosts, h.Hosts())

			for role := 0; role < roleCount; role++ {
				entry, err := h.Get("host1", role)
				require.NoError(t, err)
				if entry != nil {
					assert.False(t, entry.NotUsedSince(tc.cutoff))
				}
			}
		})
	}
}

func TestPurgeUnusedEntries_RetiredHostIsRecreated(t *testing.T) {
	h, _ := newTestHistory()
	old, err := h.GetOrCreate("host1", roleWorker)
	require.NoError(t, err)
	retiredNode := h.Node("host1")

	assert.False(t, h.PurgeUnusedEntries("host1", baseTime.Add(time.Second)))
	assert.Nil(t, h.Node("host1"))

	fresh, err := h.GetOrCreate("host1", roleWorker)
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)
	assert.NotSame(t, retiredNode, h.Node("host1"))
}

func TestNodeEntry_Lifecycle(t *testing.T) {
	h, c := newTestHistory()
	entry, err := h.GetOrCreate("host1", roleWorker)
	require.NoError(t, err)
	assert.True(t, entry.Available())

	entry.OnRequested()
	assert.False(t, entry.Available())
	entry.OnStarting()
	assert.False(t, entry.Available())

	c.Step(time.Minute)
	entry.OnStartCompleted(h.Now())
	assert.Equal(t, 1, entry.Active())
	assert.Equal(t, baseTime.Add(time.Minute), entry.LastUsed())

	assert.True(t, entry.OnRelease())
	assert.False(t, entry.OnRelease())
	assert.Equal(t, 0, entry.Active())

	c.Step(time.Minute)
	entry.OnCompleted(h.Now())
	assert.True(t, entry.Available())
	assert.Equal(t, EntryStatus{Completed: 1, LastUsed: baseTime.Add(2 * time.Minute)}, entry.Status())
}

func TestHistory_ConcurrentHostsWithReaper(t *testing.T) {
	h, c := newTestHistory()
	reaper := NewReaper(h, time.Minute, time.Minute, 4, c)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		host := fmt.Sprintf("host%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				entry, err := h.GetOrCreate(host, j%roleCount)
				if err != nil {
					t.Error(err)
					return
				}
				entry.OnStarting()
				entry.OnStartCompleted(baseTime)
				entry.OnCompleted(baseTime)
				h.PurgeUnusedEntries(host, baseTime.Add(time.Second))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			_, _ = reaper.Sweep(context.Background())
		}
	}()
	wg.Wait()

	c.Step(time.Hour)
	_, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.Hosts())
}
