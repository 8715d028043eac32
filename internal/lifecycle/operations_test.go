package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/flotilla/internal/appmaster"
	"github.com/G-Research/flotilla/internal/broker"
	"github.com/G-Research/flotilla/internal/clusterspec"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/placement"
	"github.com/G-Research/flotilla/internal/provider"
)

func TestFreezeThaw(t *testing.T) {
	f := newFixture(t)
	first := f.createRunning(t, "c1", 2)

	require.NoError(t, f.manager.Freeze("c1", time.Minute))
	assert.Equal(t, broker.StateFinished, f.state(t, first.InstanceId))

	// Freezing a frozen cluster is not an error.
	require.NoError(t, f.manager.Freeze("c1", time.Minute))
	require.NoError(t, f.manager.Freeze("c2", time.Minute))

	second, err := f.manager.Thaw("c1", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, first.InstanceId, second.InstanceId)
	assert.Equal(t, broker.StateRunning, second.Report.State)

	_, err = f.manager.Thaw("c1", time.Minute)
	var badState *flotillaerrors.ErrBadClusterState
	require.ErrorAs(t, err, &badState)
	assert.Contains(t, badState.Message, msgClusterRunning)
}

// ignoringStop accepts a stop request without ever finishing the instance.
type ignoringStop struct {
	appmaster.Client
}

func (ignoringStop) StopCluster(context.Context, string) error {
	return nil
}

func (ignoringStop) Close() error {
	return nil
}

// An expired wait is reported as timed out, not as success, although the stop request was delivered.
func TestFreeze_ExpiredWaitIsTimedOutNotSuccess(t *testing.T) {
	f := newFixture(t)
	result := f.createRunning(t, "c1", 1)
	f.manager.connect = func(string, string, int) (appmaster.Client, error) {
		return ignoringStop{}, nil
	}

	err := f.manager.Freeze("c1", 10*time.Second)
	assert.Equal(t, flotillaerrors.ExitTimedOut, flotillaerrors.ExitCodeFromError(err), "%v", err)
	var timedOut *flotillaerrors.ErrTimedOut
	require.ErrorAs(t, err, &timedOut)
	assert.Equal(t, 10*time.Second, timedOut.Budget)
	assert.Equal(t, broker.StateRunning, f.state(t, result.InstanceId))

	// Without a wait the same freeze only delivers the stop request.
	require.NoError(t, f.manager.Freeze("c1", 0))
}

func TestThaw_UnknownCluster(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Thaw("c1", 0)
	assert.Equal(t, flotillaerrors.ExitUnknownCluster, flotillaerrors.ExitCodeFromError(err))
}

func TestFlex(t *testing.T) {
	f := newFixture(t)
	f.createRunning(t, "c1", 2)
	before := testutil.ToFloat64(operationsMetric.WithLabelValues("flex", "success"))

	result, err := f.manager.Flex("c1", map[string]int{provider.RoleWorker: 5}, true)
	require.NoError(t, err)
	assert.Equal(t, &FlexResult{Running: true, Changed: true}, result)

	spec, err := f.specs.Load("c1")
	require.NoError(t, err)
	workers, err := spec.DesiredInstanceCount(provider.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, 5, workers)

	result, err = f.manager.Flex("c1", map[string]int{provider.RoleWorker: 5}, true)
	require.NoError(t, err)
	assert.Equal(t, &FlexResult{Running: true, Changed: false}, result)

	assert.Equal(t, before+2, testutil.ToFloat64(operationsMetric.WithLabelValues("flex", "success")))
}

func TestFlex_WithoutPersist(t *testing.T) {
	f := newFixture(t)
	f.createRunning(t, "c1", 2)

	result, err := f.manager.Flex("c1", map[string]int{provider.RoleWorker: 1}, false)
	require.NoError(t, err)
	assert.True(t, result.Changed)

	spec, err := f.specs.Load("c1")
	require.NoError(t, err)
	workers, err := spec.DesiredInstanceCount(provider.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, 2, workers)
}

func TestFlex_NotRunning(t *testing.T) {
	f := newFixture(t)
	f.createRunning(t, "c1", 2)
	require.NoError(t, f.manager.Freeze("c1", time.Minute))

	result, err := f.manager.Flex("c1", map[string]int{provider.RoleWorker: 3}, true)
	require.NoError(t, err)
	assert.Equal(t, &FlexResult{}, result)

	spec, err := f.specs.Load("c1")
	require.NoError(t, err)
	workers, err := spec.DesiredInstanceCount(provider.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, 3, workers)
}

func TestFlex_Invalid(t *testing.T) {
	tests := map[string]struct {
		counts   map[string]int
		expected flotillaerrors.ExitCode
	}{
		"negative count": {
			counts:   map[string]int{provider.RoleWorker: -1},
			expected: flotillaerrors.ExitBadArguments,
		},
		"unknown role": {
			counts:   map[string]int{"gateway": 1},
			expected: flotillaerrors.ExitBadArguments,
		},
		"two masters": {
			counts:   map[string]int{provider.RoleMaster: 2},
			expected: flotillaerrors.ExitBadArguments,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.createRunning(t, "c1", 2)

			_, err := f.manager.Flex("c1", tc.counts, true)
			assert.Equal(t, tc.expected, flotillaerrors.ExitCodeFromError(err), "%v", err)
		})
	}
}

func TestFlex_UnknownCluster(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Flex("c1", map[string]int{provider.RoleWorker: 1}, true)
	assert.Equal(t, flotillaerrors.ExitUnknownCluster, flotillaerrors.ExitCodeFromError(err))
}

func TestListAndExists(t *testing.T) {
	f := newFixture(t)
	terminal := f.broker.Inject(broker.InstanceReport{Name: "c1", User: "bob", Type: "flotilla", State: broker.StateFinished})
	live := f.createRunning(t, "c1", 1)
	f.broker.Inject(broker.InstanceReport{Name: "c9", User: "alice", Type: "flotilla", State: broker.StateRunning})
	f.broker.Inject(broker.InstanceReport{Name: "other", User: "bob", Type: "other", State: broker.StateRunning})

	all, err := f.manager.List("", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := f.manager.List("", "bob")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	named, err := f.manager.List("c1", "bob")
	require.NoError(t, err)
	require.Len(t, named, 1)
	assert.Equal(t, live.InstanceId, named[0].Id)

	_, err = f.manager.List("c2", "bob")
	assert.Equal(t, flotillaerrors.ExitUnknownCluster, flotillaerrors.ExitCodeFromError(err))

	require.NoError(t, f.manager.Exists("c1"))
	assert.Equal(t, flotillaerrors.ExitUnknownCluster, flotillaerrors.ExitCodeFromError(f.manager.Exists("c9")))

	require.NoError(t, f.broker.Kill(context.Background(), live.InstanceId))
	assert.Equal(t, flotillaerrors.ExitUnknownCluster, flotillaerrors.ExitCodeFromError(f.manager.Exists("c1")))

	named, err = f.manager.List("c1", "bob")
	require.NoError(t, err)
	require.Len(t, named, 1)
	assert.Equal(t, live.InstanceId, named[0].Id, "latest terminal instance wins over %s", terminal)
}

func TestStatusAndGetConf(t *testing.T) {
	f := newFixture(t)
	f.createRunning(t, "c1", 2)

	status, err := f.manager.Status("c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", status.Name)
	assert.Equal(t, "zk1,zk2", status.ClientProperties["zookeeper.quorum"])

	tests := map[string]struct {
		format   string
		expected string
	}{
		"xml":        {format: "xml", expected: "<name>zookeeper.quorum</name>\n    <value>zk1,zk2</value>"},
		"properties": {format: "properties", expected: "zookeeper.quorum = zk1,zk2\n"},
		"yaml":       {format: "YAML", expected: "zookeeper.quorum: zk1,zk2\n"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			conf, err := f.manager.GetConf("c1", tc.format)
			require.NoError(t, err)
			assert.Contains(t, string(conf), tc.expected)
		})
	}

	_, err = f.manager.GetConf("c1", "json")
	assert.Equal(t, flotillaerrors.ExitBadArguments, flotillaerrors.ExitCodeFromError(err))
}

func TestStatus_NotConnectable(t *testing.T) {
	f := newFixture(t)
	// Accepted instances have no coordinator address yet.
	_, err := f.manager.Create(createRequest("c1", 2))
	require.NoError(t, err)

	_, err = f.manager.Status("c1")
	assert.Equal(t, flotillaerrors.ExitConnectivityProblem, flotillaerrors.ExitCodeFromError(err), "%v", err)

	_, err = f.manager.Status("c2")
	assert.Equal(t, flotillaerrors.ExitUnknownCluster, flotillaerrors.ExitCodeFromError(err))
}

func TestObservePlacementAndRankHosts(t *testing.T) {
	f := newFixture(t)
	f.createRunning(t, "c1", 2)

	live, err := f.manager.ObservePlacement("c1")
	require.NoError(t, err)
	assert.Equal(t, 3, live)
	assert.Equal(t, []string{"host0", "host1"}, f.manager.History().Hosts())

	_, err = f.manager.Flex("c1", map[string]int{provider.RoleWorker: 1}, false)
	require.NoError(t, err)
	f.clock.Step(time.Minute)
	live, err = f.manager.ObservePlacement("c1")
	require.NoError(t, err)
	assert.Equal(t, 2, live)

	workerKey, _ := provider.RoleKey(f.manager.Provider(), provider.RoleWorker)
	entry, err := f.manager.History().Get("host1", workerKey)
	require.NoError(t, err)
	assert.Equal(t, placement.EntryStatus{Completed: 1, LastUsed: testStart}, entry.Status())
	kept, err := f.manager.History().Get("host0", workerKey)
	require.NoError(t, err)
	assert.Equal(t, placement.EntryStatus{Live: 1, LastUsed: testStart.Add(time.Minute)}, kept.Status())

	affinity, err := f.manager.RankHosts(provider.RoleWorker, placement.Affinity)
	require.NoError(t, err)
	assert.Equal(t, []string{"host0", "host1"}, affinity)

	spread, err := f.manager.RankHosts(provider.RoleWorker, placement.Spread)
	require.NoError(t, err)
	assert.Equal(t, []string{"host1", "host0"}, spread)

	_, err = f.manager.RankHosts(provider.RoleWorker, placement.PolicyUnset)
	assert.Equal(t, flotillaerrors.ExitBadArguments, flotillaerrors.ExitCodeFromError(err))
	_, err = f.manager.RankHosts("gateway", placement.Affinity)
	assert.Equal(t, flotillaerrors.ExitBadArguments, flotillaerrors.ExitCodeFromError(err))
}

func TestWaitForRoleInstanceLive(t *testing.T) {
	f := newFixture(t)
	f.createRunning(t, "c1", 0)

	node, err := f.manager.WaitForRoleInstanceLive("c1", provider.RoleMaster, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "c1-master-0", node.Name)

	start := f.clock.Now()
	_, err = f.manager.WaitForRoleInstanceLive("c1", provider.RoleWorker, 5*time.Second)
	var timedOut *flotillaerrors.ErrTimedOut
	require.ErrorAs(t, err, &timedOut)
	assert.Contains(t, timedOut.Waiting, "found 0")
	assert.Equal(t, start.Add(5*time.Second), f.clock.Now())
}

func TestWaitForRoleInstanceLive_IgnoresDestroyedNodes(t *testing.T) {
	f := newFixture(t)
	f.createRunning(t, "c1", 2)

	node, err := f.manager.WaitForRoleInstanceLive("c1", provider.RoleWorker, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "c1-worker-0", node.Name)

	_, err = f.manager.Flex("c1", map[string]int{provider.RoleWorker: 0}, false)
	require.NoError(t, err)
	_, err = f.manager.WaitForRoleInstanceLive("c1", provider.RoleWorker, 5*time.Second)
	var timedOut *flotillaerrors.ErrTimedOut
	require.ErrorAs(t, err, &timedOut)
	assert.Contains(t, timedOut.Waiting, "found 2")
}

func TestListDefined(t *testing.T) {
	f := newFixture(t)
	running := f.createRunning(t, "c1", 1)
	frozen := f.createRunning(t, "c2", 1)
	require.NoError(t, f.manager.Freeze("c2", time.Minute))
	require.NoError(t, f.specs.Update("c0", clusterspec.New("c0", provider.GenericName)))

	clusters, err := f.manager.ListDefined("bob")
	require.NoError(t, err)
	require.Len(t, clusters, 3)
	assert.Equal(t, "c0", clusters[0].Name)
	assert.Nil(t, clusters[0].Instance)
	assert.Equal(t, "c1", clusters[1].Name)
	assert.Equal(t, running.InstanceId, clusters[1].Instance.Id)
	assert.Equal(t, broker.StateRunning, clusters[1].Instance.State)
	assert.Equal(t, "c2", clusters[2].Name)
	assert.Equal(t, frozen.InstanceId, clusters[2].Instance.Id)
	assert.Equal(t, broker.StateFinished, clusters[2].Instance.State)

	clusters, err = f.manager.ListDefined("alice")
	require.NoError(t, err)
	require.Len(t, clusters, 3)
	for _, c := range clusters {
		assert.Nil(t, c.Instance, c.Name)
	}
}
