package flotillactl

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/G-Research/flotilla/internal/appmaster"
	"github.com/G-Research/flotilla/internal/broker"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/lifecycle"
	"github.com/G-Research/flotilla/internal/lifecycle/configuration"
	"github.com/G-Research/flotilla/internal/placement"
	"github.com/G-Research/flotilla/internal/provider"
	"github.com/G-Research/flotilla/internal/store"
)

// testApp returns an App whose manager uses an in-memory broker and coordinator.
func testApp(t *testing.T) (*App, *bytes.Buffer, *broker.InMemory) {
	clock := clocktesting.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/conf/site.xml", []byte("<configuration/>"), 0o644))

	config := configuration.Default()
	config.User = "bob"
	specs := store.NewSpecificationStore(store.NewFileStore(fs, "/var/lib/flotilla"))
	b := broker.NewInMemory(clock).WithEndpoint("localhost", 7001)
	coordinator := appmaster.NewCoordinator(specs.Load, nil, clock)

	buf := new(bytes.Buffer)
	app := &App{
		Params:  &Params{Config: config},
		Out:     buf,
		Fs:      fs,
		Clock:   clock,
		Manager: lifecycle.New(config, specs, fs, b, coordinator.Connector(), provider.NewGeneric(), clock),
	}
	return app, buf, b
}

func createRunning(t *testing.T, app *App) {
	require.NoError(t, app.Create(lifecycle.CreateRequest{
		Name:            "c1",
		ConfDir:         "/conf",
		ApplicationHome: "/opt/flotilla",
		ZkHosts:         "zk1",
		RoleCounts:      map[string]int{provider.RoleMaster: 1, provider.RoleWorker: 2},
		Wait:            time.Minute,
	}))
	// The coordinator deploys from the persisted specification on first contact.
	require.NoError(t, app.Status("c1", "json"))
}

func TestApp_CreateAndList(t *testing.T) {
	app, buf, _ := testApp(t)
	createRunning(t, app)
	assert.Contains(t, buf.String(), "Created cluster c1 (RUNNING)")

	buf.Reset()
	require.NoError(t, app.List("", "bob"))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "NAME")
	assert.Contains(t, string(lines[1]), "localhost:7001")

	err := app.List("c2", "bob")
	assert.Equal(t, flotillaerrors.ExitUnknownCluster, flotillaerrors.ExitCodeFromError(err))
}

func TestApp_StatusOutputs(t *testing.T) {
	app, buf, _ := testApp(t)
	createRunning(t, app)

	tests := map[string]struct {
		output   string
		expected string
	}{
		"json": {output: "json", expected: `"name": "c1"`},
		"yaml": {output: "yaml", expected: "name: c1\n"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			buf.Reset()
			require.NoError(t, app.Status("c1", tc.output))
			assert.Contains(t, buf.String(), tc.expected)
		})
	}

	err := app.Status("c1", "toml")
	assert.Equal(t, flotillaerrors.ExitBadArguments, flotillaerrors.ExitCodeFromError(err))
}

func TestApp_GetConfToFile(t *testing.T) {
	app, _, _ := testApp(t)
	createRunning(t, app)

	require.NoError(t, app.GetConf("c1", "properties", "/tmp/c1.properties"))
	data, err := afero.ReadFile(app.Fs, "/tmp/c1.properties")
	require.NoError(t, err)
	assert.Contains(t, string(data), "zookeeper.quorum = zk1\n")
}

func TestApp_FlexFreezeThaw(t *testing.T) {
	app, buf, b := testApp(t)
	createRunning(t, app)

	buf.Reset()
	require.NoError(t, app.Flex("c1", map[string]int{provider.RoleWorker: 4}, true))
	assert.Equal(t, "Resized cluster c1\n", buf.String())

	buf.Reset()
	require.NoError(t, app.Flex("c1", map[string]int{provider.RoleWorker: 4}, true))
	assert.Contains(t, buf.String(), "No-op")

	// Without a stop handler nothing finishes the instance, so the wait times out.
	err := app.Freeze("c1", 3*time.Second)
	assert.Equal(t, flotillaerrors.ExitTimedOut, flotillaerrors.ExitCodeFromError(err))

	for _, id := range b.Ids() {
		require.NoError(t, b.SetState(id, broker.StateFinished, broker.FinalStatusSucceeded))
	}
	buf.Reset()
	require.NoError(t, app.Freeze("c1", 0))
	require.NoError(t, app.Thaw("c1", time.Minute))
	assert.Contains(t, buf.String(), "Thawed cluster c1 (RUNNING)")

	require.NoError(t, app.Exists("c1"))
}

func TestApp_ObserveOnce(t *testing.T) {
	app, buf, _ := testApp(t)
	createRunning(t, app)

	buf.Reset()
	require.NoError(t, app.ObserveOnce("c1", placement.Spread))
	assert.Contains(t, buf.String(), "c1: 3 live nodes on 2 hosts")
	assert.Contains(t, buf.String(), "worker (spread): host1 host0")
}

func TestApp_WaitForRole(t *testing.T) {
	app, buf, _ := testApp(t)
	createRunning(t, app)

	buf.Reset()
	require.NoError(t, app.WaitForRole("c1", provider.RoleWorker, time.Minute))
	assert.Equal(t, "Node c1-worker-0 of role worker is LIVE on host0\n", buf.String())
}

func TestApp_Close(t *testing.T) {
	app, _, _ := testApp(t)
	assert.NoError(t, app.Close())
}

func TestExtractClientConfig(t *testing.T) {
	tests := map[string]struct {
		settings map[string]interface{}
		valid    bool
	}{
		"defaults": {
			settings: map[string]interface{}{"user": "bob"},
			valid:    true,
		},
		"redis store": {
			settings: map[string]interface{}{
				"user":              "bob",
				"store.type":        "redis",
				"store.redis.addrs": []string{"localhost:6379"},
			},
			valid: true,
		},
		"redis store without addresses": {
			settings: map[string]interface{}{"user": "bob", "store.type": "redis"},
			valid:    false,
		},
		"unknown store": {
			settings: map[string]interface{}{"user": "bob", "store.type": "etcd"},
			valid:    false,
		},
		"no accept timeout": {
			settings: map[string]interface{}{"user": "bob", "acceptTimeout": "0s"},
			valid:    false,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			for key, value := range tc.settings {
				viper.Set(key, value)
			}

			config, err := ExtractClientConfig()
			if !tc.valid {
				assert.Equal(t, flotillaerrors.ExitBadArguments, flotillaerrors.ExitCodeFromError(err), "%v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "bob", config.User)
			assert.Equal(t, 60*time.Second, config.AcceptTimeout)
		})
	}
}

func TestObserve_StopsWhenCancelled(t *testing.T) {
	app, _, _ := testApp(t)
	createRunning(t, app)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, app.Observe(ctx, "c1", placement.Affinity, 0))
}
