package clusterspec

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

func testSpec() *ClusterSpecification {
	spec := New("c1", "generic")
	spec.CreateTime = 1700000000000
	spec.ZkHosts = "zk1,zk2"
	spec.ZkPort = 2181
	spec.ZkPath = "/flotilla_bob_c1"
	spec.SetDesiredInstanceCount("master", 1)
	spec.SetDesiredInstanceCount("worker", 2)
	spec.SetRoleOpt("worker", KeyMemory, "512")
	spec.SetRoleOpt("master", EnvPrefix+"JAVA_HOME", "/usr/lib/jvm")
	spec.Options[OptionTestMode] = "true"
	return spec
}

func TestValidateClusterName(t *testing.T) {
	tests := map[string]struct {
		name  string
		valid bool
	}{
		"simple":          {name: "c1", valid: true},
		"with separators": {name: "my-cluster_2", valid: true},
		"empty":           {name: "", valid: false},
		"upper case":      {name: "Cluster", valid: false},
		"leading digit":   {name: "1cluster", valid: false},
		"path traversal":  {name: "../etc", valid: false},
		"embedded slash":  {name: "a/b", valid: false},
		"embedded space":  {name: "a b", valid: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := ValidateClusterName(tc.name)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				var invalid *flotillaerrors.ErrInvalidArgument
				assert.True(t, errors.As(err, &invalid))
			}
		})
	}
}

func TestRoleOptions(t *testing.T) {
	spec := testSpec()

	count, err := spec.DesiredInstanceCount("worker")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = spec.DesiredInstanceCount("absent")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.Equal(t, "512", spec.GetRoleOpt("worker", KeyMemory, "256"))
	assert.Equal(t, "256", spec.GetRoleOpt("master", KeyMemory, "256"))

	mem, err := spec.GetRoleOptInt("worker", KeyMemory, 0)
	require.NoError(t, err)
	assert.Equal(t, 512, mem)

	assert.Equal(t, map[string]string{"JAVA_HOME": "/usr/lib/jvm"}, spec.RoleEnv("master"))
	assert.True(t, spec.GetOptionBool(OptionTestMode, false))
	assert.False(t, spec.GetOptionBool("missing", false))
	assert.Equal(t, []string{"master", "worker"}, spec.RoleNames())
}

func TestDesiredInstanceCount_Invalid(t *testing.T) {
	spec := testSpec()
	spec.SetRoleOpt("worker", KeyInstances, "many")
	_, err := spec.DesiredInstanceCount("worker")
	var invalid *flotillaerrors.ErrInvalidSpecification
	assert.True(t, errors.As(err, &invalid))
}

func TestClone_IsDeep(t *testing.T) {
	spec := testSpec()
	clone := spec.Clone()
	clone.SetDesiredInstanceCount("worker", 7)
	clone.Options["extra"] = "x"

	count, err := spec.DesiredInstanceCount("worker")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NotContains(t, spec.Options, "extra")
}

func TestParse_RoundTrip(t *testing.T) {
	spec := testSpec()
	data, err := spec.ToJSON()
	require.NoError(t, err)

	parsed, err := Parse(data, "clusters/c1/cluster.json")
	require.NoError(t, err)
	assert.Equal(t, spec, parsed)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"malformed json":  `{"version": "1.0",`,
		"wrong version":   `{"version": "2.0", "name": "c1", "type": "generic", "state": "incomplete"}`,
		"unknown field":   `{"version": "1.0", "name": "c1", "type": "generic", "state": "incomplete", "colour": "red"}`,
		"bad state":       `{"version": "1.0", "name": "c1", "type": "generic", "state": "running"}`,
		"missing name":    `{"version": "1.0", "type": "generic", "state": "submitted"}`,
		"bad role count":  `{"version": "1.0", "name": "c1", "type": "generic", "state": "submitted", "roles": {"worker": {"role.instances": "-1"}}}`,
		"zk port too big": `{"version": "1.0", "name": "c1", "type": "generic", "state": "submitted", "zkPort": 70000}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data), "clusters/c1/cluster.json")
			var invalid *flotillaerrors.ErrInvalidSpecification
			require.True(t, errors.As(err, &invalid), "expected ErrInvalidSpecification, got %v", err)
			assert.Equal(t, "clusters/c1/cluster.json", invalid.Path)
		})
	}
}

func TestLayout(t *testing.T) {
	assert.Equal(t, "clusters/c1/cluster.json", SpecificationPath("c1"))
	assert.Equal(t, "clusters/c1/original", OriginalConfPath("c1"))
	assert.Equal(t, "clusters/c1/generated", GeneratedConfPath("c1"))
	assert.Equal(t, "clusters/c1/data", DataPath("c1"))
	assert.Equal(t, "clusters/c1/tmp/app-1", TmpPath("c1", "app-1"))
}
