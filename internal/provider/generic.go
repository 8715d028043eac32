package provider

import (
	"strconv"

	"github.com/G-Research/flotilla/internal/broker"
	"github.com/G-Research/flotilla/internal/clusterspec"
)

const (
	GenericName = "generic"

	RoleMaster = "master"
	RoleWorker = "worker"

	DefaultMemoryMb     = 256
	DefaultVirtualCores = 1
)

// Generic is a provider for a service made of at most one master and any number of workers.
type Generic struct{}

func NewGeneric() *Generic {
	return &Generic{}
}

func (g *Generic) Name() string {
	return GenericName
}

func (g *Generic) Roles() []Role {
	return []Role{
		{Name: RoleMaster, Key: 0},
		{Name: RoleWorker, Key: 1},
	}
}

func (g *Generic) DefaultClusterOptions() map[string]string {
	return map[string]string{
		clusterspec.OptionTestMode: "false",
	}
}

func (g *Generic) DefaultRole(role string) map[string]string {
	return map[string]string{
		clusterspec.KeyInstances: "0",
		clusterspec.KeyMemory:    strconv.Itoa(DefaultMemoryMb),
		clusterspec.KeyVCores:    strconv.Itoa(DefaultVirtualCores),
		clusterspec.KeyHeap:      strconv.Itoa(DefaultMemoryMb),
	}
}

func (g *Generic) ValidateRoleCounts(spec *clusterspec.ClusterSpecification) error {
	return validateCounts(g, spec, map[string]int{RoleMaster: 1})
}

func (g *Generic) PrepareLaunch(spec *clusterspec.ClusterSpecification, descriptor *broker.LaunchDescriptor) error {
	if descriptor.Environment == nil {
		descriptor.Environment = map[string]string{}
	}
	descriptor.Environment["FLOTILLA_PROVIDER"] = GenericName
	if spec.ApplicationHome != "" {
		descriptor.Environment["FLOTILLA_APP_HOME"] = spec.ApplicationHome
	}
	return nil
}
