// Package provider describes the service deployed in a cluster: which roles it has, their defaults
// and any service specific additions to the launch of its coordinator.
package provider

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/G-Research/flotilla/internal/broker"
	"github.com/G-Research/flotilla/internal/clusterspec"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

// Role is a supported role. Key is its stable index, used to address per-role placement slots.
type Role struct {
	Name string
	Key  int
}

type Provider interface {
	Name() string
	Roles() []Role
	DefaultClusterOptions() map[string]string
	// DefaultRole returns the option defaults of role; explicit options are merged on top.
	DefaultRole(role string) map[string]string
	ValidateRoleCounts(spec *clusterspec.ClusterSpecification) error
	// PrepareLaunch adds provider specific settings to a launch descriptor built from spec.
	PrepareLaunch(spec *clusterspec.ClusterSpecification, descriptor *broker.LaunchDescriptor) error
}

// RoleKey returns the index of the named role.
func RoleKey(p Provider, name string) (int, bool) {
	for _, role := range p.Roles() {
		if role.Name == name {
			return role.Key, true
		}
	}
	return -1, false
}

func RoleNames(p Provider) []string {
	roles := p.Roles()
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.Name
	}
	return names
}

// ForName returns the provider registered under name.
func ForName(name string) (Provider, error) {
	switch name {
	case "", GenericName:
		return NewGeneric(), nil
	default:
		return nil, &flotillaerrors.ErrInvalidArgument{
			Name:    "provider",
			Value:   name,
			Message: fmt.Sprintf("supported providers: %s", GenericName),
		}
	}
}

func validateCounts(p Provider, spec *clusterspec.ClusterSpecification, limits map[string]int) error {
	var result *multierror.Error
	for _, name := range spec.RoleNames() {
		if _, ok := RoleKey(p, name); !ok {
			result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
				Name:    "role",
				Value:   name,
				Message: fmt.Sprintf("not a role of provider %s", p.Name()),
			})
			continue
		}
		count, err := spec.DesiredInstanceCount(name)
		if err != nil {
			result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
				Name:    name,
				Value:   spec.GetRoleOpt(name, clusterspec.KeyInstances, ""),
				Message: "instance count must be a non-negative integer",
			})
			continue
		}
		if limit, ok := limits[name]; ok && count > limit {
			result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
				Name:    name,
				Value:   count,
				Message: fmt.Sprintf("no more than %d instance(s) of role %s are supported", limit, name),
			})
		}
	}
	return result.ErrorOrNil()
}
