package lifecycle

import (
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"github.com/G-Research/flotilla/internal/broker"
	"github.com/G-Research/flotilla/internal/clusterspec"
	"github.com/G-Research/flotilla/internal/common"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/provider"
)

// FlexResult reports what a flex did to the running cluster.
type FlexResult struct {
	// Running is false if there was no live instance to resize.
	Running bool
	// Changed is true if the coordinator applied a different set of role counts.
	Changed bool
}

// Destroy deletes everything persisted for a cluster that is not running.
func (m *Manager) Destroy(name string) (err error) {
	defer recordOperation("destroy", &err)

	if err := clusterspec.ValidateClusterName(name); err != nil {
		return err
	}
	if err := m.verifyNoLiveInstances(name, msgClusterRunning); err != nil {
		return err
	}
	exists, err := m.specs.Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		log.Infof("Cluster %s has no specification", name)
	}
	if err := m.specs.Destroy(name); err != nil {
		return err
	}
	if err := m.verifyNoLiveInstances(name, msgCreatedInDestroy); err != nil {
		return err
	}
	log.Infof("Destroyed cluster %s", name)
	return nil
}

// Freeze stops the running instance of a cluster. A cluster without a live instance is already
// frozen. If wait is positive Freeze waits for the instance to finish and returns ErrTimedOut if it
// has not finished within wait, even though the stop request was accepted.
func (m *Manager) Freeze(name string, wait time.Duration) (err error) {
	defer recordOperation("freeze", &err)

	if err := clusterspec.ValidateClusterName(name); err != nil {
		return err
	}
	instance, err := m.findInstance(name)
	if err != nil {
		return err
	}
	if instance == nil {
		log.Infof("Cluster %s is not running", name)
		return nil
	}
	if instance.State.IsTerminal() {
		log.Infof("Cluster %s is already frozen: instance %s is %s", name, instance.Id, instance.State)
		return nil
	}

	client, err := m.connectTo(name, instance)
	if err != nil {
		return err
	}
	defer client.Close()
	ctx, cancel := common.ContextWithTimeout(m.config.RpcTimeout)
	defer cancel()
	if err := client.StopCluster(ctx, fmt.Sprintf("stop requested by %s", m.user())); err != nil {
		return err
	}
	log.Infof("Asked cluster %s to stop", name)
	if wait <= 0 {
		return nil
	}

	report, finished, err := m.MonitorToState(instance.Id, broker.StateFinished, wait)
	if err != nil {
		return err
	}
	if !finished {
		return &flotillaerrors.ErrTimedOut{Cluster: name, Waiting: "state " + broker.StateFinished.String(), Budget: wait}
	}
	log.Infof("Cluster %s is frozen: instance %s is %s", name, instance.Id, report.State)
	return nil
}

// Flex changes the desired instance counts of roles. With persist the new counts are written to the
// store; a failure to do so is logged and does not stop the live cluster from being resized.
func (m *Manager) Flex(name string, counts map[string]int, persist bool) (result *FlexResult, err error) {
	defer recordOperation("flex", &err)

	if err := clusterspec.ValidateClusterName(name); err != nil {
		return nil, err
	}
	roles := maps.Keys(counts)
	sort.Strings(roles)
	var problems *multierror.Error
	for _, role := range roles {
		if _, ok := provider.RoleKey(m.provider, role); !ok {
			problems = multierror.Append(problems, &flotillaerrors.ErrInvalidArgument{
				Name:    "role",
				Value:   role,
				Message: fmt.Sprintf("not a role of provider %s", m.provider.Name()),
			})
		} else if counts[role] < 0 {
			problems = multierror.Append(problems, &flotillaerrors.ErrInvalidArgument{
				Name:    role,
				Value:   counts[role],
				Message: "instance counts must not be negative",
			})
		}
	}
	if err := problems.ErrorOrNil(); err != nil {
		return nil, err
	}

	spec, err := m.loadSpecification(name)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		spec.SetDesiredInstanceCount(role, counts[role])
	}
	if err := m.provider.ValidateRoleCounts(spec); err != nil {
		return nil, err
	}
	if persist {
		if err := m.specs.Update(name, spec); err != nil {
			log.WithError(err).Warnf("Failed to persist new role counts of cluster %s", name)
		}
	}

	instance, err := m.findInstance(name)
	if err != nil {
		return nil, err
	}
	if instance == nil || instance.State.IsTerminal() {
		log.Infof("No-op: cluster %s is not running", name)
		return &FlexResult{}, nil
	}
	client, err := m.connectTo(name, instance)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	ctx, cancel := common.ContextWithTimeout(m.config.RpcTimeout)
	defer cancel()
	changed, err := client.Resize(ctx, spec)
	if err != nil {
		return nil, err
	}
	if changed {
		log.Infof("Cluster %s resized", name)
	} else {
		log.Infof("No-op: cluster %s already has the requested role counts", name)
	}
	return &FlexResult{Running: true, Changed: changed}, nil
}

// Status returns the specification reported by the running coordinator of a cluster.
func (m *Manager) Status(name string) (status *clusterspec.ClusterSpecification, err error) {
	defer recordOperation("status", &err)

	client, _, err := m.bond(name)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	ctx, cancel := common.ContextWithTimeout(m.config.RpcTimeout)
	defer cancel()
	return client.GetStatus(ctx)
}

// List returns the instances of user, of all users if user is empty. With a name only the preferred
// instance of that name is returned, and ErrUnknownCluster if there is none.
func (m *Manager) List(name string, user string) (reports []*broker.InstanceReport, err error) {
	defer recordOperation("list", &err)

	if name != "" {
		if err := clusterspec.ValidateClusterName(name); err != nil {
			return nil, err
		}
	}
	instances, err := m.listInstances(user)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return instances, nil
	}
	instance := preferredInstance(instances, name)
	if instance == nil {
		return nil, &flotillaerrors.ErrUnknownCluster{Cluster: name}
	}
	return []*broker.InstanceReport{instance}, nil
}

// DefinedCluster is a cluster with a persisted specification and the instance that best describes
// it, nil if it has never been started by user.
type DefinedCluster struct {
	Name     string
	Instance *broker.InstanceReport
}

// ListDefined returns every cluster with a persisted specification in name order, frozen ones
// included. Instances are looked up among those of user, all users if user is empty.
func (m *Manager) ListDefined(user string) (clusters []DefinedCluster, err error) {
	defer recordOperation("list", &err)

	names, err := m.specs.List()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	instances, err := m.listInstances(user)
	if err != nil {
		return nil, err
	}
	clusters = make([]DefinedCluster, len(names))
	for i, name := range names {
		clusters[i] = DefinedCluster{Name: name, Instance: preferredInstance(instances, name)}
	}
	return clusters, nil
}

// Exists succeeds only if the current user has a live instance of the named cluster.
func (m *Manager) Exists(name string) (err error) {
	defer recordOperation("exists", &err)

	if err := clusterspec.ValidateClusterName(name); err != nil {
		return err
	}
	instance, err := m.findInstance(name)
	if err != nil {
		return err
	}
	if instance == nil || instance.State.IsTerminal() {
		return &flotillaerrors.ErrUnknownCluster{Cluster: name}
	}
	log.Infof("Cluster %s is %s", name, instance.State)
	return nil
}

// GetConf renders the client properties published by the running coordinator of a cluster.
func (m *Manager) GetConf(name string, format string) (conf []byte, err error) {
	defer recordOperation("getconf", &err)

	if _, err := ParseFormat(format); err != nil {
		return nil, err
	}
	client, _, err := m.bond(name)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	ctx, cancel := common.ContextWithTimeout(m.config.RpcTimeout)
	defer cancel()
	status, err := client.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	return RenderProperties(status.ClientProperties, format)
}
