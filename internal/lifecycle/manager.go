// Package lifecycle drives clusters through their lifecycle: it persists specifications, submits
// coordinators to the resource broker, waits on their state and talks to them once they run.
//
// Every operation reloads what it needs from the store and the broker. Create and destroy check the
// broker for live instances before and after acting; a conflict seen by the second check is reported
// as ErrBadClusterState rather than resolved.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"k8s.io/utils/clock"

	"github.com/G-Research/flotilla/internal/appmaster"
	"github.com/G-Research/flotilla/internal/broker"
	"github.com/G-Research/flotilla/internal/clusterspec"
	"github.com/G-Research/flotilla/internal/common"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/common/poll"
	"github.com/G-Research/flotilla/internal/lifecycle/configuration"
	"github.com/G-Research/flotilla/internal/placement"
	"github.com/G-Research/flotilla/internal/provider"
	"github.com/G-Research/flotilla/internal/store"
)

const (
	msgClusterRunning    = "cluster already running"
	msgDestroyCreateRace = "destroy/create race"
	msgCreatedInDestroy  = "created while it was being destroyed"
	msgIncompleteSpec    = "specification is marked as incomplete"
	msgMissingPath       = "missing path"
	msgNoImageOrHome     = "neither an image path nor an application home was specified"
	msgNoCoordinatorAddr = "instance has no coordinator address"
)

type Manager struct {
	config   configuration.ClientConfig
	specs    *store.SpecificationStore
	localFs  afero.Fs
	broker   broker.Client
	connect  appmaster.Connector
	provider provider.Provider
	poller   *poll.Poller
	clock    clock.Clock
	history  *placement.History

	trackersMu sync.Mutex
	trackers   map[string]*placement.Tracker
}

// New returns a Manager. localFs is where configuration directories given to Create are read from.
func New(
	config configuration.ClientConfig,
	specs *store.SpecificationStore,
	localFs afero.Fs,
	brokerClient broker.Client,
	connector appmaster.Connector,
	provider provider.Provider,
	clock clock.Clock,
) *Manager {
	return &Manager{
		config:   config,
		specs:    specs,
		localFs:  localFs,
		broker:   brokerClient,
		connect:  connector,
		provider: provider,
		poller:   poll.New(config.PollInterval, clock),
		clock:    clock,
		history:  placement.NewHistory(len(provider.Roles()), clock),
		trackers: map[string]*placement.Tracker{},
	}
}

// History returns the placement history filled in by ObservePlacement.
func (m *Manager) History() *placement.History {
	return m.history
}

func (m *Manager) Provider() provider.Provider {
	return m.provider
}

func (m *Manager) user() string {
	return m.config.User
}

// listInstances returns every instance of the configured application type, restricted to user unless
// user is empty.
func (m *Manager) listInstances(user string) ([]*broker.InstanceReport, error) {
	ctx, cancel := common.ContextWithTimeout(m.config.RpcTimeout)
	defer cancel()
	reports, err := m.broker.ListByType(ctx, m.config.Submission.ApplicationType)
	if err != nil {
		return nil, errors.WithMessage(err, "error listing instances")
	}
	if user == "" {
		return reports, nil
	}
	filtered := make([]*broker.InstanceReport, 0, len(reports))
	for _, report := range reports {
		if report.User == user {
			filtered = append(filtered, report)
		}
	}
	return filtered, nil
}

// findLiveInstances returns the live instances named name, of any user if user is empty.
func (m *Manager) findLiveInstances(user string, name string) ([]*broker.InstanceReport, error) {
	reports, err := m.listInstances(user)
	if err != nil {
		return nil, err
	}
	var live []*broker.InstanceReport
	for _, report := range reports {
		if report.Name == name && report.State.IsLive() {
			live = append(live, report)
		}
	}
	return live, nil
}

// verifyNoLiveInstances fails with ErrBadClusterState if any user has a live instance named name.
func (m *Manager) verifyNoLiveInstances(name string, message string) error {
	live, err := m.findLiveInstances("", name)
	if err != nil {
		return err
	}
	if len(live) > 0 {
		return &flotillaerrors.ErrBadClusterState{
			Cluster: name,
			Message: fmt.Sprintf("%s: %s", message, live[0]),
		}
	}
	return nil
}

// findInstance returns the instance of the current user named name, or nil if there is none.
// A live instance is preferred over terminal ones; among terminal instances the latest submitted wins.
func (m *Manager) findInstance(name string) (*broker.InstanceReport, error) {
	reports, err := m.listInstances(m.user())
	if err != nil {
		return nil, err
	}
	return preferredInstance(reports, name), nil
}

func preferredInstance(reports []*broker.InstanceReport, name string) *broker.InstanceReport {
	var found *broker.InstanceReport
	for _, report := range reports {
		if report.Name != name {
			continue
		}
		if report.State.IsLive() {
			return report
		}
		found = report
	}
	return found
}

// loadSpecification reports a missing specification as an unknown cluster.
func (m *Manager) loadSpecification(name string) (*clusterspec.ClusterSpecification, error) {
	spec, err := m.specs.Load(name)
	var notFound *flotillaerrors.ErrNotFound
	if errors.As(err, &notFound) {
		return nil, &flotillaerrors.ErrUnknownCluster{Cluster: name}
	}
	return spec, err
}

// connectTo opens a client to the coordinator of a running instance.
func (m *Manager) connectTo(name string, instance *broker.InstanceReport) (appmaster.Client, error) {
	if instance.Host == "" || instance.RpcPort == 0 {
		return nil, &flotillaerrors.ErrConnectivity{
			Cluster: name,
			Address: fmt.Sprintf("%s:%d", instance.Host, instance.RpcPort),
			Message: msgNoCoordinatorAddr + " " + instance.Id,
		}
	}
	log.Debugf("Connecting to coordinator of %s at %s:%d", name, instance.Host, instance.RpcPort)
	return m.connect(name, instance.Host, instance.RpcPort)
}

// bond finds the live instance of name and connects to its coordinator.
func (m *Manager) bond(name string) (appmaster.Client, *broker.InstanceReport, error) {
	if err := clusterspec.ValidateClusterName(name); err != nil {
		return nil, nil, err
	}
	instance, err := m.findInstance(name)
	if err != nil {
		return nil, nil, err
	}
	if instance == nil || instance.State.IsTerminal() {
		return nil, nil, &flotillaerrors.ErrUnknownCluster{Cluster: name}
	}
	client, err := m.connectTo(name, instance)
	if err != nil {
		return nil, nil, err
	}
	return client, instance, nil
}

func (m *Manager) kill(name string, instanceId string) {
	ctx, cancel := common.ContextWithTimeout(m.config.RpcTimeout)
	defer cancel()
	if err := m.broker.Kill(ctx, instanceId); err != nil {
		log.WithError(err).Warnf("Failed to kill instance %s of cluster %s", instanceId, name)
		return
	}
	log.Infof("Killed instance %s of cluster %s", instanceId, name)
}
