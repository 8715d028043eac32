package lifecycle

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/flotilla/internal/broker"
	"github.com/G-Research/flotilla/internal/clusterspec"
	"github.com/G-Research/flotilla/internal/common"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/store"
)

const DefaultZkPort = 2181

// CreateRequest holds everything needed to create a cluster.
type CreateRequest struct {
	Name string
	// ConfDir is a directory on the local filesystem holding the cluster's configuration.
	ConfDir string
	// Exactly one of ImagePath, a key in the store, and ApplicationHome must be set.
	ImagePath       string
	ApplicationHome string
	ZkHosts         string
	ZkPort          int
	// ZkPath defaults to /flotilla_<user>_<name>.
	ZkPath      string
	Options     map[string]string
	RoleCounts  map[string]int
	RoleOptions map[string]map[string]string
	// Wait, if positive, is how long to wait for the instance to be running.
	Wait time.Duration
}

// SubmitResult describes the instance launched for a cluster.
type SubmitResult struct {
	InstanceId string
	Report     *broker.InstanceReport
}

// Create persists a new cluster specification and launches its coordinator. The specification is
// written as incomplete before configuration is copied, which reserves the name, and marked
// submitted once all inputs are in place.
func (m *Manager) Create(req CreateRequest) (result *SubmitResult, err error) {
	defer recordOperation("create", &err)

	name := req.Name
	if err := clusterspec.ValidateClusterName(name); err != nil {
		return nil, err
	}
	if err := m.verifyNoLiveInstances(name, msgClusterRunning); err != nil {
		return nil, err
	}
	spec, err := m.buildSpecification(req)
	if err != nil {
		return nil, err
	}
	if err := m.specs.Create(name, spec); err != nil {
		return nil, err
	}
	log.Infof("Reserved cluster %s", name)

	s := m.specs.Store()
	copied, err := store.CopyLocalDir(m.localFs, req.ConfDir, s, spec.OriginConfigurationPath)
	if err != nil {
		return nil, errors.WithMessagef(err, "error copying configuration of cluster %s", name)
	}
	if _, err := store.CopyTree(s, spec.OriginConfigurationPath, spec.GeneratedConfigurationPath); err != nil {
		return nil, errors.WithMessagef(err, "error generating configuration of cluster %s", name)
	}
	log.Debugf("Copied %d configuration files of cluster %s", copied, name)

	spec.State = clusterspec.StateSubmitted
	if err := m.specs.Update(name, spec); err != nil {
		return nil, err
	}
	return m.submit(spec, req.Wait)
}

// Thaw relaunches a frozen cluster from its persisted specification.
func (m *Manager) Thaw(name string, wait time.Duration) (result *SubmitResult, err error) {
	defer recordOperation("thaw", &err)

	if err := clusterspec.ValidateClusterName(name); err != nil {
		return nil, err
	}
	if err := m.verifyNoLiveInstances(name, msgClusterRunning); err != nil {
		return nil, err
	}
	spec, err := m.loadSpecification(name)
	if err != nil {
		return nil, err
	}
	return m.submit(spec, wait)
}

func (m *Manager) buildSpecification(req CreateRequest) (*clusterspec.ClusterSpecification, error) {
	var result *multierror.Error
	if req.ConfDir == "" {
		result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
			Name:    "confdir",
			Message: "a configuration directory is required",
		})
	}
	if req.ZkHosts == "" {
		result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
			Name:    "zkhosts",
			Message: "the coordination service hosts are required",
		})
	}
	if (req.ImagePath == "") == (req.ApplicationHome == "") {
		result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
			Name:    "image",
			Value:   req.ImagePath,
			Message: "exactly one of an image path and an application home must be given",
		})
	}
	if req.ZkPort < 0 || req.ZkPort > 65535 {
		result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{Name: "zkport", Value: req.ZkPort})
	}
	roles := maps.Keys(req.RoleCounts)
	sort.Strings(roles)
	for _, role := range roles {
		if req.RoleCounts[role] < 0 {
			result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
				Name:    role,
				Value:   req.RoleCounts[role],
				Message: "instance counts must not be negative",
			})
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	name := req.Name
	spec := clusterspec.New(name, m.provider.Name())
	spec.CreateTime = m.clock.Now().UnixMilli()
	spec.Options = m.provider.DefaultClusterOptions()
	for key, value := range req.Options {
		spec.Options[key] = value
	}
	for _, role := range m.provider.Roles() {
		spec.Roles[role.Name] = m.provider.DefaultRole(role.Name)
	}
	for role, opts := range req.RoleOptions {
		for key, value := range opts {
			spec.SetRoleOpt(role, key, value)
		}
	}
	for role, count := range req.RoleCounts {
		spec.SetDesiredInstanceCount(role, count)
	}

	spec.ZkHosts = req.ZkHosts
	spec.ZkPort = req.ZkPort
	if spec.ZkPort == 0 {
		spec.ZkPort = DefaultZkPort
	}
	spec.ZkPath = req.ZkPath
	if spec.ZkPath == "" {
		spec.ZkPath = fmt.Sprintf("/flotilla_%s_%s", m.user(), name)
	}
	spec.ImagePath = req.ImagePath
	spec.ApplicationHome = req.ApplicationHome
	spec.OriginConfigurationPath = clusterspec.OriginalConfPath(name)
	spec.GeneratedConfigurationPath = clusterspec.GeneratedConfPath(name)
	spec.DataPath = clusterspec.DataPath(name)

	if err := m.provider.ValidateRoleCounts(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// submit launches the coordinator of spec and waits for the broker to accept it. If wait is
// positive it then waits for the instance to run, killing it if it does not.
func (m *Manager) submit(spec *clusterspec.ClusterSpecification, wait time.Duration) (*SubmitResult, error) {
	name := spec.Name
	if spec.State != clusterspec.StateSubmitted {
		return nil, &flotillaerrors.ErrBadClusterState{Cluster: name, Message: msgIncompleteSpec}
	}
	if err := m.verifyNoLiveInstances(name, msgDestroyCreateRace); err != nil {
		return nil, err
	}
	if err := m.verifyInputsPresent(spec); err != nil {
		return nil, err
	}

	descriptor, err := m.launchDescriptor(spec, uuid.NewString())
	if err != nil {
		return nil, err
	}
	if err := m.provider.PrepareLaunch(spec, descriptor); err != nil {
		return nil, errors.WithMessagef(err, "error preparing launch of cluster %s", name)
	}

	ctx, cancel := common.ContextWithTimeout(m.config.RpcTimeout)
	defer cancel()
	instanceId, err := m.broker.Submit(ctx, descriptor)
	if err != nil {
		return nil, errors.WithMessagef(err, "error submitting cluster %s", name)
	}
	log.Infof("Submitted cluster %s as instance %s", name, instanceId)
	result := &SubmitResult{InstanceId: instanceId}

	report, accepted, err := m.MonitorToState(instanceId, broker.StateAccepted, m.config.AcceptTimeout)
	if err != nil {
		return result, err
	}
	if !accepted {
		return result, m.exitOutcome(name, instanceId, nil, "state "+broker.StateAccepted.String(), m.config.AcceptTimeout)
	}
	result.Report = report
	if report.State.IsTerminal() {
		return result, m.exitOutcome(name, instanceId, report, "", 0)
	}
	if wait <= 0 {
		return result, nil
	}

	report, running, err := m.MonitorToState(instanceId, broker.StateRunning, wait)
	if err != nil {
		return result, err
	}
	if !running || report.State != broker.StateRunning {
		if !running {
			report = nil
		}
		return result, m.exitOutcome(name, instanceId, report, "state "+broker.StateRunning.String(), wait)
	}
	result.Report = report
	log.Infof("Cluster %s is running with coordinator at %s:%d", name, report.Host, report.RpcPort)
	return result, nil
}

// verifyInputsPresent checks that the configuration and the image of spec are in the store.
func (m *Manager) verifyInputsPresent(spec *clusterspec.ClusterSpecification) error {
	paths := []string{spec.GeneratedConfigurationPath, spec.OriginConfigurationPath}
	if spec.ImagePath != "" {
		paths = append(paths, spec.ImagePath)
	} else if spec.ApplicationHome == "" {
		return &flotillaerrors.ErrBadClusterState{Cluster: spec.Name, Message: msgNoImageOrHome}
	}
	for _, p := range paths {
		exists, err := m.specs.Store().Exists(p)
		if err != nil {
			return err
		}
		if !exists {
			return &flotillaerrors.ErrBadClusterState{Cluster: spec.Name, Message: fmt.Sprintf("%s %s", msgMissingPath, p)}
		}
	}
	return nil
}

// launchDescriptor builds the submission of the coordinator of spec. launchId names the temporary
// directory of this launch.
func (m *Manager) launchDescriptor(spec *clusterspec.ClusterSpecification, launchId string) (*broker.LaunchDescriptor, error) {
	submission := m.config.Submission
	role := m.coordinatorRole()
	memory, err := spec.GetRoleOptInt(role, clusterspec.KeyMemory, submission.MemoryMb)
	if err != nil {
		return nil, err
	}
	vcores, err := spec.GetRoleOptInt(role, clusterspec.KeyVCores, submission.VirtualCores)
	if err != nil {
		return nil, err
	}

	env := spec.RoleEnv(role)
	classpath := slices.Clone(submission.Classpath)
	if len(classpath) > 0 {
		env["CLASSPATH"] = strings.Join(classpath, ":")
	}

	localResources := map[string]broker.LocalResource{
		"original":  {Path: spec.OriginConfigurationPath, Directory: true},
		"generated": {Path: spec.GeneratedConfigurationPath, Directory: true},
	}
	if spec.ImagePath != "" {
		localResources["image"] = broker.LocalResource{Path: spec.ImagePath}
	}

	maxAttempts := 0
	if spec.GetOptionBool(clusterspec.OptionTestMode, false) {
		maxAttempts = 1
	}

	command := append(slices.Clone(submission.LaunchCommand),
		"create", spec.Name,
		"--cluster-uri", clusterspec.ClusterDir(spec.Name),
		"--broker", m.config.BrokerUrl,
		"--store", m.storeUri(),
		"--launch-dir", clusterspec.TmpPath(spec.Name, launchId),
		"1>out.txt",
		"2>err.txt",
	)

	return &broker.LaunchDescriptor{
		Name:           spec.Name,
		Type:           submission.ApplicationType,
		User:           m.user(),
		Queue:          submission.Queue,
		Priority:       submission.Priority,
		MaxAttempts:    maxAttempts,
		Resource:       broker.Resource{MemoryMb: memory, VirtualCores: vcores},
		Environment:    env,
		Classpath:      classpath,
		LocalResources: localResources,
		Command:        command,
	}, nil
}

// coordinatorRole is the role whose options shape the coordinator's own container.
func (m *Manager) coordinatorRole() string {
	for _, role := range m.provider.Roles() {
		if role.Key == 0 {
			return role.Name
		}
	}
	return ""
}

func (m *Manager) storeUri() string {
	return fmt.Sprintf("%s://%s", m.config.Store.Type, m.config.Store.Root)
}
