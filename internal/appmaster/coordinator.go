package appmaster

import (
	"context"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/flotilla/internal/clusterspec"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

// SpecLoader returns the persisted specification a coordinator starts from.
type SpecLoader func(cluster string) (*clusterspec.ClusterSpecification, error)

// StopHandler is told when a cluster has been asked to stop.
type StopHandler func(cluster string, message string)

// Coordinator is an in-process stand-in for deployed coordinators. It serves any number of clusters,
// deploying each from its persisted specification on first contact and placing role instances on
// numbered hosts.
type Coordinator struct {
	mu       sync.Mutex
	load     SpecLoader
	onStop   StopHandler
	clock    clock.Clock
	clusters map[string]*deployment
}

type deployment struct {
	spec  *clusterspec.ClusterSpecification
	nodes map[string]*ClusterNode
}

func NewCoordinator(load SpecLoader, onStop StopHandler, clock clock.Clock) *Coordinator {
	return &Coordinator{
		load:     load,
		onStop:   onStop,
		clock:    clock,
		clusters: map[string]*deployment{},
	}
}

// deployment must be called with the lock held.
func (c *Coordinator) deployment(cluster string) (*deployment, error) {
	if d, ok := c.clusters[cluster]; ok {
		return d, nil
	}
	spec, err := c.load(cluster)
	if err != nil {
		return nil, err
	}
	d := &deployment{spec: spec.Clone(), nodes: map[string]*ClusterNode{}}
	if err := d.place(cluster, c.clock.Now().UnixMilli()); err != nil {
		return nil, err
	}
	c.clusters[cluster] = d
	log.Infof("Deployed cluster %s with %d nodes", cluster, d.running())
	return d, nil
}

// place creates or destroys nodes until every role has its desired count. Destroyed nodes stay
// listed until their slot is reused.
func (d *deployment) place(cluster string, now int64) error {
	for _, role := range d.spec.RoleNames() {
		desired, err := d.spec.DesiredInstanceCount(role)
		if err != nil {
			return err
		}
		for i := 0; i < desired; i++ {
			name := fmt.Sprintf("%s-%s-%d", cluster, role, i)
			if node, ok := d.nodes[name]; !ok || node.State >= NodeStopped {
				d.nodes[name] = &ClusterNode{
					Name:        name,
					Role:        role,
					Host:        fmt.Sprintf("host%d", i),
					State:       NodeLive,
					LastUpdated: now,
				}
			}
		}
		for name, node := range d.nodes {
			if node.Role == role && node.State < NodeStopped && nodeIndex(cluster, role, name) >= desired {
				node.State = NodeDestroyed
				node.LastUpdated = now
			}
		}
	}
	return nil
}

func (d *deployment) running() int {
	n := 0
	for _, node := range d.nodes {
		if node.State < NodeStopped {
			n++
		}
	}
	return n
}

func nodeIndex(cluster string, role string, name string) int {
	var i int
	if _, err := fmt.Sscanf(name[len(cluster)+len(role)+2:], "%d", &i); err != nil {
		return -1
	}
	return i
}

func (c *Coordinator) StopCluster(_ context.Context, req *StopRequest) (*Empty, error) {
	c.mu.Lock()
	d, err := c.deployment(req.Cluster)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	for _, node := range d.nodes {
		node.State = NodeStopped
	}
	delete(c.clusters, req.Cluster)
	c.mu.Unlock()

	log.Infof("Stopping cluster %s: %s", req.Cluster, req.Message)
	if c.onStop != nil {
		c.onStop(req.Cluster, req.Message)
	}
	return &Empty{}, nil
}

func (c *Coordinator) Resize(_ context.Context, req *ResizeRequest) (*ResizeResponse, error) {
	if req.Specification == nil {
		return nil, &flotillaerrors.ErrInvalidArgument{Name: "specification", Message: "resize needs a specification"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.deployment(req.Cluster)
	if err != nil {
		return nil, err
	}
	changed := false
	roles := map[string]bool{}
	for _, role := range d.spec.RoleNames() {
		roles[role] = true
	}
	for _, role := range req.Specification.RoleNames() {
		roles[role] = true
	}
	for role := range roles {
		current, err := d.spec.DesiredInstanceCount(role)
		if err != nil {
			return nil, err
		}
		requested, err := req.Specification.DesiredInstanceCount(role)
		if err != nil {
			return nil, &flotillaerrors.ErrInvalidArgument{Name: role, Message: err.Error()}
		}
		if current != requested {
			d.spec.SetDesiredInstanceCount(role, requested)
			changed = true
		}
	}
	if changed {
		if err := d.place(req.Cluster, c.clock.Now().UnixMilli()); err != nil {
			return nil, err
		}
		log.Infof("Resized cluster %s to %d nodes", req.Cluster, d.running())
	}
	return &ResizeResponse{Changed: changed}, nil
}

func (c *Coordinator) GetStatus(_ context.Context, req *StatusRequest) (*StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.deployment(req.Cluster)
	if err != nil {
		return nil, err
	}
	status := d.spec.Clone()
	status.ClientProperties = map[string]string{
		"flotilla.cluster.name":  req.Cluster,
		"zookeeper.quorum":       d.spec.ZkHosts,
		"zookeeper.port":         fmt.Sprintf("%d", d.spec.ZkPort),
		"zookeeper.znode.parent": d.spec.ZkPath,
	}
	return &StatusResponse{Specification: status}, nil
}

func (c *Coordinator) ListNodesByRole(_ context.Context, req *ListNodesRequest) (*ListNodesResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.deployment(req.Cluster)
	if err != nil {
		return nil, err
	}
	nodes := []string{}
	for name, node := range d.nodes {
		if node.Role == req.Role {
			nodes = append(nodes, name)
		}
	}
	sort.Strings(nodes)
	return &ListNodesResponse{Nodes: nodes}, nil
}

func (c *Coordinator) GetNode(_ context.Context, req *GetNodeRequest) (*ClusterNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.deployment(req.Cluster)
	if err != nil {
		return nil, err
	}
	node, ok := d.nodes[req.Node]
	if !ok {
		return nil, &flotillaerrors.ErrNotFound{Type: "node", Value: req.Node}
	}
	copied := *node
	return &copied, nil
}

// Connector returns a Connector whose clients call this coordinator directly, without a network hop.
func (c *Coordinator) Connector() Connector {
	return func(cluster string, _ string, _ int) (Client, error) {
		return &localClient{cluster: cluster, server: c}, nil
	}
}

type localClient struct {
	cluster string
	server  ClusterCoordinatorServer
}

func (l *localClient) StopCluster(ctx context.Context, message string) error {
	_, err := l.server.StopCluster(ctx, &StopRequest{Cluster: l.cluster, Message: message})
	return err
}

func (l *localClient) Resize(ctx context.Context, spec *clusterspec.ClusterSpecification) (bool, error) {
	resp, err := l.server.Resize(ctx, &ResizeRequest{Cluster: l.cluster, Specification: spec})
	if err != nil {
		return false, err
	}
	return resp.Changed, nil
}

func (l *localClient) GetStatus(ctx context.Context) (*clusterspec.ClusterSpecification, error) {
	resp, err := l.server.GetStatus(ctx, &StatusRequest{Cluster: l.cluster})
	if err != nil {
		return nil, err
	}
	return resp.Specification, nil
}

func (l *localClient) ListNodesByRole(ctx context.Context, role string) ([]string, error) {
	resp, err := l.server.ListNodesByRole(ctx, &ListNodesRequest{Cluster: l.cluster, Role: role})
	if err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

func (l *localClient) GetNode(ctx context.Context, nodeId string) (*ClusterNode, error) {
	return l.server.GetNode(ctx, &GetNodeRequest{Cluster: l.cluster, Node: nodeId})
}

func (l *localClient) Close() error {
	return nil
}
