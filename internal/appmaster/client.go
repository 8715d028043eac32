package appmaster

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/G-Research/flotilla/internal/clusterspec"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	grpcCommon "github.com/G-Research/flotilla/internal/common/grpc"
)

type GrpcClient struct {
	cluster string
	conn    *grpc.ClientConn
	address string
}

func NewGrpcClient(cluster string, conn *grpc.ClientConn, address string) *GrpcClient {
	return &GrpcClient{cluster: cluster, conn: conn, address: address}
}

// GrpcConnector returns a Connector dialling coordinators over gRPC.
func GrpcConnector(forceNoTls bool, dialOptions ...grpc.DialOption) Connector {
	return func(cluster string, host string, port int) (Client, error) {
		address := fmt.Sprintf("%s:%d", host, port)
		conn, err := grpcCommon.CreateConnection(
			&grpcCommon.ConnectionDetails{Url: address, ForceNoTls: forceNoTls},
			dialOptions...)
		if err != nil {
			return nil, &flotillaerrors.ErrConnectivity{Cluster: cluster, Address: address, Message: err.Error()}
		}
		return NewGrpcClient(cluster, conn, address), nil
	}
}

func (c *GrpcClient) invoke(ctx context.Context, method string, in interface{}, out interface{}) error {
	err := c.conn.Invoke(ctx, "/"+coordinatorServiceName+"/"+method, in, out)
	return flotillaerrors.ErrorFromStatus(err, c.address)
}

func (c *GrpcClient) StopCluster(ctx context.Context, message string) error {
	return c.invoke(ctx, "StopCluster", &StopRequest{Cluster: c.cluster, Message: message}, &Empty{})
}

func (c *GrpcClient) Resize(ctx context.Context, spec *clusterspec.ClusterSpecification) (bool, error) {
	out := &ResizeResponse{}
	if err := c.invoke(ctx, "Resize", &ResizeRequest{Cluster: c.cluster, Specification: spec}, out); err != nil {
		return false, err
	}
	return out.Changed, nil
}

func (c *GrpcClient) GetStatus(ctx context.Context) (*clusterspec.ClusterSpecification, error) {
	out := &StatusResponse{}
	if err := c.invoke(ctx, "GetStatus", &StatusRequest{Cluster: c.cluster}, out); err != nil {
		return nil, err
	}
	return out.Specification, nil
}

func (c *GrpcClient) ListNodesByRole(ctx context.Context, role string) ([]string, error) {
	out := &ListNodesResponse{}
	if err := c.invoke(ctx, "ListNodesByRole", &ListNodesRequest{Cluster: c.cluster, Role: role}, out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

func (c *GrpcClient) GetNode(ctx context.Context, nodeId string) (*ClusterNode, error) {
	out := &ClusterNode{}
	if err := c.invoke(ctx, "GetNode", &GetNodeRequest{Cluster: c.cluster, Node: nodeId}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GrpcClient) Close() error {
	return c.conn.Close()
}
