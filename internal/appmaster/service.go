package appmaster

import (
	"context"

	"google.golang.org/grpc"

	"github.com/G-Research/flotilla/internal/clusterspec"
)

// Messages of the flotilla.ClusterCoordinator service. Every request names the cluster it is meant
// for so a coordinator can reject calls that reached the wrong process.

type StopRequest struct {
	Cluster string `json:"cluster"`
	Message string `json:"message,omitempty"`
}

type ResizeRequest struct {
	Cluster       string                            `json:"cluster"`
	Specification *clusterspec.ClusterSpecification `json:"specification"`
}

type ResizeResponse struct {
	Changed bool `json:"changed"`
}

type StatusRequest struct {
	Cluster string `json:"cluster"`
}

type StatusResponse struct {
	Specification *clusterspec.ClusterSpecification `json:"specification"`
}

type ListNodesRequest struct {
	Cluster string `json:"cluster"`
	Role    string `json:"role"`
}

type ListNodesResponse struct {
	Nodes []string `json:"nodes"`
}

type GetNodeRequest struct {
	Cluster string `json:"cluster"`
	Node    string `json:"node"`
}

type Empty struct{}

type ClusterCoordinatorServer interface {
	StopCluster(context.Context, *StopRequest) (*Empty, error)
	Resize(context.Context, *ResizeRequest) (*ResizeResponse, error)
	GetStatus(context.Context, *StatusRequest) (*StatusResponse, error)
	ListNodesByRole(context.Context, *ListNodesRequest) (*ListNodesResponse, error)
	GetNode(context.Context, *GetNodeRequest) (*ClusterNode, error)
}

const coordinatorServiceName = "flotilla.ClusterCoordinator"

func RegisterClusterCoordinatorServer(s *grpc.Server, srv ClusterCoordinatorServer) {
	s.RegisterService(&coordinatorServiceDesc, srv)
}

func stopClusterHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StopRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterCoordinatorServer).StopCluster(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + coordinatorServiceName + "/StopCluster"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClusterCoordinatorServer).StopCluster(ctx, req.(*StopRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func resizeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ResizeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterCoordinatorServer).Resize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + coordinatorServiceName + "/Resize"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClusterCoordinatorServer).Resize(ctx, req.(*ResizeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterCoordinatorServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + coordinatorServiceName + "/GetStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClusterCoordinatorServer).GetStatus(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listNodesByRoleHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListNodesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterCoordinatorServer).ListNodesByRole(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + coordinatorServiceName + "/ListNodesByRole"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClusterCoordinatorServer).ListNodesByRole(ctx, req.(*ListNodesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getNodeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetNodeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterCoordinatorServer).GetNode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + coordinatorServiceName + "/GetNode"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClusterCoordinatorServer).GetNode(ctx, req.(*GetNodeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var coordinatorServiceDesc = grpc.ServiceDesc{
	ServiceName: coordinatorServiceName,
	HandlerType: (*ClusterCoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StopCluster", Handler: stopClusterHandler},
		{MethodName: "Resize", Handler: resizeHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "ListNodesByRole", Handler: listNodesByRoleHandler},
		{MethodName: "GetNode", Handler: getNodeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/appmaster/service.go",
}
