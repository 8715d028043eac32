package broker

import (
	"context"

	"google.golang.org/grpc"
)

// Messages of the flotilla.Broker service. They travel with the JSON codec from internal/common/grpc.

type SubmitRequest struct {
	Descriptor *LaunchDescriptor `json:"descriptor"`
}

type SubmitResponse struct {
	InstanceId string `json:"instanceId"`
}

type GetReportRequest struct {
	InstanceId string `json:"instanceId"`
}

type ListByTypeRequest struct {
	Type string `json:"type"`
}

type ListByTypeResponse struct {
	Reports []*InstanceReport `json:"reports"`
}

type KillRequest struct {
	InstanceId string `json:"instanceId"`
}

type Empty struct{}

type BrokerServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	GetReport(context.Context, *GetReportRequest) (*InstanceReport, error)
	ListByType(context.Context, *ListByTypeRequest) (*ListByTypeResponse, error)
	Kill(context.Context, *KillRequest) (*Empty, error)
}

const brokerServiceName = "flotilla.Broker"

func RegisterBrokerServer(s *grpc.Server, srv BrokerServer) {
	s.RegisterService(&brokerServiceDesc, srv)
}

func brokerSubmitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BrokerServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + brokerServiceName + "/Submit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BrokerServer).Submit(ctx, req.(*SubmitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func brokerGetReportHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetReportRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BrokerServer).GetReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + brokerServiceName + "/GetReport"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BrokerServer).GetReport(ctx, req.(*GetReportRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func brokerListByTypeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListByTypeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BrokerServer).ListByType(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + brokerServiceName + "/ListByType"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BrokerServer).ListByType(ctx, req.(*ListByTypeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func brokerKillHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(KillRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BrokerServer).Kill(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + brokerServiceName + "/Kill"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BrokerServer).Kill(ctx, req.(*KillRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var brokerServiceDesc = grpc.ServiceDesc{
	ServiceName: brokerServiceName,
	HandlerType: (*BrokerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: brokerSubmitHandler},
		{MethodName: "GetReport", Handler: brokerGetReportHandler},
		{MethodName: "ListByType", Handler: brokerListByTypeHandler},
		{MethodName: "Kill", Handler: brokerKillHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/broker/service.go",
}
