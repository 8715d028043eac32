package broker

import (
	"context"

	"google.golang.org/grpc"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	grpcCommon "github.com/G-Research/flotilla/internal/common/grpc"
)

// GrpcClient talks to a flotilla.Broker service. Status errors are translated back into the
// flotillaerrors taxonomy; unreachable brokers surface as ErrConnectivity.
type GrpcClient struct {
	conn    *grpc.ClientConn
	address string
}

func Dial(details *grpcCommon.ConnectionDetails, dialOptions ...grpc.DialOption) (*GrpcClient, error) {
	conn, err := grpcCommon.CreateConnection(details, dialOptions...)
	if err != nil {
		return nil, &flotillaerrors.ErrConnectivity{Address: details.Url, Message: err.Error()}
	}
	return NewGrpcClient(conn, details.Url), nil
}

func NewGrpcClient(conn *grpc.ClientConn, address string) *GrpcClient {
	return &GrpcClient{conn: conn, address: address}
}

func (c *GrpcClient) invoke(ctx context.Context, method string, in interface{}, out interface{}) error {
	err := c.conn.Invoke(ctx, "/"+brokerServiceName+"/"+method, in, out)
	return flotillaerrors.ErrorFromStatus(err, c.address)
}

func (c *GrpcClient) Submit(ctx context.Context, descriptor *LaunchDescriptor) (string, error) {
	out := &SubmitResponse{}
	if err := c.invoke(ctx, "Submit", &SubmitRequest{Descriptor: descriptor}, out); err != nil {
		return "", err
	}
	return out.InstanceId, nil
}

func (c *GrpcClient) GetReport(ctx context.Context, instanceId string) (*InstanceReport, error) {
	out := &InstanceReport{}
	if err := c.invoke(ctx, "GetReport", &GetReportRequest{InstanceId: instanceId}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GrpcClient) ListByType(ctx context.Context, applicationType string) ([]*InstanceReport, error) {
	out := &ListByTypeResponse{}
	if err := c.invoke(ctx, "ListByType", &ListByTypeRequest{Type: applicationType}, out); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

func (c *GrpcClient) Kill(ctx context.Context, instanceId string) error {
	return c.invoke(ctx, "Kill", &KillRequest{InstanceId: instanceId}, &Empty{})
}

func (c *GrpcClient) Close() error {
	return c.conn.Close()
}
