// Package grpctest serves gRPC services in process for tests.
package grpctest

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/test/bufconn"

	grpcCommon "github.com/G-Research/flotilla/internal/common/grpc"
)

const bufSize = 1024 * 1024

// Serve starts a server configured like the production ones, lets register add services to it and
// returns a connection to it. Both are torn down when the test ends.
func Serve(t *testing.T, register func(s *grpc.Server)) *grpc.ClientConn {
	t.Helper()
	conn, _ := ServeWithDialer(t, register)
	return conn
}

// ServeWithDialer is Serve, also returning a dial option that routes any address to the server.
func ServeWithDialer(t *testing.T, register func(s *grpc.Server)) (*grpc.ClientConn, grpc.DialOption) {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	server := grpcCommon.CreateGrpcServer(keepalive.ServerParameters{}, keepalive.EnforcementPolicy{})
	register(server)
	go func() {
		_ = server.Serve(lis)
	}()

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	conn, err := grpcCommon.CreateConnection(&grpcCommon.ConnectionDetails{Url: "bufnet", ForceNoTls: true}, dialer)
	if err != nil {
		t.Fatalf("failed to dial in-process server: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})
	return conn, dialer
}
