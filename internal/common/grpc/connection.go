package grpc

import (
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/G-Research/flotilla/internal/common/requestid"
)

type ConnectionDetails struct {
	Url        string
	ForceNoTls bool
}

// CreateConnection dials url with the JSON codec selected for every call, each call carrying a
// request id. Calls are not retried: a failed round trip is reported to the caller straight away.
func CreateConnection(details *ConnectionDetails, additionalDialOptions ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialOpts := append(additionalDialOptions,
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
		grpc.WithChainUnaryInterceptor(requestid.UnaryClientInterceptor()),
		transportCredentials(details))
	return grpc.Dial(details.Url, dialOpts...)
}

func transportCredentials(details *ConnectionDetails) grpc.DialOption {
	if !details.ForceNoTls && !strings.Contains(details.Url, "localhost") {
		return grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, ""))
	}
	return grpc.WithTransportCredentials(insecure.NewCredentials())
}
