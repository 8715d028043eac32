// Package requestid gives every gRPC call an id that is logged on both sides of the connection.
package requestid

import (
	"context"

	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	"github.com/renstrom/shortuuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// MetadataKey carries the id in request metadata and in the response header.
const MetadataKey = "x-request-id"

// LogField is the ctxtags key under which the server logs the id.
const LogField = "requestId"

// FromContext returns the id in the incoming metadata of ctx.
func FromContext(ctx context.Context) (string, bool) {
	return first(metadata.FromIncomingContext(ctx))
}

// FromOutgoingContext returns the id a client call made with ctx will send.
func FromOutgoingContext(ctx context.Context) (string, bool) {
	return first(metadata.FromOutgoingContext(ctx))
}

func first(md metadata.MD, ok bool) (string, bool) {
	if !ok {
		return "", false
	}
	ids := md.Get(MetadataKey)
	if len(ids) == 0 || ids[0] == "" {
		return "", false
	}
	return ids[0], true
}

// UnaryServerInterceptor makes sure every call has an id, generating one when the client sent none.
// The id is added to the call's ctxtags, so it must run after the ctxtags interceptor, and is
// echoed back in the response header.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		id, ok := FromContext(ctx)
		if !ok {
			id = shortuuid.New()
			md, _ := metadata.FromIncomingContext(ctx)
			md = md.Copy()
			md.Set(MetadataKey, id)
			ctx = metadata.NewIncomingContext(ctx, md)
		}
		grpc_ctxtags.Extract(ctx).Set(LogField, id)
		// Fails only outside a real server stream.
		_ = grpc.SetHeader(ctx, metadata.Pairs(MetadataKey, id))
		return handler(ctx, req)
	}
}

// UnaryClientInterceptor sends a fresh id with every call that does not already carry one.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if _, ok := FromOutgoingContext(ctx); !ok {
			ctx = metadata.AppendToOutgoingContext(ctx, MetadataKey, shortuuid.New())
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
