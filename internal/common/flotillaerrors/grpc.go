package flotillaerrors

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CodeFromError maps error types to gRPC return codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func CodeFromError(err error) codes.Code {
	// Check if the error is a gRPC status and, if so, return the embedded code.
	// If the error is nil, this returns an OK status code.
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}

	// Using {} scopes just to re-use the "e" variable name for each case.
	{
		var e *ErrAlreadyExists
		if errors.As(err, &e) {
			return codes.AlreadyExists
		}
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return codes.NotFound
		}
	}
	{
		var e *ErrUnknownCluster
		if errors.As(err, &e) {
			return codes.NotFound
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return codes.InvalidArgument
		}
	}
	{
		var e *ErrBadClusterState
		if errors.As(err, &e) {
			return codes.FailedPrecondition
		}
	}
	{
		var e *ErrUnimplemented
		if errors.As(err, &e) {
			return codes.Unimplemented
		}
	}
	{
		var e *ErrConnectivity
		if errors.As(err, &e) {
			return codes.Unavailable
		}
	}
	return codes.Unknown
}

// ErrorFromStatus is the client-side inverse of CodeFromError. Errors that are not gRPC statuses
// are returned unchanged.
func ErrorFromStatus(err error, address string) error {
	if err == nil {
		return nil
	}
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch s.Code() {
	case codes.AlreadyExists:
		return &ErrAlreadyExists{Message: s.Message()}
	case codes.NotFound:
		return &ErrNotFound{Message: s.Message()}
	case codes.InvalidArgument:
		return &ErrInvalidArgument{Message: s.Message()}
	case codes.FailedPrecondition:
		return &ErrBadClusterState{Message: s.Message()}
	case codes.Unimplemented:
		return &ErrUnimplemented{Action: s.Message()}
	case codes.Unavailable, codes.DeadlineExceeded:
		return &ErrConnectivity{Address: address, Message: s.Message()}
	default:
		return err
	}
}

// UnaryServerInterceptor returns an interceptor that extracts the cause of an error chain
// and returns it as a gRPC status error.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		rv, err := handler(ctx, req)

		// If the error is nil or a gRPC status, return as-is
		if _, ok := status.FromError(err); ok {
			return rv, err
		}

		// Otherwise, get the cause and convert to a gRPC status error
		cause := errors.Cause(err)
		return rv, status.Error(CodeFromError(cause), cause.Error())
	}
}
