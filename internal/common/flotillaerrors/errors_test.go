package flotillaerrors

import (
	"context"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCodeFromError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want codes.Code
	}{
		"ErrAlreadyExists":                {&ErrAlreadyExists{}, codes.AlreadyExists},
		"ErrNotFound":                     {&ErrNotFound{}, codes.NotFound},
		"ErrUnknownCluster":               {&ErrUnknownCluster{}, codes.NotFound},
		"ErrInvalidArgument":              {&ErrInvalidArgument{}, codes.InvalidArgument},
		"ErrBadClusterState":              {&ErrBadClusterState{}, codes.FailedPrecondition},
		"ErrUnimplemented":                {&ErrUnimplemented{}, codes.Unimplemented},
		"pkg.Error => ErrAlreadyExists":   {errors.WithMessage(&ErrAlreadyExists{}, "foo"), codes.AlreadyExists},
		"pkg.Error => ErrNotFound":        {errors.WithMessage(&ErrNotFound{}, "foo"), codes.NotFound},
		"pkg.Error => ErrInvalidArgument": {errors.WithMessage(&ErrInvalidArgument{}, "foo"), codes.InvalidArgument},
		"pkg.Error":                       {errors.New("foo"), codes.Unknown},
		"nil":                             {nil, codes.OK},
		"gRPC status":                     {status.New(codes.Internal, "foo").Err(), codes.Internal},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, CodeFromError(tc.err))
		})
	}
}

func TestExitCodeFromError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want ExitCode
	}{
		"nil":                 {nil, ExitSuccess},
		"invalid argument":    {&ErrInvalidArgument{Name: "workers", Value: -1}, ExitBadArguments},
		"wrapped bad state":   {errors.Wrap(&ErrBadClusterState{Cluster: "c1", Message: "race"}, "destroy"), ExitBadClusterState},
		"already exists":      {&ErrAlreadyExists{Type: "cluster", Value: "c1"}, ExitBadClusterState},
		"invalid spec":        {&ErrInvalidSpecification{Path: "p", Message: "m"}, ExitBadClusterState},
		"unknown cluster":     {&ErrUnknownCluster{Cluster: "c1"}, ExitUnknownCluster},
		"not found":           {&ErrNotFound{Type: "cluster", Value: "c1"}, ExitUnknownCluster},
		"connectivity":        {&ErrConnectivity{Address: "h:0"}, ExitConnectivityProblem},
		"timed out":           {&ErrTimedOut{Waiting: "ACCEPTED"}, ExitTimedOut},
		"unimplemented":       {&ErrUnimplemented{Action: "foo"}, ExitUnimplemented},
		"killed":              {&ErrInstanceExited{Code: ExitServiceKilled}, ExitServiceKilled},
		"failed":              {&ErrInstanceExited{Code: ExitServiceFailed}, ExitServiceFailed},
		"finished with error": {&ErrInstanceExited{Code: ExitServiceFinishedWithError}, ExitServiceFinishedWithError},
		"multierror":          {multierror.Append(nil, &ErrInvalidArgument{Name: "a"}, &ErrUnknownCluster{}), ExitBadArguments},
		"plain error":         {errors.New("boom"), ExitBadClusterState},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCodeFromError(tc.err))
		})
	}
}

func TestErrorFromStatus_RoundTrip(t *testing.T) {
	tests := map[string]struct {
		err  error
		want ExitCode
	}{
		"already exists": {&ErrAlreadyExists{Type: "cluster", Value: "c1"}, ExitBadClusterState},
		"not found":      {&ErrNotFound{Type: "instance", Value: "i1"}, ExitUnknownCluster},
		"bad state":      {&ErrBadClusterState{Cluster: "c1", Message: "running"}, ExitBadClusterState},
		"invalid":        {&ErrInvalidArgument{Name: "n", Value: 1}, ExitBadArguments},
		"unavailable":    {status.Error(codes.Unavailable, "connection refused"), ExitConnectivityProblem},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			wire := status.Error(CodeFromError(tc.err), tc.err.Error())
			got := ErrorFromStatus(wire, "localhost:1")
			assert.Equal(t, tc.want, ExitCodeFromError(got))
			assert.Contains(t, got.Error(), status.Convert(wire).Message())
		})
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	var handlerErr error
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, handlerErr
	}
	f := UnaryServerInterceptor()

	// nils should be passed through as-is
	handlerErr = nil
	_, err := f(context.Background(), nil, nil, handler)
	assert.NoError(t, err)

	// gRPC-style errors should be passed through as-is
	handlerErr = status.Error(codes.Aborted, "foo")
	_, err = f(context.Background(), nil, nil, handler)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Aborted, st.Code())

	// a chain of errors should result in the message of the cause error being returned
	innerErr := &ErrAlreadyExists{Type: "cluster", Value: "c1"}
	handlerErr = errors.WithMessage(innerErr, "foo")
	_, err = f(context.Background(), nil, nil, handler)
	st, ok = status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.AlreadyExists, st.Code())
	assert.Equal(t, innerErr.Error(), st.Message())
}
