package flotillaerrors

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ExitCode is the process exit status reported by flotillactl.
type ExitCode int

const (
	ExitSuccess                  ExitCode = 0
	ExitBadArguments             ExitCode = 40
	ExitUnimplemented            ExitCode = 44
	ExitTimedOut                 ExitCode = 64
	ExitConnectivityProblem      ExitCode = 65
	ExitServiceFinishedWithError ExitCode = 66
	ExitServiceKilled            ExitCode = 67
	ExitServiceFailed            ExitCode = 68
	ExitUnknownCluster           ExitCode = 69
	ExitBadClusterState          ExitCode = 70
)

func (c ExitCode) String() string {
	switch c {
	case ExitSuccess:
		return "success"
	case ExitBadArguments:
		return "bad-arguments"
	case ExitUnimplemented:
		return "unimplemented"
	case ExitTimedOut:
		return "timed-out"
	case ExitConnectivityProblem:
		return "connectivity-problem"
	case ExitServiceFinishedWithError:
		return "service-finished-with-error"
	case ExitServiceKilled:
		return "service-killed"
	case ExitServiceFailed:
		return "service-failed"
	case ExitUnknownCluster:
		return "unknown-cluster"
	case ExitBadClusterState:
		return "bad-cluster-state"
	default:
		return "unknown"
	}
}

// ExitCodeFromError maps an error onto the fixed exit code enumeration.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
// A multierror is reported with the code of its first member.
func ExitCodeFromError(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	{
		var e *multierror.Error
		if errors.As(err, &e) && len(e.Errors) > 0 {
			return ExitCodeFromError(e.Errors[0])
		}
	}
	{
		var e *ErrInstanceExited
		if errors.As(err, &e) {
			return e.Code
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return ExitBadArguments
		}
	}
	{
		var e *ErrUnimplemented
		if errors.As(err, &e) {
			return ExitUnimplemented
		}
	}
	{
		var e *ErrTimedOut
		if errors.As(err, &e) {
			return ExitTimedOut
		}
	}
	{
		var e *ErrConnectivity
		if errors.As(err, &e) {
			return ExitConnectivityProblem
		}
	}
	{
		var e *ErrUnknownCluster
		if errors.As(err, &e) {
			return ExitUnknownCluster
		}
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return ExitUnknownCluster
		}
	}
	{
		var e *ErrBadClusterState
		if errors.As(err, &e) {
			return ExitBadClusterState
		}
	}
	{
		var e *ErrAlreadyExists
		if errors.As(err, &e) {
			return ExitBadClusterState
		}
	}
	{
		var e *ErrInvalidSpecification
		if errors.As(err, &e) {
			return ExitBadClusterState
		}
	}
	return ExitBadClusterState
}
