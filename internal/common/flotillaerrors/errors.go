// Package flotillaerrors contains the error taxonomy shared by the lifecycle manager, the stores and
// the RPC clients. Every error returned to the command line is mapped onto exactly one ExitCode by
// ExitCodeFromError, and gRPC handlers map the same types onto status codes via CodeFromError.
//
// If multiple errors occur in some function (e.g., several invalid role counts), that function should
// return an error of type multierror.Error from package github.com/hashicorp/go-multierror that
// encapsulates those individual errors.
package flotillaerrors

import (
	"fmt"
	"time"
)

// ErrAlreadyExists is a generic error to be returned whenever some resource already exists.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrAlreadyExists struct {
	Type    string // Resource type, e.g., "cluster" or "key"
	Value   string // Resource name, e.g., "c1"
	Message string // An optional message to include in the error message
}

func (err *ErrAlreadyExists) Error() (s string) {
	if err.Value == "" && err.Message != "" {
		return err.Message
	}
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q already exists", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q already exists", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
//
// See ErrAlreadyExists for more info.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Value == "" && err.Message != "" {
		return err.Message
	}
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "workers"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Name == "" && err.Message != "" {
		return err.Message
	}
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", fmt.Sprint(err.Value), err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", fmt.Sprint(err.Value), err.Name, err.Message)
}

// ErrBadClusterState is returned when the persisted or live state of a cluster forbids the requested
// action: name collisions, detected create/destroy races and missing mandatory inputs.
type ErrBadClusterState struct {
	Cluster string
	Message string
}

func (err *ErrBadClusterState) Error() string {
	if err.Cluster == "" {
		return err.Message
	}
	return fmt.Sprintf("%s: %s", err.Cluster, err.Message)
}

// ErrUnknownCluster is returned when no instance or specification matches a cluster name.
type ErrUnknownCluster struct {
	Cluster string
}

func (err *ErrUnknownCluster) Error() string {
	return fmt.Sprintf("cluster not found: %q", err.Cluster)
}

// ErrConnectivity is returned when the address of a deployed coordinator or of the broker is unusable.
type ErrConnectivity struct {
	Cluster string
	Address string
	Message string
}

func (err *ErrConnectivity) Error() string {
	s := "connectivity problem"
	if err.Cluster != "" {
		s = fmt.Sprintf("%s: %s", err.Cluster, s)
	}
	if err.Address != "" {
		s = fmt.Sprintf("%s with %q", s, err.Address)
	}
	if err.Message != "" {
		s = fmt.Sprintf("%s; %s", s, err.Message)
	}
	return s
}

// ErrTimedOut is returned by an operation whose bounded wait expired.
type ErrTimedOut struct {
	Cluster string
	Waiting string // What was being waited for, e.g., "state ACCEPTED"
	Budget  time.Duration
}

func (err *ErrTimedOut) Error() string {
	if err.Cluster == "" {
		return fmt.Sprintf("timed out after %s waiting for %s", err.Budget, err.Waiting)
	}
	return fmt.Sprintf("%s: timed out after %s waiting for %s", err.Cluster, err.Budget, err.Waiting)
}

// ErrUnimplemented is returned for actions the tool does not support.
type ErrUnimplemented struct {
	Action string
}

func (err *ErrUnimplemented) Error() string {
	return fmt.Sprintf("unimplemented: %s", err.Action)
}

// ErrInvalidSpecification is returned when a persisted cluster specification is malformed or does
// not match the expected schema. It is distinct from a missing specification.
type ErrInvalidSpecification struct {
	Path    string
	Message string
}

func (err *ErrInvalidSpecification) Error() string {
	return fmt.Sprintf("invalid cluster specification %s: %s", err.Path, err.Message)
}

// ErrInstanceExited is returned when a submitted instance reached a terminal state other than
// a successful finish. Code holds which of the three failure outcomes applies.
type ErrInstanceExited struct {
	Cluster     string
	InstanceId  string
	State       string
	FinalStatus string
	Code        ExitCode
}

func (err *ErrInstanceExited) Error() string {
	return fmt.Sprintf(
		"%s: instance %s ended in state %s with final status %s",
		err.Cluster, err.InstanceId, err.State, err.FinalStatus,
	)
}
