// Package broker is the client side of the shared compute cluster's resource broker: the service
// that accepts application submissions, tracks their lifecycle and kills them on request.
package broker

import (
	"context"
	"fmt"
	"strings"
)

// InstanceState is the broker's view of a submitted application. States are ordered: waiting for
// "state X or later" is an ordinal comparison.
type InstanceState int

const (
	StateNew InstanceState = iota
	StateSubmitted
	StateAccepted
	StateRunning
	StateFinished
	StateFailed
	StateKilled
)

var instanceStateNames = []string{"NEW", "SUBMITTED", "ACCEPTED", "RUNNING", "FINISHED", "FAILED", "KILLED"}

func (s InstanceState) String() string {
	if s < 0 || int(s) >= len(instanceStateNames) {
		return fmt.Sprintf("InstanceState(%d)", int(s))
	}
	return instanceStateNames[s]
}

// IsLive is true for states at or before RUNNING.
func (s InstanceState) IsLive() bool {
	return s <= StateRunning
}

func (s InstanceState) IsTerminal() bool {
	return !s.IsLive()
}

// Reached reports whether s is target or any later state.
func (s InstanceState) Reached(target InstanceState) bool {
	return s >= target
}

func (s InstanceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *InstanceState) UnmarshalText(text []byte) error {
	state, err := ParseInstanceState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

func ParseInstanceState(s string) (InstanceState, error) {
	for i, name := range instanceStateNames {
		if strings.EqualFold(name, s) {
			return InstanceState(i), nil
		}
	}
	return StateNew, fmt.Errorf("unknown instance state %q", s)
}

// FinalStatus is how a terminal instance ended, as reported by the application itself.
type FinalStatus int

const (
	FinalStatusUndefined FinalStatus = iota
	FinalStatusSucceeded
	FinalStatusFailed
	FinalStatusKilled
)

var finalStatusNames = []string{"UNDEFINED", "SUCCEEDED", "FAILED", "KILLED"}

func (f FinalStatus) String() string {
	if f < 0 || int(f) >= len(finalStatusNames) {
		return fmt.Sprintf("FinalStatus(%d)", int(f))
	}
	return finalStatusNames[f]
}

func (f FinalStatus) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FinalStatus) UnmarshalText(text []byte) error {
	for i, name := range finalStatusNames {
		if strings.EqualFold(name, string(text)) {
			*f = FinalStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown final status %q", string(text))
}

type InstanceReport struct {
	Id          string        `json:"id"`
	Name        string        `json:"name"`
	User        string        `json:"user"`
	Type        string        `json:"type"`
	Queue       string        `json:"queue,omitempty"`
	Host        string        `json:"host,omitempty"`
	RpcPort     int           `json:"rpcPort,omitempty"`
	State       InstanceState `json:"state"`
	FinalStatus FinalStatus   `json:"finalStatus"`
	Diagnostics string        `json:"diagnostics,omitempty"`
	StartTime   int64         `json:"startTime,omitempty"`
}

func (r *InstanceReport) String() string {
	return fmt.Sprintf("%s %s (%s) user=%s state=%s final=%s host=%s:%d",
		r.Id, r.Name, r.Type, r.User, r.State, r.FinalStatus, r.Host, r.RpcPort)
}

type Resource struct {
	MemoryMb     int `json:"memoryMb"`
	VirtualCores int `json:"virtualCores"`
}

// LocalResource is a file or directory made available in the working directory of the launched process.
type LocalResource struct {
	Path      string `json:"path"`
	Directory bool   `json:"directory,omitempty"`
}

// LaunchDescriptor describes everything the broker needs to start the coordinator of a cluster.
type LaunchDescriptor struct {
	Name           string                   `json:"name"`
	Type           string                   `json:"type"`
	User           string                   `json:"user"`
	Queue          string                   `json:"queue"`
	Priority       int                      `json:"priority"`
	MaxAttempts    int                      `json:"maxAttempts,omitempty"`
	Resource       Resource                 `json:"resource"`
	Environment    map[string]string        `json:"environment,omitempty"`
	Classpath      []string                 `json:"classpath,omitempty"`
	LocalResources map[string]LocalResource `json:"localResources,omitempty"`
	Command        []string                 `json:"command"`
}

// Client is implemented by the in-process broker and by the gRPC client.
type Client interface {
	Submit(ctx context.Context, descriptor *LaunchDescriptor) (string, error)
	GetReport(ctx context.Context, instanceId string) (*InstanceReport, error)
	ListByType(ctx context.Context, applicationType string) ([]*InstanceReport, error)
	Kill(ctx context.Context, instanceId string) error
}
