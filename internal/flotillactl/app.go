// Package flotillactl implements the commands of the flotillactl command line tool on top of the
// lifecycle manager. Commands write their results to App.Out and return errors carrying the exit code.
package flotillactl

import (
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"k8s.io/utils/clock"

	"github.com/G-Research/flotilla/internal/appmaster"
	"github.com/G-Research/flotilla/internal/broker"
	grpcCommon "github.com/G-Research/flotilla/internal/common/grpc"
	"github.com/G-Research/flotilla/internal/lifecycle"
	"github.com/G-Research/flotilla/internal/lifecycle/configuration"
	"github.com/G-Research/flotilla/internal/provider"
	"github.com/G-Research/flotilla/internal/store"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is used to write the output. Defaults to standard out,
	// but can be overridden in tests to make assertions on the applications's output.
	Out io.Writer
	// Fs holds configuration directories to upload and receives getconf output files.
	Fs afero.Fs
	// Clock paces observation rounds.
	Clock clock.Clock
	// Manager runs the lifecycle operations. If nil it is built from Params on first use.
	Manager *lifecycle.Manager

	closers []func() error
}

// Params struct holds all user-customizable parameters.
type Params struct {
	Config configuration.ClientConfig
}

// New instantiates an App with default parameters, writing to standard output.
func New() *App {
	return &App{
		Params: &Params{Config: configuration.Default()},
		Out:    os.Stdout,
		Fs:     afero.NewOsFs(),
		Clock:  clock.RealClock{},
	}
}

func (a *App) manager() (*lifecycle.Manager, error) {
	if a.Manager != nil {
		return a.Manager, nil
	}
	config := a.Params.Config
	p, err := provider.ForName(config.Provider)
	if err != nil {
		return nil, err
	}
	s, closeStore, err := store.Open(config.Store, a.Fs)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)
	brokerClient, err := broker.Dial(&grpcCommon.ConnectionDetails{Url: config.BrokerUrl, ForceNoTls: config.ForceNoTls})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, brokerClient.Close)

	a.Manager = lifecycle.New(
		config,
		store.NewSpecificationStore(s),
		a.Fs,
		brokerClient,
		appmaster.GrpcConnector(config.ForceNoTls),
		p,
		a.Clock,
	)
	return a.Manager, nil
}

// Close releases the connections opened for the manager.
func (a *App) Close() error {
	var result *multierror.Error
	for _, c := range a.closers {
		result = multierror.Append(result, c())
	}
	a.closers = nil
	return result.ErrorOrNil()
}
