// Package fakebroker serves an in-memory resource broker together with the coordinators of the
// clusters it runs, so that flotillactl can be used without a real broker.
package fakebroker

import (
	"context"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"k8s.io/utils/clock"

	"github.com/G-Research/flotilla/internal/appmaster"
	"github.com/G-Research/flotilla/internal/broker"
	"github.com/G-Research/flotilla/internal/common/config"
	grpcCommon "github.com/G-Research/flotilla/internal/common/grpc"
	"github.com/G-Research/flotilla/internal/fakebroker/configuration"
	"github.com/G-Research/flotilla/internal/store"
)

const shutdownGracePeriod = 5 * time.Second

// Register adds the broker service backed by b and a coordinator deploying clusters from specs to
// server. Stopping a cluster finishes its instance.
func Register(server *grpc.Server, b *broker.InMemory, specs *store.SpecificationStore, clock clock.Clock) *appmaster.Coordinator {
	coordinator := appmaster.NewCoordinator(specs.Load, b.Finish, clock)
	broker.RegisterBrokerServer(server, broker.NewServer(b))
	appmaster.RegisterClusterCoordinatorServer(server, coordinator)
	return coordinator
}

// Serve runs the fake broker until ctx is cancelled.
func Serve(ctx context.Context, cfg *configuration.FakeBrokerConfig) error {
	if err := config.Validate(cfg); err != nil {
		return errors.Wrap(err, "invalid fake broker configuration")
	}
	s, closeStore, err := store.Open(cfg.Store, afero.NewOsFs())
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.WithError(err).Warn("error closing specification store")
		}
	}()

	c := clock.RealClock{}
	b := broker.NewInMemory(c).
		WithEndpoint(cfg.AdvertisedHost, cfg.Grpc.Port).
		WithAdvance(cfg.Advance)

	grpcServer := grpcCommon.CreateGrpcServer(cfg.Grpc.KeepaliveParams, cfg.Grpc.KeepaliveEnforcementPolicy)
	Register(grpcServer, b, store.NewSpecificationStore(s), c)
	grpc_prometheus.Register(grpcServer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcCommon.Listen(cfg.Grpc.Port, grpcServer)
	})
	g.Go(grpcCommon.CreateShutdownHandler(ctx, shutdownGracePeriod, grpcServer))
	return g.Wait()
}
