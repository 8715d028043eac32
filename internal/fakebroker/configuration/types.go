package configuration

import (
	grpcconfig "github.com/G-Research/flotilla/internal/common/grpc/configuration"
	lifecycleconfig "github.com/G-Research/flotilla/internal/lifecycle/configuration"
)

type FakeBrokerConfig struct {
	Grpc        grpcconfig.GrpcConfig
	MetricsPort uint16
	// AdvertisedHost is reported as the coordinator host of running instances. Coordinators
	// share the broker's port.
	AdvertisedHost string `validate:"required"`
	// Advance moves an instance one state towards RUNNING each time its report is fetched.
	Advance bool
	// Store holds the cluster specifications coordinators deploy from; it must be the store
	// flotillactl is configured with.
	Store lifecycleconfig.StoreConfig
}
