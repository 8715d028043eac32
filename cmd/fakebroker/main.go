package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/G-Research/flotilla/internal/common"
	"github.com/G-Research/flotilla/internal/fakebroker"
	"github.com/G-Research/flotilla/internal/fakebroker/configuration"
)

const CustomConfigLocation string = "config"

func main() {
	common.ConfigureLogging()
	userSpecifiedConfigs := pflag.StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)
	pflag.Parse()

	var config configuration.FakeBrokerConfig
	if _, err := common.LoadConfig(&config, "./config/fakebroker", *userSpecifiedConfigs); err != nil {
		log.Fatal(err)
	}

	if err := common.ExportLogMetrics(); err != nil {
		log.Fatal(err)
	}
	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Infof("Starting fake broker on port %d", config.Grpc.Port)
	if err := fakebroker.Serve(ctx, &config); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
