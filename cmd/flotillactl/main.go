package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/flotilla/cmd/flotillactl/cmd"
	"github.com/G-Research/flotilla/internal/common"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

func main() {
	common.ConfigureCommandLineLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(int(flotillaerrors.ExitCodeFromError(err)))
	}
}
