package common

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
)

var (
	logMetricsOnce sync.Once
	logMetricsErr  error
)

// ExportLogMetrics counts every log message by level in log_messages_total on the default prometheus
// registry. Only the first call installs the hook.
func ExportLogMetrics() error {
	logMetricsOnce.Do(func() {
		hook, err := promrus.NewPrometheusHook()
		if err != nil {
			logMetricsErr = errors.Wrap(err, "error registering log metrics")
			return
		}
		log.AddHook(hook)
	})
	return logMetricsErr
}
