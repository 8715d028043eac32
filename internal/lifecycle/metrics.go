package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

const MetricPrefix = "flotilla_lifecycle_"

var operationsMetric = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "operations_total",
		Help: "Number of lifecycle operations by outcome",
	},
	[]string{"operation", "exit_code"},
)

// recordOperation is deferred by every public operation with a pointer to its named error result.
func recordOperation(operation string, err *error) {
	operationsMetric.WithLabelValues(operation, flotillaerrors.ExitCodeFromError(*err).String()).Inc()
}
