package flotillactl

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/flotilla/internal/common"
	"github.com/G-Research/flotilla/internal/lifecycle"
	"github.com/G-Research/flotilla/internal/placement"
	"github.com/G-Research/flotilla/internal/provider"
)

// ObserveOnce records the placement of a running cluster and prints, per role, the hosts ranked
// for the next instance under policy.
func (a *App) ObserveOnce(name string, policy placement.Policy) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	return a.observe(m, name, policy)
}

func (a *App) observe(m *lifecycle.Manager, name string, policy placement.Policy) error {
	live, err := m.ObservePlacement(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s: %d live nodes on %d hosts\n", name, live, len(m.History().Hosts()))
	for _, role := range provider.RoleNames(m.Provider()) {
		hosts, err := m.RankHosts(role, policy)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "  %s (%s): %s\n", role, policy, strings.Join(hosts, " "))
	}
	return nil
}

// Observe keeps observing a running cluster until ctx is cancelled, purging idle hosts from the
// placement history and serving placement and lifecycle metrics on metricsPort.
func (a *App) Observe(ctx context.Context, name string, policy placement.Policy, metricsPort uint16) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	config := a.Params.Config.Placement

	collector := placement.NewCollector(m.History(), provider.RoleNames(m.Provider()))
	if err := prometheus.Register(collector); err != nil {
		return errors.Wrap(err, "error registering placement metrics")
	}
	defer prometheus.Unregister(collector)
	if err := common.ExportLogMetrics(); err != nil {
		return err
	}
	shutdownMetricServer := common.ServeMetrics(metricsPort)
	defer shutdownMetricServer()

	reaper := placement.NewReaper(m.History(), config.MaxAge, config.SweepInterval, config.Parallelism, a.Clock)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reaper.Run(ctx)
	})
	g.Go(func() error {
		for {
			if err := a.observe(m, name, policy); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-a.Clock.After(config.ObserveInterval):
			}
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Infof("Stopped observing cluster %s", name)
	return nil
}
