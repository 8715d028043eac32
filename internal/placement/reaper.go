package placement

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

const defaultSweepParallelism = 8

// Reaper periodically purges entries that have been idle for longer than maxAge, forgetting hosts
// left with none. A sweep may race with a mutation on the same host; anything missed is picked up
// by the next sweep.
type Reaper struct {
	history     *History
	maxAge      time.Duration
	interval    time.Duration
	parallelism int
	clock       clock.Clock
}

type SweepResult struct {
	Swept   int
	Retired int
}

func NewReaper(history *History, maxAge time.Duration, interval time.Duration, parallelism int, clock clock.Clock) *Reaper {
	if parallelism <= 0 {
		parallelism = defaultSweepParallelism
	}
	return &Reaper{
		history:     history,
		maxAge:      maxAge,
		interval:    interval,
		parallelism: parallelism,
		clock:       clock,
	}
}

// Sweep purges every known host once, at most parallelism hosts at a time.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	cutoff := r.clock.Now().Add(-r.maxAge)
	hosts := r.history.Hosts()

	var retired int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, host := range hosts {
		host := host
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !r.history.PurgeUnusedEntries(host, cutoff) {
				atomic.AddInt64(&retired, 1)
			}
			return nil
		})
	}
	err := g.Wait()
	result := SweepResult{Swept: len(hosts), Retired: int(retired)}
	if err != nil {
		return result, err
	}
	log.Debugf("Placement sweep checked %d hosts and retired %d", result.Swept, result.Retired)
	return result, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.clock.After(r.interval):
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("Placement sweep failed")
			}
		}
	}
}
