// Package poll provides a single-threaded bounded wait: a probe is called at a fixed interval until
// it reports completion or a deadline, computed once on entry, passes.
package poll

import (
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

const DefaultInterval = time.Second

// Probe is called once per poll. It returns true once the awaited condition holds.
// An error aborts the wait and is returned to the caller unchanged.
type Probe func() (bool, error)

type Poller struct {
	interval time.Duration
	clock    clock.Clock
}

// New returns a Poller; a non-positive interval selects DefaultInterval.
func New(interval time.Duration, clock clock.Clock) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		interval: interval,
		clock:    clock,
	}
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Until polls probe until it succeeds or budget expires. Expiry is not an error: it is reported as
// (false, nil) and the caller decides what to do next. A non-positive budget is rejected before the
// first poll.
//
// There is no cancellation; callers that need one should bound budget themselves. The poller sleeps
// between every pair of polls, the final sleep being cut short at the deadline.
func (p *Poller) Until(budget time.Duration, probe Probe) (bool, error) {
	if budget <= 0 {
		return false, &flotillaerrors.ErrInvalidArgument{
			Name:    "timeout",
			Value:   budget,
			Message: "monitoring duration must be positive",
		}
	}
	deadline := p.clock.Now().Add(budget)
	for attempt := 1; ; attempt++ {
		done, err := probe()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			log.Debugf("Wait limit of %s exceeded after %d polls", budget, attempt)
			return false, nil
		}
		if remaining > p.interval {
			remaining = p.interval
		}
		p.clock.Sleep(remaining)
	}
}
