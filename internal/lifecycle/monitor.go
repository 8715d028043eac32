package lifecycle

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/flotilla/internal/broker"
	"github.com/G-Research/flotilla/internal/common"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

// MonitorToState polls the broker until instanceId reaches target or any later state, or budget runs
// out. It returns the last report seen and whether target was reached; running out of budget is not
// an error. A non-positive budget is rejected with ErrInvalidArgument before the broker is called.
func (m *Manager) MonitorToState(instanceId string, target broker.InstanceState, budget time.Duration) (*broker.InstanceReport, bool, error) {
	var last *broker.InstanceReport
	reached, err := m.poller.Until(budget, func() (bool, error) {
		ctx, cancel := common.ContextWithTimeout(m.config.RpcTimeout)
		defer cancel()
		report, err := m.broker.GetReport(ctx, instanceId)
		if err != nil {
			return false, err
		}
		last = report
		log.Debugf("Instance %s is %s, waiting for %s", instanceId, report.State, target)
		return report.State.Reached(target), nil
	})
	if err != nil {
		return nil, false, err
	}
	return last, reached, nil
}

// exitOutcome maps the final report of an instance onto the error reported for it. A nil report means
// the wait for it timed out: the instance is killed and ErrTimedOut returned.
func (m *Manager) exitOutcome(name string, instanceId string, report *broker.InstanceReport, waiting string, budget time.Duration) error {
	if report == nil {
		m.kill(name, instanceId)
		return &flotillaerrors.ErrTimedOut{Cluster: name, Waiting: waiting, Budget: budget}
	}
	code := flotillaerrors.ExitSuccess
	switch report.State {
	case broker.StateFinished:
		if report.FinalStatus != broker.FinalStatusSucceeded {
			code = flotillaerrors.ExitServiceFinishedWithError
		}
	case broker.StateKilled:
		code = flotillaerrors.ExitServiceKilled
	case broker.StateFailed:
		code = flotillaerrors.ExitServiceFailed
	}
	if code == flotillaerrors.ExitSuccess {
		return nil
	}
	log.Warnf("Instance %s of cluster %s ended: %s", instanceId, name, report.Diagnostics)
	return &flotillaerrors.ErrInstanceExited{
		Cluster:     name,
		InstanceId:  instanceId,
		State:       report.State.String(),
		FinalStatus: report.FinalStatus.String(),
		Code:        code,
	}
}
