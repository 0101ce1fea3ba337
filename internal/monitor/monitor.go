// Package monitor drives the per-service health state machines and restart
// orchestration.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/xnetvn/monitord/internal/checks"
	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/cooldown"
	"github.com/xnetvn/monitord/internal/events"
	"github.com/xnetvn/monitord/internal/shell"
	"github.com/xnetvn/monitord/internal/svcmgr"
)

// State is one service's position in the recovery lifecycle.
type State string

const (
	StateHealthy    State = "healthy"
	StateFailing    State = "failing"
	StateRecovering State = "recovering"
	StateCooldown   State = "cooldown"
	StateEscalated  State = "escalated"
)

// Notifier receives events worth alerting on. Implemented by the
// notification dispatcher; the monitor never waits on delivery.
type Notifier interface {
	Notify(event events.Event)
}

// maxConcurrentChecks bounds how many service checks run per tick.
const maxConcurrentChecks = 8

// ServiceMonitor checks all configured services and recovers failed ones.
type ServiceMonitor struct {
	cfg       config.ServiceMonitor
	runner    shell.Runner
	mgr       svcmgr.Manager
	cooldowns *cooldown.Tracker
	notifier  Notifier
	log       *logrus.Entry

	// sleep is swapped in tests to avoid real restart waits.
	sleep func(ctx context.Context, d time.Duration)

	mu       sync.Mutex
	services []*serviceState
}

// serviceState is the live state for one monitored service. Guarded by the
// monitor mutex except during the check/restart itself, which runs with the
// state marked busy.
type serviceState struct {
	cfg       config.Service
	checker   checks.Checker
	state     State
	attempts  int
	lastCheck time.Time
	busy      bool
}

// New builds checkers for every enabled service and returns the monitor.
func New(
	cfg config.ServiceMonitor,
	runner shell.Runner,
	mgr svcmgr.Manager,
	tracker *cooldown.Tracker,
	notifier Notifier,
	netOpts checks.NetworkOptions,
	log *logrus.Entry,
) (*ServiceMonitor, error) {
	m := &ServiceMonitor{
		cfg:       cfg,
		runner:    runner,
		mgr:       mgr,
		cooldowns: tracker,
		notifier:  notifier,
		log:       log,
		sleep:     sleepCtx,
	}
	for _, svc := range cfg.Services {
		if !svc.IsEnabled() {
			log.WithField("service", svc.Name).Debug("service disabled, skipping")
			continue
		}
		checker, err := checks.Build(svc, runner, mgr, netOpts)
		if err != nil {
			return nil, fmt.Errorf("building check for %s: %w", svc.Name, err)
		}
		m.services = append(m.services, &serviceState{
			cfg:     svc,
			checker: checker,
			state:   StateHealthy,
		})
	}
	return m, nil
}

// Tick checks every due service. Checks run concurrently but each service's
// own check-and-recover sequence is serial.
func (m *ServiceMonitor) Tick(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var due []*serviceState
	for _, s := range m.services {
		if s.busy {
			continue
		}
		interval := s.cfg.CheckInterval.Or(m.cfg.CheckInterval.Or(0))
		if interval > 0 && !s.lastCheck.IsZero() && now.Sub(s.lastCheck) < interval {
			continue
		}
		s.busy = true
		s.lastCheck = now
		due = append(due, s)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for _, s := range due {
		s := s
		g.Go(func() error {
			defer func() {
				m.mu.Lock()
				s.busy = false
				m.mu.Unlock()
			}()
			m.checkService(gctx, s)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
}

// States returns a snapshot of service name to state.
func (m *ServiceMonitor) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.services))
	for _, s := range m.services {
		out[s.cfg.Name] = s.state
	}
	return out
}

func (m *ServiceMonitor) setState(s *serviceState, next State) {
	m.mu.Lock()
	prev := s.state
	s.state = next
	m.mu.Unlock()
	if prev != next {
		m.log.WithFields(logrus.Fields{
			"service": s.cfg.Name,
			"from":    prev,
			"to":      next,
		}).Info("service state changed")
	}
}

func (m *ServiceMonitor) restartOnFailure() bool {
	return m.cfg.ActionOnFailure == "restart" || m.cfg.ActionOnFailure == "restart_and_notify"
}

func (m *ServiceMonitor) checkService(ctx context.Context, s *serviceState) {
	log := m.log.WithField("service", s.cfg.Name)

	res := s.checker.Check(ctx)
	if res.Err != nil {
		// A check that cannot run counts as a failed check.
		log.WithError(res.Err).Warn("health check errored")
		res.Healthy = false
		if res.Detail == "" {
			res.Detail = res.Err.Error()
		}
	}

	if res.Healthy {
		m.observeHealthy(s, res, log)
		return
	}

	log.WithField("detail", res.Detail).Warn("service check failed")
	m.setState(s, StateFailing)

	// Every failed check is reported, whatever action_on_failure says;
	// routing and rate limiting are the dispatcher's concern.
	m.notifier.Notify(events.NewServiceDown(s.cfg.Name, s.checker.Describe(), res.Detail, s.cfg.Critical))

	if !m.restartOnFailure() {
		return
	}

	m.mu.Lock()
	attempts := s.attempts
	m.mu.Unlock()

	if attempts >= m.cfg.MaxRestartAttempts {
		// Already escalated; keep checking and alerting but never restart.
		m.setState(s, StateEscalated)
		return
	}

	window := s.cfg.ActionCooldown.Or(m.cfg.ActionCooldown.Or(m.cfg.RestartCooldown.Or(0)))
	if !m.cooldowns.TryAcquire("restart:"+s.cfg.Name, window) {
		log.Debug("restart suppressed by cooldown")
		m.setState(s, StateCooldown)
		return
	}

	m.recover(ctx, s, attempts+1, log)
}

func (m *ServiceMonitor) observeHealthy(s *serviceState, res checks.Result, log *logrus.Entry) {
	m.mu.Lock()
	prev := s.state
	s.attempts = 0
	m.mu.Unlock()

	m.setState(s, StateHealthy)
	if prev != StateHealthy && prev != StateRecovering {
		log.Info("service is healthy again")
		m.notifier.Notify(events.NewServiceRecovered(s.cfg.Name, res.Detail))
	}
}

// recover runs one restart attempt: hooks, restart commands, wait, re-check.
func (m *ServiceMonitor) recover(ctx context.Context, s *serviceState, attempt int, log *logrus.Entry) {
	m.setState(s, StateRecovering)
	log.WithFields(logrus.Fields{
		"attempt": attempt,
		"max":     m.cfg.MaxRestartAttempts,
	}).Info("attempting service restart")

	m.notifier.Notify(events.NewServiceRecoveryStart(s.cfg.Name, attempt, m.cfg.MaxRestartAttempts))

	m.runHook(ctx, s.cfg.PreRestartHook, "pre_restart_hook", log)
	restartErr := m.runRestartCommands(ctx, s, log)
	m.runHook(ctx, s.cfg.PostRestartHook, "post_restart_hook", log)

	if restartErr != nil {
		log.WithError(restartErr).Error("restart command failed")
	}

	m.sleep(ctx, m.cfg.RestartWaitTime.Or(0))

	res := s.checker.Check(ctx)
	if res.Healthy {
		m.mu.Lock()
		s.attempts = 0
		m.mu.Unlock()
		m.setState(s, StateHealthy)
		log.Info("service recovered")
		m.notifier.Notify(events.NewServiceRecovered(s.cfg.Name, res.Detail))
		return
	}

	m.mu.Lock()
	s.attempts = attempt
	exhausted := s.attempts >= m.cfg.MaxRestartAttempts
	m.mu.Unlock()

	if exhausted {
		m.setState(s, StateEscalated)
		log.WithField("attempts", attempt).Error("restart attempts exhausted, escalating")
		m.notifier.Notify(events.NewServiceEscalated(s.cfg.Name, attempt, res.Detail))
		return
	}

	m.setState(s, StateCooldown)
	log.WithFields(logrus.Fields{
		"attempt": attempt,
		"detail":  res.Detail,
	}).Warn("service still failing after restart")
}

// runRestartCommands executes the service's restart command list in order.
// Without an explicit list the service manager's restart command is used.
// By default every command runs and failures are recorded; stop_on_error
// stops at the first non-zero exit.
func (m *ServiceMonitor) runRestartCommands(ctx context.Context, s *serviceState, log *logrus.Entry) error {
	commands := []string(s.cfg.RestartCommands)
	if len(commands) == 0 {
		if m.mgr == nil {
			return fmt.Errorf("no restart_command configured and no service manager available")
		}
		name := s.cfg.ServiceName
		if name == "" {
			name = s.cfg.Name
		}
		commands = []string{m.mgr.RestartCommand(name)}
	}

	var firstErr error
	for _, command := range commands {
		res := shell.RunWithTimeout(ctx, m.runner, command, shell.DefaultTimeout)
		if res.Success() {
			log.WithField("command", command).Debug("restart command succeeded")
			continue
		}
		err := fmt.Errorf("%s: exit %d: %s", command, res.ExitCode, res.Output())
		if res.Err != nil {
			err = fmt.Errorf("%s: %w", command, res.Err)
		}
		if firstErr == nil {
			firstErr = err
		}
		log.WithError(err).Warn("restart command failed")
		if m.cfg.StopOnError {
			break
		}
	}
	return firstErr
}

// runHook runs an optional lifecycle hook. Hook failures are logged and
// never abort the recovery.
func (m *ServiceMonitor) runHook(ctx context.Context, command, name string, log *logrus.Entry) {
	if command == "" {
		return
	}
	res := shell.RunWithTimeout(ctx, m.runner, command, shell.DefaultTimeout)
	if !res.Success() {
		log.WithFields(logrus.Fields{
			"hook":   name,
			"output": res.Output(),
		}).Warn("hook failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
