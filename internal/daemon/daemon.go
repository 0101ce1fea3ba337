// Package daemon wires the monitors together and drives the main loop:
// periodic ticks, configuration reload, and graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xnetvn/monitord/internal/checks"
	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/cooldown"
	"github.com/xnetvn/monitord/internal/events"
	"github.com/xnetvn/monitord/internal/journal"
	"github.com/xnetvn/monitord/internal/monitor"
	"github.com/xnetvn/monitord/internal/notify"
	"github.com/xnetvn/monitord/internal/resource"
	"github.com/xnetvn/monitord/internal/shell"
	"github.com/xnetvn/monitord/internal/svcmgr"
	"github.com/xnetvn/monitord/internal/update"
)

// Runtime is one fully-constructed set of monitors for one configuration.
// Reload builds a fresh Runtime and swaps it in whole; nothing is mutated
// in place.
type Runtime struct {
	Config     *config.Config
	Services   *monitor.ServiceMonitor
	Resources  *resource.Monitor
	Updates    *update.Checker
	Dispatcher *notify.Dispatcher
	Journal    *journal.Journal
}

// journalingNotifier records every event before forwarding it. Journal
// failures are logged and never block delivery.
type journalingNotifier struct {
	journal *journal.Journal
	next    *notify.Dispatcher
	log     *logrus.Entry
}

func (n *journalingNotifier) Notify(e events.Event) {
	if n.journal != nil {
		if err := n.journal.Record(e); err != nil {
			n.log.WithError(err).Warn("journaling event failed")
		}
	}
	n.next.Notify(e)
}

// BuildRuntime constructs all components from a validated configuration.
func BuildRuntime(cfg *config.Config, version string, applier update.Applier, log *logrus.Logger) (*Runtime, error) {
	netOpts := checks.NetworkOptions{OnlyIPv4: cfg.Network.OnlyIPv4}
	runner := shell.NewRunner()

	dispatcher, err := notify.New(cfg.Notifications, netOpts, log.WithField("component", "notify"))
	if err != nil {
		return nil, fmt.Errorf("building notifier: %w", err)
	}

	var jnl *journal.Journal
	if cfg.General.WorkDir != "" {
		jnl, err = journal.Open(filepath.Join(cfg.General.WorkDir, "events.db"))
		if err != nil {
			// The journal is diagnostics only; run without it.
			log.WithError(err).Warn("event journal unavailable")
		}
	}
	notifier := &journalingNotifier{
		journal: jnl,
		next:    dispatcher,
		log:     log.WithField("component", "journal"),
	}

	mgr, err := svcmgr.Detect(runner, cfg.ServiceMonitor.ServiceManager)
	if err != nil {
		// Only manager-based checks and restarts need an init system;
		// monitor construction fails later if one of those is configured.
		log.WithError(err).Warn("no service manager available")
		mgr = nil
	}

	tracker := cooldown.NewTracker()
	rt := &Runtime{
		Config:     cfg,
		Dispatcher: dispatcher,
		Journal:    jnl,
	}

	if config.BoolOr(cfg.ServiceMonitor.Enabled, true) {
		rt.Services, err = monitor.New(
			cfg.ServiceMonitor, runner, mgr, tracker, notifier, netOpts,
			log.WithField("component", "monitor"),
		)
		if err != nil {
			return nil, fmt.Errorf("building service monitor: %w", err)
		}
	}

	if config.BoolOr(cfg.ResourceMonitor.Enabled, true) {
		var restarter resource.Restarter
		if mgr != nil {
			restarter = mgr
		}
		rt.Resources = resource.New(
			cfg.ResourceMonitor, &resource.ProcSampler{}, runner, restarter,
			tracker, notifier, log.WithField("component", "resource"),
		)
	}

	var updateRestarter update.Restarter
	if mgr != nil {
		updateRestarter = mgr
	}
	rt.Updates = update.New(
		cfg.UpdateChecker, version, netOpts, notifier, applier, updateRestarter,
		log.WithField("component", "update"),
	)

	return rt, nil
}

// Daemon owns the current runtime and the scheduling loop.
type Daemon struct {
	version string
	applier update.Applier
	log     *logrus.Logger

	// reloaded wakes the run loop after a runtime swap so timers and
	// startup tests pick up the new configuration.
	reloaded chan struct{}

	mu sync.RWMutex
	rt *Runtime
}

// New wraps an initial runtime.
func New(rt *Runtime, version string, applier update.Applier, log *logrus.Logger) *Daemon {
	return &Daemon{
		version:  version,
		applier:  applier,
		log:      log,
		reloaded: make(chan struct{}, 1),
		rt:       rt,
	}
}

// Runtime returns the current runtime.
func (d *Daemon) Runtime() *Runtime {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rt
}

// Reload parses cfg and swaps in a fresh runtime. On any error the current
// runtime stays active.
func (d *Daemon) Reload(cfg *config.Config) error {
	rt, err := BuildRuntime(cfg, d.version, d.applier, d.log)
	if err != nil {
		return fmt.Errorf("reload rejected: %w", err)
	}

	d.mu.Lock()
	old := d.rt
	d.rt = rt
	d.mu.Unlock()

	// In-flight work finishes on the old runtime; give its deliveries the
	// same grace as shutdown before releasing the journal handle.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), old.Config.General.ShutdownGrace.Or(30*time.Second))
		defer cancel()
		old.Dispatcher.Wait(ctx)
		if old.Journal != nil && old.Journal != rt.Journal {
			old.Journal.Close()
		}
	}()

	select {
	case d.reloaded <- struct{}{}:
	default:
	}

	d.log.Info("configuration reloaded")
	return nil
}

// Run drives the tick loop until ctx is canceled. Service checks and
// resource checks run sequentially within a tick; the update checker runs on
// its own, longer timer.
func (d *Daemon) Run(ctx context.Context) error {
	rt := d.Runtime()
	rt.Dispatcher.StartupTests()

	// Ticks run on a context that outlives ctx by the grace period, so a
	// SIGTERM mid-tick does not kill a restart command halfway through.
	workCtx, cancelWork := workContext(ctx, rt.Config.General.ShutdownGrace.Or(30*time.Second))
	defer cancelWork()

	tick := time.NewTicker(rt.Config.General.CheckInterval.Or(60 * time.Second))
	defer tick.Stop()
	updateTick := time.NewTicker(rt.Config.UpdateChecker.Interval.Or(24 * time.Hour))
	defer updateTick.Stop()

	d.log.WithField("interval", rt.Config.General.CheckInterval.Duration).Info("monitoring started")

	// First update check happens shortly after startup rather than a full
	// interval later; IsDue still gates it.
	go d.Runtime().Updates.Run(workCtx, false)

	for {
		select {
		case <-ctx.Done():
			return d.shutdown()
		case <-d.reloaded:
			rt = d.Runtime()
			tick.Reset(rt.Config.General.CheckInterval.Or(60 * time.Second))
			updateTick.Reset(rt.Config.UpdateChecker.Interval.Or(24 * time.Hour))
			rt.Dispatcher.StartupTests()
		case <-tick.C:
			d.runTick(workCtx)
		case <-updateTick.C:
			go d.Runtime().Updates.Run(workCtx, false)
		}
	}
}

// workContext returns a context that cancels one grace period after parent
// does, rather than immediately, so in-flight recovery commands can drain.
// The returned cancel releases the watcher goroutine.
func workContext(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-parent.Done():
		case <-ctx.Done():
			return
		}
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-t.C:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (d *Daemon) runTick(ctx context.Context) {
	rt := d.Runtime()
	if rt.Services != nil {
		rt.Services.Tick(ctx)
	}
	if rt.Resources != nil {
		rt.Resources.Tick(ctx)
	}
}

// shutdown lets in-flight notification deliveries finish within the grace
// period, then closes the journal.
func (d *Daemon) shutdown() error {
	rt := d.Runtime()
	grace := rt.Config.General.ShutdownGrace.Or(30 * time.Second)
	d.log.WithField("grace", grace).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	rt.Dispatcher.Wait(ctx)

	if rt.Journal != nil {
		if err := rt.Journal.Close(); err != nil {
			d.log.WithError(err).Warn("closing journal failed")
		}
	}
	return nil
}
