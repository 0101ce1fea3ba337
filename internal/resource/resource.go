// Package resource evaluates host resource thresholds (CPU load, memory,
// disk) and runs configured recovery actions when they breach.
package resource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/cooldown"
	"github.com/xnetvn/monitord/internal/events"
	"github.com/xnetvn/monitord/internal/shell"
)

// Cooldown keys per rule; a key gates both the alert and its recovery.
const (
	keyHighCPU   = "high_cpu"
	keyLowMemory = "low_memory"
	keyLowDisk   = "low_disk"
)

// recoveryCommandTimeout bounds configured recovery commands.
const recoveryCommandTimeout = 60 * time.Second

// Notifier receives resource events.
type Notifier interface {
	Notify(event events.Event)
}

// Restarter restarts a service during recovery. Satisfied by svcmgr.Manager.
type Restarter interface {
	Restart(ctx context.Context, service string) error
}

// DiskStat is the usage snapshot for one mount point.
type DiskStat struct {
	Path        string  `json:"path"`
	FreeGB      float64 `json:"free_gb"`
	FreePercent float64 `json:"free_percent"`
}

// Stats is a point-in-time resource snapshot attached to events.
type Stats struct {
	Load1      float64    `json:"load_1min"`
	Load5      float64    `json:"load_5min"`
	Load15     float64    `json:"load_15min"`
	MemTotalMB float64    `json:"mem_total_mb"`
	MemFreeMB  float64    `json:"mem_free_mb"`
	MemFreePct float64    `json:"mem_free_percent"`
	Disks      []DiskStat `json:"disks,omitempty"`
}

// Monitor evaluates the resource rules each tick.
type Monitor struct {
	cfg       config.ResourceMonitor
	sampler   Sampler
	runner    shell.Runner
	mgr       Restarter
	cooldowns *cooldown.Tracker
	notifier  Notifier
	log       *logrus.Entry

	sleep func(ctx context.Context, d time.Duration)
}

// New builds a resource monitor. mgr may be nil; service restarts are then
// skipped with a warning.
func New(
	cfg config.ResourceMonitor,
	sampler Sampler,
	runner shell.Runner,
	mgr Restarter,
	tracker *cooldown.Tracker,
	notifier Notifier,
	log *logrus.Entry,
) *Monitor {
	return &Monitor{
		cfg:       cfg,
		sampler:   sampler,
		runner:    runner,
		mgr:       mgr,
		cooldowns: tracker,
		notifier:  notifier,
		log:       log,
		sleep:     sleepCtx,
	}
}

// Tick evaluates every enabled rule once.
func (m *Monitor) Tick(ctx context.Context) {
	if m.cfg.CPULoad.Enabled {
		m.checkCPU(ctx)
	}
	if m.cfg.Memory.Enabled {
		m.checkMemory(ctx)
	}
	if m.cfg.Disk.Enabled {
		m.checkDisk(ctx)
	}
}

// Stats samples current usage for diagnostics and event payloads.
func (m *Monitor) Stats() Stats {
	var s Stats
	if l1, l5, l15, err := m.sampler.LoadAvg(); err == nil {
		s.Load1, s.Load5, s.Load15 = l1, l5, l15
	}
	if total, avail, err := m.sampler.Memory(); err == nil {
		s.MemTotalMB = total
		s.MemFreeMB = avail
		if total > 0 {
			s.MemFreePct = avail / total * 100
		}
	}
	for _, mp := range m.cfg.Disk.MountPoints {
		total, free, err := m.sampler.Disk(mp.Path)
		if err != nil || total == 0 {
			continue
		}
		s.Disks = append(s.Disks, DiskStat{
			Path:        mp.Path,
			FreeGB:      float64(free) / (1 << 30),
			FreePercent: float64(free) / float64(total) * 100,
		})
	}
	return s
}

func (m *Monitor) checkCPU(ctx context.Context) {
	rule := m.cfg.CPULoad
	l1, l5, l15, err := m.sampler.LoadAvg()
	if err != nil {
		m.log.WithError(err).Warn("cpu load sample failed")
		return
	}

	var breaches []string
	if rule.Check1Min && rule.Threshold1Min > 0 && l1 > rule.Threshold1Min {
		breaches = append(breaches, fmt.Sprintf("1min %.2f > %.2f", l1, rule.Threshold1Min))
	}
	if rule.Check5Min && rule.Threshold5Min > 0 && l5 > rule.Threshold5Min {
		breaches = append(breaches, fmt.Sprintf("5min %.2f > %.2f", l5, rule.Threshold5Min))
	}
	if rule.Check15Min && rule.Threshold15Min > 0 && l15 > rule.Threshold15Min {
		breaches = append(breaches, fmt.Sprintf("15min %.2f > %.2f", l15, rule.Threshold15Min))
	}
	if len(breaches) == 0 {
		return
	}

	m.breach(ctx, keyHighCPU,
		"CPU load above threshold",
		strings.Join(breaches, ", "),
		map[string]any{"load_1min": l1, "load_5min": l5, "load_15min": l15},
		rule.RecoveryCommand,
		m.cfg.RecoveryActions.HighCPUServices,
	)
}

func (m *Monitor) checkMemory(ctx context.Context) {
	rule := m.cfg.Memory
	total, avail, err := m.sampler.Memory()
	if err != nil {
		m.log.WithError(err).Warn("memory sample failed")
		return
	}
	freePct := 0.0
	if total > 0 {
		freePct = avail / total * 100
	}

	pctBreached := rule.FreePercentThreshold > 0 && freePct < rule.FreePercentThreshold
	mbBreached := rule.FreeMBThreshold > 0 && avail < rule.FreeMBThreshold

	breached := false
	switch rule.Condition {
	case "and":
		breached = pctBreached && mbBreached
	default: // "or"
		breached = pctBreached || mbBreached
	}
	if !breached {
		return
	}

	m.breach(ctx, keyLowMemory,
		"free memory below threshold",
		fmt.Sprintf("%.0f MB free (%.1f%% of %.0f MB)", avail, freePct, total),
		map[string]any{"mem_free_mb": avail, "mem_free_percent": freePct, "mem_total_mb": total},
		rule.RecoveryCommand,
		m.cfg.RecoveryActions.LowMemoryServices,
	)
}

func (m *Monitor) checkDisk(ctx context.Context) {
	rule := m.cfg.Disk
	mounts := rule.MountPoints
	if len(mounts) == 0 {
		mounts = []config.MountPoint{{Path: "/"}}
	}

	var breaches []string
	data := map[string]any{}
	for _, mp := range mounts {
		total, free, err := m.sampler.Disk(mp.Path)
		if err != nil {
			m.log.WithError(err).WithField("mount", mp.Path).Warn("disk sample failed")
			continue
		}
		if total == 0 {
			continue
		}
		freePct := float64(free) / float64(total) * 100
		freeGB := float64(free) / (1 << 30)
		data[mp.Path] = map[string]any{"free_gb": freeGB, "free_percent": freePct}

		pctLimit := rule.FreePercentThreshold
		if mp.FreePercentThreshold != nil {
			pctLimit = *mp.FreePercentThreshold
		}
		gbLimit := rule.FreeGBThreshold
		if mp.FreeGBThreshold != nil {
			gbLimit = *mp.FreeGBThreshold
		}
		var mbLimit float64
		if mp.FreeMBThreshold != nil {
			mbLimit = *mp.FreeMBThreshold
		}

		switch {
		case pctLimit > 0 && freePct < pctLimit:
			breaches = append(breaches, fmt.Sprintf("%s: %.1f%% free < %.1f%%", mp.Path, freePct, pctLimit))
		case gbLimit > 0 && freeGB < gbLimit:
			breaches = append(breaches, fmt.Sprintf("%s: %.1f GB free < %.1f GB", mp.Path, freeGB, gbLimit))
		case mbLimit > 0 && freeGB*1024 < mbLimit:
			breaches = append(breaches, fmt.Sprintf("%s: %.0f MB free < %.0f MB", mp.Path, freeGB*1024, mbLimit))
		}
	}
	if len(breaches) == 0 {
		return
	}

	m.breach(ctx, keyLowDisk,
		"free disk space below threshold",
		strings.Join(breaches, "; "),
		data,
		rule.RecoveryCommand,
		m.cfg.RecoveryActions.LowDiskServices,
	)
}

// breach reports one rule breach and runs its recovery actions, all gated by
// the rule's cooldown so a persistent condition alerts once per window.
func (m *Monitor) breach(ctx context.Context, key, message, detail string, data map[string]any, recoveryCommand string, services []string) {
	log := m.log.WithField("rule", key)

	if !m.cooldowns.TryAcquire(key, m.cfg.RecoveryActions.CooldownPeriod.Or(0)) {
		log.WithField("detail", detail).Debug("breach within cooldown, suppressed")
		return
	}
	log.WithField("detail", detail).Warn("resource threshold breached")

	if recoveryCommand == "" && len(services) == 0 {
		detail += " (no recovery configured)"
		m.notifier.Notify(events.NewResourceThreshold(key, message, detail, data))
		return
	}
	m.notifier.Notify(events.NewResourceThreshold(key, message, detail, data))

	success := true
	var notes []string

	if recoveryCommand != "" {
		res := shell.RunWithTimeout(ctx, m.runner, recoveryCommand, recoveryCommandTimeout)
		if res.Success() {
			notes = append(notes, fmt.Sprintf("command %q succeeded", recoveryCommand))
		} else {
			success = false
			notes = append(notes, fmt.Sprintf("command %q failed (exit %d): %s",
				recoveryCommand, res.ExitCode, res.Output()))
		}
	}

	for i, service := range services {
		if i > 0 {
			m.sleep(ctx, m.cfg.RecoveryActions.RestartInterval.Or(0))
		}
		if m.mgr == nil {
			success = false
			notes = append(notes, fmt.Sprintf("cannot restart %s: no service manager", service))
			continue
		}
		if err := m.mgr.Restart(ctx, service); err != nil {
			success = false
			notes = append(notes, fmt.Sprintf("restart %s failed: %v", service, err))
			log.WithError(err).WithField("service", service).Error("recovery restart failed")
		} else {
			notes = append(notes, fmt.Sprintf("restarted %s", service))
		}
	}

	m.notifier.Notify(events.NewResourceRecovery(key, success, strings.Join(notes, "; "), data))
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
