// Package svcmgr adapts the host's init system behind one interface so the
// monitors never build systemctl/rc-service/service command lines themselves.
package svcmgr

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/xnetvn/monitord/internal/shell"
)

// Kind identifies a supported service manager.
type Kind string

const (
	KindSystemd Kind = "systemd"
	KindOpenRC  Kind = "openrc"
	KindSysV    Kind = "sysv"
)

// Manager runs status and restart operations against the init system.
type Manager interface {
	// Kind returns the detected or configured manager kind.
	Kind() Kind
	// Status reports whether the named service is active. Detail carries
	// the raw command output for diagnostics.
	Status(ctx context.Context, service string) (active bool, detail string, err error)
	// Restart restarts the named service.
	Restart(ctx context.Context, service string) error
	// RestartCommand returns the restart command line for the named service
	// without executing it.
	RestartCommand(service string) string
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Detect probes the host for a service manager, preferring systemd, then
// OpenRC, then SysV init scripts. override skips detection when non-empty
// and not "auto".
func Detect(runner shell.Runner, override string) (Manager, error) {
	switch override {
	case "", "auto":
	case string(KindSystemd):
		return &systemdManager{runner: runner}, nil
	case string(KindOpenRC):
		return &openrcManager{runner: runner}, nil
	case string(KindSysV):
		return &sysvManager{runner: runner}, nil
	default:
		return nil, fmt.Errorf("unknown service manager %q", override)
	}

	if _, err := lookPath("systemctl"); err == nil {
		return &systemdManager{runner: runner}, nil
	}
	if _, err := lookPath("rc-service"); err == nil {
		return &openrcManager{runner: runner}, nil
	}
	if _, err := lookPath("service"); err == nil {
		return &sysvManager{runner: runner}, nil
	}
	return nil, fmt.Errorf("no supported service manager found (tried systemctl, rc-service, service)")
}

const managerTimeout = 60 * time.Second

type systemdManager struct {
	runner shell.Runner
}

func (m *systemdManager) Kind() Kind { return KindSystemd }

func (m *systemdManager) Status(ctx context.Context, service string) (bool, string, error) {
	res := shell.RunWithTimeout(ctx, m.runner, fmt.Sprintf("systemctl is-active %s", service), managerTimeout)
	if res.Err != nil {
		return false, res.Output(), res.Err
	}
	// systemctl exits 0 for "active" but also reports transitional states;
	// require the word itself so "activating" does not count as healthy.
	active := res.ExitCode == 0 && strings.TrimSpace(res.Stdout) == "active"
	return active, res.Output(), nil
}

func (m *systemdManager) Restart(ctx context.Context, service string) error {
	return runRestart(ctx, m.runner, m.RestartCommand(service))
}

func (m *systemdManager) RestartCommand(service string) string {
	return fmt.Sprintf("systemctl restart %s", service)
}

type openrcManager struct {
	runner shell.Runner
}

func (m *openrcManager) Kind() Kind { return KindOpenRC }

func (m *openrcManager) Status(ctx context.Context, service string) (bool, string, error) {
	res := shell.RunWithTimeout(ctx, m.runner, fmt.Sprintf("rc-service %s status", service), managerTimeout)
	if res.Err != nil {
		return false, res.Output(), res.Err
	}
	return res.ExitCode == 0, res.Output(), nil
}

func (m *openrcManager) Restart(ctx context.Context, service string) error {
	return runRestart(ctx, m.runner, m.RestartCommand(service))
}

func (m *openrcManager) RestartCommand(service string) string {
	return fmt.Sprintf("rc-service %s restart", service)
}

type sysvManager struct {
	runner shell.Runner
}

func (m *sysvManager) Kind() Kind { return KindSysV }

func (m *sysvManager) Status(ctx context.Context, service string) (bool, string, error) {
	res := shell.RunWithTimeout(ctx, m.runner, fmt.Sprintf("service %s status", service), managerTimeout)
	if res.Err != nil {
		return false, res.Output(), res.Err
	}
	return res.ExitCode == 0, res.Output(), nil
}

func (m *sysvManager) Restart(ctx context.Context, service string) error {
	return runRestart(ctx, m.runner, m.RestartCommand(service))
}

func (m *sysvManager) RestartCommand(service string) string {
	return fmt.Sprintf("service %s restart", service)
}

func runRestart(ctx context.Context, runner shell.Runner, command string) error {
	res := shell.RunWithTimeout(ctx, runner, command, managerTimeout)
	if res.Err != nil {
		return fmt.Errorf("%s: %w", command, res.Err)
	}
	if res.TimedOut {
		return fmt.Errorf("%s: timed out", command)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s: exit %d: %s", command, res.ExitCode, res.Output())
	}
	return nil
}
