// Package checks implements the per-service health checks. A Checker is
// built once from configuration and then asked repeatedly whether its
// service looks healthy.
package checks

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/shell"
	"github.com/xnetvn/monitord/internal/svcmgr"
)

// Result is the outcome of one health check.
type Result struct {
	// Healthy reports whether the service passed the check.
	Healthy bool
	// Detail describes what was observed, healthy or not.
	Detail string
	// Err is set when the check itself could not run. A check error is
	// treated as unhealthy by callers.
	Err error
}

func unhealthy(detail string) Result {
	return Result{Healthy: false, Detail: detail}
}

func healthy(detail string) Result {
	return Result{Healthy: true, Detail: detail}
}

// Checker performs one service's health check.
type Checker interface {
	// Describe names the check method for logs and events.
	Describe() string
	// Check runs the health check. The context bounds the whole check.
	Check(ctx context.Context) Result
}

// DefaultTimeout bounds a check when the service does not configure one.
const DefaultTimeout = 30 * time.Second

// Build constructs the Checker for one configured service. The manager may
// be nil when no init system is available; manager-based checks then fail
// at build time rather than at every tick.
func Build(svc config.Service, runner shell.Runner, mgr svcmgr.Manager, netOpts NetworkOptions) (Checker, error) {
	switch svc.CheckMethod {
	case "", "auto", "systemctl", "service", "openrc":
		if mgr == nil {
			return nil, fmt.Errorf("service %q: manager check requires a service manager", svc.Name)
		}
		name := svc.ServiceName
		if name == "" {
			name = svc.Name
		}
		return &managerCheck{service: name, mgr: mgr, timeout: svc.CheckTimeout.Or(DefaultTimeout)}, nil

	case "process":
		return &processCheck{
			process:       svc.ProcessName,
			multiInstance: svc.MultiInstance,
			runner:        runner,
			timeout:       svc.CheckTimeout.Or(DefaultTimeout),
		}, nil

	case "process_regex":
		pattern, err := regexp.Compile(svc.ProcessPattern)
		if err != nil {
			return nil, fmt.Errorf("service %q: process_pattern: %w", svc.Name, err)
		}
		return &processRegexCheck{
			pattern:       pattern,
			multiInstance: svc.MultiInstance,
			runner:        runner,
			timeout:       svc.CheckTimeout.Or(DefaultTimeout),
		}, nil

	case "custom_command":
		return &commandCheck{
			method:  "custom_command",
			command: svc.CheckCommand,
			runner:  runner,
			timeout: svc.CheckTimeout.Or(DefaultTimeout),
		}, nil

	case "iptables":
		command := svc.CheckCommand
		if command == "" {
			command = "iptables -L -n"
		}
		return &commandCheck{
			method:  "iptables",
			command: command,
			runner:  runner,
			timeout: svc.CheckTimeout.Or(DefaultTimeout),
		}, nil

	case "http", "https":
		return newHTTPCheck(svc, netOpts)

	default:
		return nil, fmt.Errorf("service %q: unknown check_method %q", svc.Name, svc.CheckMethod)
	}
}

// managerCheck asks the init system whether the service is active.
type managerCheck struct {
	service string
	mgr     svcmgr.Manager
	timeout time.Duration
}

func (c *managerCheck) Describe() string { return string(c.mgr.Kind()) }

func (c *managerCheck) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	active, detail, err := c.mgr.Status(ctx, c.service)
	if err != nil {
		return Result{Err: fmt.Errorf("status %s: %w", c.service, err), Detail: detail}
	}
	if !active {
		return unhealthy(fmt.Sprintf("service %s is not active: %s", c.service, detail))
	}
	return healthy(detail)
}

// processCheck looks for an exact process name with pgrep.
type processCheck struct {
	process       string
	multiInstance bool
	runner        shell.Runner
	timeout       time.Duration
}

func (c *processCheck) Describe() string { return "process" }

func (c *processCheck) Check(ctx context.Context) Result {
	res := shell.RunWithTimeout(ctx, c.runner, fmt.Sprintf("pgrep -x %s", c.process), c.timeout)
	if res.Err != nil {
		return Result{Err: fmt.Errorf("pgrep %s: %w", c.process, res.Err)}
	}
	if res.TimedOut {
		return unhealthy(fmt.Sprintf("process check for %q timed out", c.process))
	}
	if res.ExitCode != 0 {
		return unhealthy(fmt.Sprintf("no process named %q found", c.process))
	}
	pids := strings.Fields(res.Stdout)
	if len(pids) > 1 && !c.multiInstance {
		// Duplicate instances of a single-instance service are suspicious
		// but the service is running; report healthy with an anomaly note.
		return healthy(fmt.Sprintf("%d processes named %q (expected one)", len(pids), c.process))
	}
	return healthy(fmt.Sprintf("%d process(es) named %q", len(pids), c.process))
}

// processRegexCheck scans the process table for lines matching a pattern.
// The scan excludes its own pipeline so the pattern cannot match the check
// command itself.
type processRegexCheck struct {
	pattern       *regexp.Regexp
	multiInstance bool
	runner        shell.Runner
	timeout       time.Duration
}

func (c *processRegexCheck) Describe() string { return "process_regex" }

func (c *processRegexCheck) Check(ctx context.Context) Result {
	res := shell.RunWithTimeout(ctx, c.runner, "ps aux", c.timeout)
	if res.Err != nil {
		return Result{Err: fmt.Errorf("ps aux: %w", res.Err)}
	}
	if res.TimedOut {
		return unhealthy("process table scan timed out")
	}
	if res.ExitCode != 0 {
		return Result{Err: fmt.Errorf("ps aux: exit %d: %s", res.ExitCode, res.Output())}
	}

	matches := 0
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "ps aux") {
			continue
		}
		if c.pattern.MatchString(line) {
			matches++
		}
	}

	if matches == 0 {
		return unhealthy(fmt.Sprintf("no process matching %q found", c.pattern.String()))
	}
	if matches > 1 && !c.multiInstance {
		// Multiple matches for a single-instance service is suspicious but
		// the service is running; report healthy with an anomaly note.
		return healthy(fmt.Sprintf("%d processes match %q (expected one)", matches, c.pattern.String()))
	}
	return healthy(fmt.Sprintf("%d process(es) match %q", matches, c.pattern.String()))
}

// commandCheck runs an arbitrary shell command; exit 0 means healthy.
type commandCheck struct {
	method  string
	command string
	runner  shell.Runner
	timeout time.Duration
}

func (c *commandCheck) Describe() string { return c.method }

func (c *commandCheck) Check(ctx context.Context) Result {
	res := shell.RunWithTimeout(ctx, c.runner, c.command, c.timeout)
	if res.Err != nil {
		return Result{Err: fmt.Errorf("%s: %w", c.command, res.Err)}
	}
	if res.TimedOut {
		return unhealthy(fmt.Sprintf("command %q timed out", c.command))
	}
	if res.ExitCode != 0 {
		return unhealthy(fmt.Sprintf("command %q exited %d: %s", c.command, res.ExitCode, res.Output()))
	}
	return healthy(fmt.Sprintf("command %q succeeded", c.command))
}
