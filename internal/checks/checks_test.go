package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/shell"
)

type fakeRunner struct {
	commands []string
	results  map[string]shell.Result
}

func (f *fakeRunner) Run(_ context.Context, command string) shell.Result {
	f.commands = append(f.commands, command)
	if res, ok := f.results[command]; ok {
		return res
	}
	return shell.Result{Command: command, ExitCode: 0}
}

func TestProcessCheck(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"pgrep -x nginx": {ExitCode: 0, Stdout: "101\n102"},
		"pgrep -x gone":  {ExitCode: 1},
	}}

	up, err := Build(config.Service{Name: "nginx", CheckMethod: "process", ProcessName: "nginx", MultiInstance: true}, runner, nil, NetworkOptions{})
	require.NoError(t, err)
	res := up.Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Contains(t, res.Detail, "2 process(es)")

	down, err := Build(config.Service{Name: "gone", CheckMethod: "process", ProcessName: "gone"}, runner, nil, NetworkOptions{})
	require.NoError(t, err)
	res = down.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Detail, `no process named "gone"`)
}

func TestProcessSingleInstanceAnomaly(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"pgrep -x sshd": {ExitCode: 0, Stdout: "11\n12\n13"},
	}}

	check, err := Build(config.Service{Name: "sshd", CheckMethod: "process", ProcessName: "sshd"}, runner, nil, NetworkOptions{})
	require.NoError(t, err)

	// Duplicate matches for a single-instance service still count as
	// running; the detail carries the anomaly.
	res := check.Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Contains(t, res.Detail, "expected one")
}

func TestProcessRegexCheck(t *testing.T) {
	table := "root  1  0.0 init\nwww   2  0.1 nginx: master process\nwww   3  0.1 nginx: worker process\nroot  4  0.0 sh -c ps aux\n"
	runner := &fakeRunner{results: map[string]shell.Result{
		"ps aux": {ExitCode: 0, Stdout: table},
	}}

	check, err := Build(config.Service{
		Name:           "nginx",
		CheckMethod:    "process_regex",
		ProcessPattern: `nginx: (master|worker)`,
		MultiInstance:  true,
	}, runner, nil, NetworkOptions{})
	require.NoError(t, err)

	res := check.Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Contains(t, res.Detail, "2 process(es) match")
}

func TestProcessRegexSingleInstanceAnomaly(t *testing.T) {
	table := "www 2 cron -d\nwww 3 cron -d\n"
	runner := &fakeRunner{results: map[string]shell.Result{
		"ps aux": {ExitCode: 0, Stdout: table},
	}}

	check, err := Build(config.Service{
		Name:           "cron",
		CheckMethod:    "process_regex",
		ProcessPattern: `cron -d`,
	}, runner, nil, NetworkOptions{})
	require.NoError(t, err)

	// Duplicate instances of a single-instance service still count as
	// running; the detail carries the anomaly.
	res := check.Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Contains(t, res.Detail, "expected one")
}

func TestProcessRegexNoMatch(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"ps aux": {ExitCode: 0, Stdout: "root 1 init\n"},
	}}

	check, err := Build(config.Service{
		Name:           "redis",
		CheckMethod:    "process_regex",
		ProcessPattern: `redis-server`,
	}, runner, nil, NetworkOptions{})
	require.NoError(t, err)

	res := check.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Detail, "no process matching")
}

func TestCustomCommandCheck(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"redis-cli ping": {ExitCode: 0, Stdout: "PONG"},
		"broken probe":   {ExitCode: 2, Stderr: "connection refused"},
	}}

	ok, err := Build(config.Service{Name: "redis", CheckMethod: "custom_command", CheckCommand: "redis-cli ping"}, runner, nil, NetworkOptions{})
	require.NoError(t, err)
	assert.True(t, ok.Check(context.Background()).Healthy)

	bad, err := Build(config.Service{Name: "probe", CheckMethod: "custom_command", CheckCommand: "broken probe"}, runner, nil, NetworkOptions{})
	require.NoError(t, err)
	res := bad.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Detail, "exited 2")
	assert.Contains(t, res.Detail, "connection refused")
}

func TestIptablesCheckDefaultCommand(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"iptables -L -n": {ExitCode: 0, Stdout: "Chain INPUT (policy ACCEPT)"},
	}}

	check, err := Build(config.Service{Name: "firewall", CheckMethod: "iptables"}, runner, nil, NetworkOptions{})
	require.NoError(t, err)

	res := check.Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Equal(t, []string{"iptables -L -n"}, runner.commands)
}

func TestBuildRejectsUnknownMethod(t *testing.T) {
	_, err := Build(config.Service{Name: "x", CheckMethod: "ping"}, &fakeRunner{}, nil, NetworkOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown check_method")
}

func TestBuildManagerCheckWithoutManager(t *testing.T) {
	_, err := Build(config.Service{Name: "x", CheckMethod: "auto"}, &fakeRunner{}, nil, NetworkOptions{})
	require.Error(t, err)
}
