package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleConfig = `
general:
  check_interval: 30
  pid_file: /tmp/monitord.pid
  logging:
    level: debug

service_monitor:
  enabled: true
  max_restart_attempts: 5
  restart_cooldown: {value: 10, unit: minutes}
  services:
    - name: nginx
      check_method: process
      process_name: nginx
      critical: true
      restart_command: systemctl restart nginx
    - name: api
      check_method: http
      url: http://127.0.0.1:8080/health
      expected_status_codes: [200, 204]
      restart_command:
        - systemctl stop api
        - systemctl start api

resource_monitor:
  enabled: true
  memory:
    enabled: true
    free_percent_threshold: 10
    free_mb_threshold: 512
    condition: and

notifications:
  enabled: true
  min_severity: warning
  rate_limit:
    min_interval: 120
    max_per_hour: 10
  content_filter:
    redact_patterns:
      - "password=\\S+"
`

func TestParseSampleConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.General.CheckInterval.Duration)
	assert.Equal(t, "/tmp/monitord.pid", cfg.General.PIDFile)
	assert.Equal(t, 5, cfg.ServiceMonitor.MaxRestartAttempts)
	assert.Equal(t, 10*time.Minute, cfg.ServiceMonitor.RestartCooldown.Duration)

	require.Len(t, cfg.ServiceMonitor.Services, 2)
	nginx := cfg.ServiceMonitor.Services[0]
	assert.True(t, nginx.Critical)
	assert.Equal(t, []string{"systemctl restart nginx"}, []string(nginx.RestartCommands))

	api := cfg.ServiceMonitor.Services[1]
	assert.Equal(t, []int{200, 204}, api.ExpectedStatus)
	assert.Len(t, api.RestartCommands, 2)

	assert.Equal(t, "and", cfg.ResourceMonitor.Memory.Condition)
	assert.Equal(t, "warning", cfg.Notifications.MinSeverity)
	assert.Equal(t, 2*time.Minute, cfg.Notifications.RateLimit.MinInterval.Duration)
	assert.Equal(t, 10, cfg.Notifications.RateLimit.MaxPerHour)
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("general: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.General.CheckInterval.Duration)
	assert.Equal(t, 3, cfg.ServiceMonitor.MaxRestartAttempts)
	assert.Equal(t, "restart_and_notify", cfg.ServiceMonitor.ActionOnFailure)
	assert.Equal(t, "or", cfg.ResourceMonitor.Memory.Condition)
	assert.Equal(t, "[REDACTED]", cfg.Notifications.ContentFilter.RedactReplacement)
	assert.Equal(t, 20, cfg.Notifications.RateLimit.MaxPerHour)
	assert.Equal(t, 7*24*time.Hour, cfg.UpdateChecker.Interval.Duration)
	assert.Equal(t, "https://api.github.com", cfg.UpdateChecker.APIBaseURL)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("MONITORD_TEST_TOKEN", "s3cret")

	out := ExpandEnv("token: ${MONITORD_TEST_TOKEN}\nmissing: $MONITORD_TEST_UNSET\n")
	assert.Contains(t, out, "token: s3cret")
	// Unresolved variables parse as YAML null instead of failing the load.
	assert.Contains(t, out, "missing: null")
}

func TestUnresolvedEnvVarBecomesNull(t *testing.T) {
	cfg, err := Parse([]byte("notifications:\n  telegram:\n    bot_token: ${MONITORD_NO_SUCH_VAR}\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Notifications.Telegram.BotToken)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing service name",
			yaml: "service_monitor:\n  services:\n    - check_method: process\n      process_name: x\n",
			want: "name is required",
		},
		{
			name: "duplicate service name",
			yaml: "service_monitor:\n  services:\n    - {name: a}\n    - {name: a}\n",
			want: "duplicate name",
		},
		{
			name: "unknown check method",
			yaml: "service_monitor:\n  services:\n    - {name: a, check_method: ping}\n",
			want: "unknown check_method",
		},
		{
			name: "process without process_name",
			yaml: "service_monitor:\n  services:\n    - {name: a, check_method: process}\n",
			want: "requires process_name",
		},
		{
			name: "invalid process pattern",
			yaml: "service_monitor:\n  services:\n    - {name: a, check_method: process_regex, process_pattern: \"[\"}\n",
			want: "invalid process_pattern",
		},
		{
			name: "http without url",
			yaml: "service_monitor:\n  services:\n    - {name: a, check_method: http}\n",
			want: "requires url",
		},
		{
			name: "bad memory condition",
			yaml: "resource_monitor:\n  memory:\n    condition: xor\n",
			want: "condition",
		},
		{
			name: "invalid redact pattern",
			yaml: "notifications:\n  content_filter:\n    redact_patterns: [\"(\"]\n",
			want: "invalid pattern",
		},
		{
			name: "bad service manager",
			yaml: "service_monitor:\n  service_manager: launchd\n",
			want: "service_manager",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestIntervalForms(t *testing.T) {
	var doc struct {
		A Interval `yaml:"a"`
		B Interval `yaml:"b"`
		C Interval `yaml:"c"`
		D Interval `yaml:"d"`
	}
	cfg := "a: 90\nb: {value: 2, unit: hours}\nc: null\nd: 0.5\n"
	require.NoError(t, yaml.Unmarshal([]byte(cfg), &doc))

	assert.Equal(t, 90*time.Second, doc.A.Duration)
	assert.Equal(t, 2*time.Hour, doc.B.Duration)
	assert.Equal(t, time.Duration(0), doc.C.Duration)
	assert.Equal(t, 500*time.Millisecond, doc.D.Duration)
	assert.Equal(t, 10*time.Second, doc.C.Or(10*time.Second))
}

func TestMountPointForms(t *testing.T) {
	var doc struct {
		Points []MountPoint `yaml:"points"`
	}
	cfg := "points:\n  - /\n  - path: /var\n    free_gb_threshold: 5\n"
	require.NoError(t, yaml.Unmarshal([]byte(cfg), &doc))

	require.Len(t, doc.Points, 2)
	assert.Equal(t, "/", doc.Points[0].Path)
	assert.Equal(t, "/var", doc.Points[1].Path)
	require.NotNil(t, doc.Points[1].FreeGBThreshold)
	assert.Equal(t, 5.0, *doc.Points[1].FreeGBThreshold)
}
