// Package config loads and validates the monitord configuration document.
// String values may reference environment variables as $VAR or ${VAR};
// unresolved variables become null values rather than load errors.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	General         GeneralConfig   `yaml:"general"`
	Network         NetworkConfig   `yaml:"network"`
	UpdateChecker   UpdateConfig    `yaml:"update_checker"`
	ServiceMonitor  ServiceMonitor  `yaml:"service_monitor"`
	ResourceMonitor ResourceMonitor `yaml:"resource_monitor"`
	Notifications   Notifications   `yaml:"notifications"`
}

// GeneralConfig holds daemon-wide settings.
type GeneralConfig struct {
	AppVersion    string        `yaml:"app_version"`
	CheckInterval Interval      `yaml:"check_interval"`
	PIDFile       string        `yaml:"pid_file"`
	WorkDir       string        `yaml:"work_dir"`
	ShutdownGrace Interval      `yaml:"shutdown_grace"`
	Logging       LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls the logrus setup.
type LoggingConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
}

// NetworkConfig holds cross-component network behavior.
type NetworkConfig struct {
	OnlyIPv4 bool `yaml:"only_ipv4"`
}

// UpdateConfig configures the release update checker.
type UpdateConfig struct {
	Enabled        *bool    `yaml:"enabled"`
	Repo           string   `yaml:"repo"`
	APIBaseURL     string   `yaml:"api_base_url"`
	AuthToken      string   `yaml:"auth_token"`
	Interval       Interval `yaml:"interval"`
	StateFile      string   `yaml:"state_file"`
	NotifyOnUpdate bool     `yaml:"notify_on_update"`
	AutoUpdate     bool     `yaml:"auto_update"`
	ServiceName    string   `yaml:"service_name"`
}

// ServiceMonitor configures the service health checks and recovery policy.
type ServiceMonitor struct {
	Enabled            *bool     `yaml:"enabled"`
	ServiceManager     string    `yaml:"service_manager"` // empty = auto-detect
	ActionOnFailure    string    `yaml:"action_on_failure"`
	MaxRestartAttempts int       `yaml:"max_restart_attempts"`
	RestartCooldown    Interval  `yaml:"restart_cooldown"`
	RestartWaitTime    Interval  `yaml:"restart_wait_time"`
	ActionCooldown     Interval  `yaml:"action_cooldown"`
	StopOnError        bool      `yaml:"stop_on_error"`
	CheckInterval      Interval  `yaml:"check_interval"`
	Services           []Service `yaml:"services"`
}

// Service describes one monitored service.
type Service struct {
	Name            string            `yaml:"name"`
	Description     string            `yaml:"description"`
	Enabled         *bool             `yaml:"enabled"`
	Critical        bool              `yaml:"critical"`
	CheckMethod     string            `yaml:"check_method"`
	CheckInterval   Interval          `yaml:"check_interval"`
	CheckTimeout    Interval          `yaml:"check_timeout"`
	ServiceName     string            `yaml:"service_name"`
	ProcessName     string            `yaml:"process_name"`
	ProcessPattern  string            `yaml:"process_pattern"`
	MultiInstance   bool              `yaml:"multi_instance"`
	CheckCommand    string            `yaml:"check_command"`
	URL             string            `yaml:"url"`
	HTTPMethod      string            `yaml:"http_method"`
	Headers         map[string]string `yaml:"headers"`
	ExpectedStatus  []int             `yaml:"expected_status_codes"`
	MaxResponseMs   int               `yaml:"max_response_time_ms"`
	VerifyTLS       *bool             `yaml:"verify_tls"`
	RestartCommands StringList        `yaml:"restart_command"`
	PreRestartHook  string            `yaml:"pre_restart_hook"`
	PostRestartHook string            `yaml:"post_restart_hook"`
	ActionCooldown  Interval          `yaml:"action_cooldown"`
}

// IsEnabled reports whether the service should be monitored.
func (s Service) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// StringList accepts a single string or a sequence of strings in YAML.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*l = nil
		return nil
	}
	var one string
	if err := node.Decode(&one); err == nil {
		if one == "" {
			*l = nil
		} else {
			*l = []string{one}
		}
		return nil
	}
	var many []string
	if err := node.Decode(&many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	out := many[:0]
	for _, item := range many {
		if item != "" {
			out = append(out, item)
		}
	}
	*l = out
	return nil
}

// ResourceMonitor configures resource threshold rules.
type ResourceMonitor struct {
	Enabled         *bool           `yaml:"enabled"`
	CPULoad         CPULoadRule     `yaml:"cpu_load"`
	Memory          MemoryRule      `yaml:"memory"`
	Disk            DiskRule        `yaml:"disk"`
	RecoveryActions RecoveryActions `yaml:"recovery_actions"`
}

// CPULoadRule thresholds the 1/5/15-minute load averages.
type CPULoadRule struct {
	Enabled         bool       `yaml:"enabled"`
	Check1Min       bool       `yaml:"check_1min"`
	Threshold1Min   float64    `yaml:"threshold_1min"`
	Check5Min       bool       `yaml:"check_5min"`
	Threshold5Min   float64    `yaml:"threshold_5min"`
	Check15Min      bool       `yaml:"check_15min"`
	Threshold15Min  float64    `yaml:"threshold_15min"`
	RecoveryCommand string     `yaml:"recovery_command"`
	// ActionOnThreshold is documented in example configuration but
	// reserved; the runtime does not act on it.
	ActionOnThreshold string `yaml:"action_on_threshold"`
}

// MemoryRule thresholds free memory by percent and/or MB.
type MemoryRule struct {
	Enabled              bool    `yaml:"enabled"`
	FreePercentThreshold float64 `yaml:"free_percent_threshold"`
	FreeMBThreshold      float64 `yaml:"free_mb_threshold"`
	Condition            string  `yaml:"condition"` // "and" | "or"
	RecoveryCommand      string  `yaml:"recovery_command"`
}

// DiskRule thresholds free disk space per mount point.
type DiskRule struct {
	Enabled              bool         `yaml:"enabled"`
	FreePercentThreshold float64      `yaml:"free_percent_threshold"`
	FreeGBThreshold      float64      `yaml:"free_gb_threshold"`
	MountPoints          []MountPoint `yaml:"mount_points"`
	RecoveryCommand      string       `yaml:"recovery_command"`
}

// MountPoint is one monitored filesystem path with optional overrides.
type MountPoint struct {
	Path                 string   `yaml:"path"`
	FreePercentThreshold *float64 `yaml:"free_percent_threshold"`
	FreeGBThreshold      *float64 `yaml:"free_gb_threshold"`
	FreeMBThreshold      *float64 `yaml:"free_mb_threshold"`
}

// UnmarshalYAML accepts either a bare path string or a mapping.
func (m *MountPoint) UnmarshalYAML(node *yaml.Node) error {
	var path string
	if err := node.Decode(&path); err == nil {
		m.Path = path
		return nil
	}
	type plain MountPoint
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*m = MountPoint(p)
	return nil
}

// RecoveryActions lists services restarted per breach category.
type RecoveryActions struct {
	CooldownPeriod     Interval `yaml:"cooldown_period"`
	RestartInterval    Interval `yaml:"restart_interval"`
	HighCPUServices    []string `yaml:"high_cpu_services"`
	LowMemoryServices  []string `yaml:"low_memory_services"`
	LowDiskServices    []string `yaml:"low_disk_services"`
}

// Notifications configures the dispatcher and its channels.
type Notifications struct {
	Enabled       *bool           `yaml:"enabled"`
	MinSeverity   string          `yaml:"min_severity"`
	RateLimit     RateLimit       `yaml:"rate_limit"`
	ContentFilter ContentFilter   `yaml:"content_filter"`
	Email         EmailChannel    `yaml:"email"`
	Telegram      TelegramChannel `yaml:"telegram"`
	Slack         WebhookChannel  `yaml:"slack"`
	Discord       WebhookChannel  `yaml:"discord"`
	Webhook       GenericWebhook  `yaml:"webhook"`
}

// RateLimit bounds sends per channel.
type RateLimit struct {
	Enabled     *bool    `yaml:"enabled"`
	MinInterval Interval `yaml:"min_interval"`
	MaxPerHour  int      `yaml:"max_per_hour"`
}

// ContentFilter redacts sensitive substrings from outbound messages.
type ContentFilter struct {
	Enabled           *bool    `yaml:"enabled"`
	RedactPatterns    []string `yaml:"redact_patterns"`
	RedactReplacement string   `yaml:"redact_replacement"`
}

// ChannelBase holds fields shared by all channels.
type ChannelBase struct {
	Enabled       bool       `yaml:"enabled"`
	MinSeverity   string     `yaml:"min_severity"`
	RateLimit     *RateLimit `yaml:"rate_limit"`
	TestOnStartup bool       `yaml:"test_on_startup"`
	Timeout       Interval   `yaml:"timeout"`
}

// EmailChannel configures the SMTP sender.
type EmailChannel struct {
	ChannelBase   `yaml:",inline"`
	SMTP          SMTPConfig `yaml:"smtp"`
	FromAddress   string     `yaml:"from_address"`
	FromName      string     `yaml:"from_name"`
	ToAddresses   []string   `yaml:"to_addresses"`
	SubjectPrefix string     `yaml:"subject_prefix"`
	HTMLTemplate  bool       `yaml:"html_template"`
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   *bool  `yaml:"use_tls"`
	UseSSL   bool   `yaml:"use_ssl"`
}

// TelegramChannel configures the Telegram Bot API sender.
type TelegramChannel struct {
	ChannelBase `yaml:",inline"`
	BotToken    string   `yaml:"bot_token"`
	ChatIDs     []string `yaml:"chat_ids"`
	ParseMode   string   `yaml:"parse_mode"`
	APIBaseURL  string   `yaml:"api_base_url"`
}

// WebhookChannel configures a single-URL incoming webhook (Slack, Discord).
type WebhookChannel struct {
	ChannelBase `yaml:",inline"`
	WebhookURL  string `yaml:"webhook_url"`
	Username    string `yaml:"username"`
	VerifySSL   *bool  `yaml:"verify_ssl"`
}

// GenericWebhook configures the generic JSON webhook sender.
type GenericWebhook struct {
	ChannelBase `yaml:",inline"`
	URLs        []string          `yaml:"urls"`
	URL         string            `yaml:"url"`
	Headers     map[string]string `yaml:"headers"`
	VerifySSL   *bool             `yaml:"verify_ssl"`
}

// envVarPattern matches ${VAR} and $VAR placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnv replaces environment variable placeholders in raw config text.
// Unresolved variables become the literal "null" so YAML parses them as nil.
func ExpandEnv(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[2]
		}
		value, ok := os.LookupEnv(name)
		if !ok {
			return "null"
		}
		return value
	})
}

// Load reads, expands, parses, and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(raw)
}

// Parse parses and validates raw configuration bytes.
func Parse(raw []byte) (*Config, error) {
	expanded := ExpandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks structural requirements that cannot be defaulted away.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, svc := range c.ServiceMonitor.Services {
		if svc.Name == "" {
			return fmt.Errorf("service_monitor.services[%d]: name is required", i)
		}
		if seen[svc.Name] {
			return fmt.Errorf("service_monitor.services: duplicate name %q", svc.Name)
		}
		seen[svc.Name] = true

		switch svc.CheckMethod {
		case "", "auto", "systemctl", "service", "openrc":
		case "process":
			if svc.ProcessName == "" {
				return fmt.Errorf("service %q: process check requires process_name", svc.Name)
			}
		case "process_regex":
			if svc.ProcessPattern == "" {
				return fmt.Errorf("service %q: process_regex check requires process_pattern", svc.Name)
			}
			if _, err := regexp.Compile(svc.ProcessPattern); err != nil {
				return fmt.Errorf("service %q: invalid process_pattern: %w", svc.Name, err)
			}
		case "custom_command":
			if svc.CheckCommand == "" {
				return fmt.Errorf("service %q: custom_command check requires check_command", svc.Name)
			}
		case "iptables":
		case "http", "https":
			if svc.URL == "" {
				return fmt.Errorf("service %q: http check requires url", svc.Name)
			}
		default:
			return fmt.Errorf("service %q: unknown check_method %q", svc.Name, svc.CheckMethod)
		}
	}

	switch c.ServiceMonitor.ActionOnFailure {
	case "", "notify", "restart", "restart_and_notify":
	default:
		return fmt.Errorf("service_monitor.action_on_failure: unknown value %q", c.ServiceMonitor.ActionOnFailure)
	}

	switch c.ServiceMonitor.ServiceManager {
	case "", "auto", "systemd", "openrc", "sysv":
	default:
		return fmt.Errorf("service_monitor.service_manager: unknown value %q", c.ServiceMonitor.ServiceManager)
	}

	if cond := c.ResourceMonitor.Memory.Condition; cond != "" && cond != "and" && cond != "or" {
		return fmt.Errorf("resource_monitor.memory.condition must be \"and\" or \"or\", got %q", cond)
	}

	for _, pattern := range c.Notifications.ContentFilter.RedactPatterns {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return fmt.Errorf("notifications.content_filter: invalid pattern %q: %w", pattern, err)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.General.CheckInterval.Duration <= 0 {
		c.General.CheckInterval = Interval{Duration: 60 * time.Second}
	}
	if c.General.ShutdownGrace.Duration <= 0 {
		c.General.ShutdownGrace = Interval{Duration: 30 * time.Second}
	}
	if c.General.PIDFile == "" {
		c.General.PIDFile = "/var/run/monitord.pid"
	}
	if c.ServiceMonitor.ActionOnFailure == "" {
		c.ServiceMonitor.ActionOnFailure = "restart_and_notify"
	}
	if c.ServiceMonitor.MaxRestartAttempts <= 0 {
		c.ServiceMonitor.MaxRestartAttempts = 3
	}
	if c.ServiceMonitor.RestartCooldown.Duration <= 0 {
		c.ServiceMonitor.RestartCooldown = Interval{Duration: 300 * time.Second}
	}
	if c.ServiceMonitor.RestartWaitTime.Duration <= 0 {
		c.ServiceMonitor.RestartWaitTime = Interval{Duration: 10 * time.Second}
	}
	if c.ResourceMonitor.Memory.Condition == "" {
		c.ResourceMonitor.Memory.Condition = "or"
	}
	if c.ResourceMonitor.RecoveryActions.CooldownPeriod.Duration <= 0 {
		c.ResourceMonitor.RecoveryActions.CooldownPeriod = Interval{Duration: 1800 * time.Second}
	}
	if c.ResourceMonitor.RecoveryActions.RestartInterval.Duration <= 0 {
		c.ResourceMonitor.RecoveryActions.RestartInterval = Interval{Duration: 5 * time.Second}
	}
	if c.Notifications.MinSeverity == "" {
		c.Notifications.MinSeverity = "info"
	}
	if c.Notifications.RateLimit.MinInterval.Duration <= 0 {
		c.Notifications.RateLimit.MinInterval = Interval{Duration: 300 * time.Second}
	}
	if c.Notifications.RateLimit.MaxPerHour <= 0 {
		c.Notifications.RateLimit.MaxPerHour = 20
	}
	if c.Notifications.ContentFilter.RedactReplacement == "" {
		c.Notifications.ContentFilter.RedactReplacement = "[REDACTED]"
	}
	if c.UpdateChecker.Interval.Duration <= 0 {
		c.UpdateChecker.Interval = Interval{Duration: 7 * 24 * time.Hour}
	}
	if c.UpdateChecker.APIBaseURL == "" {
		c.UpdateChecker.APIBaseURL = "https://api.github.com"
	}
}

// BoolOr dereferences an optional bool with a default.
func BoolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
