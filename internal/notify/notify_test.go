package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xnetvn/monitord/internal/checks"
	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/events"
)

type fakeSender struct {
	name string

	mu     sync.Mutex
	bodies []string
	events []events.Event
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(_ context.Context, e events.Event, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	f.events = append(f.events, e)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func testDispatcher(redactor *Redactor, channels ...*channel) *Dispatcher {
	if redactor == nil {
		redactor = &Redactor{}
	}
	return &Dispatcher{
		enabled:  true,
		hostname: "host1",
		redactor: redactor,
		channels: channels,
		log:      testLogger(),
	}
}

func waitAll(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Wait(ctx)
}

func TestHourlyCapAllowsExactlyN(t *testing.T) {
	sender := &fakeSender{name: "test"}
	ch := &channel{
		sender:      sender,
		minSeverity: events.SeverityInfo,
		gate:        newGate(0, 3),
		timeout:     time.Second,
	}
	d := testDispatcher(nil, ch)

	for i := 0; i < 4; i++ {
		d.Notify(events.NewServiceRecovered("svc", "ok"))
	}
	waitAll(t, d)

	assert.Len(t, sender.sent(), 3)
}

func TestHourlyCapIsARollingWindow(t *testing.T) {
	base := time.Now()
	clock := base
	g := newGate(0, 2)
	g.now = func() time.Time { return clock }

	assert.True(t, g.allow(false))
	clock = base.Add(30 * time.Minute)
	assert.True(t, g.allow(false))

	// Spreading events across the hour must not reopen the budget.
	clock = base.Add(45 * time.Minute)
	assert.False(t, g.allow(false))
	clock = base.Add(59 * time.Minute)
	assert.False(t, g.allow(false))

	// One slot frees only once the oldest send ages out of the window.
	clock = base.Add(61 * time.Minute)
	assert.True(t, g.allow(false))
	assert.False(t, g.allow(false))
}

func TestMinIntervalSpacesSends(t *testing.T) {
	sender := &fakeSender{name: "test"}
	ch := &channel{
		sender:      sender,
		minSeverity: events.SeverityInfo,
		gate:        newGate(time.Hour, 0),
		timeout:     time.Second,
	}
	d := testDispatcher(nil, ch)

	d.Notify(events.NewServiceRecovered("svc", "first"))
	d.Notify(events.NewServiceRecovered("svc", "second"))
	waitAll(t, d)

	assert.Len(t, sender.sent(), 1)
}

func TestRejectedSendConsumesNoHourlyBudget(t *testing.T) {
	sender := &fakeSender{name: "test"}
	ch := &channel{
		sender:      sender,
		minSeverity: events.SeverityInfo,
		gate:        newGate(time.Hour, 5),
		timeout:     time.Second,
	}
	d := testDispatcher(nil, ch)

	// First passes; the next four are interval-rejected and must not eat
	// into the hourly allowance.
	for i := 0; i < 5; i++ {
		d.Notify(events.NewServiceRecovered("svc", "x"))
	}
	// Startup tests bypass the interval gate, so the remaining four hourly
	// slots are all usable.
	ch.testOnStartup = true
	for i := 0; i < 4; i++ {
		d.StartupTests()
	}
	waitAll(t, d)

	assert.Len(t, sender.sent(), 5)
}

func TestSeverityRouting(t *testing.T) {
	critOnly := &fakeSender{name: "pager"}
	everything := &fakeSender{name: "chat"}
	d := testDispatcher(nil,
		&channel{sender: critOnly, minSeverity: events.SeverityCritical, timeout: time.Second},
		&channel{sender: everything, minSeverity: events.SeverityInfo, timeout: time.Second},
	)

	d.Notify(events.NewServiceRecovered("svc", "back"))             // info
	d.Notify(events.NewServiceDown("svc", "process", "gone", true)) // critical
	waitAll(t, d)

	assert.Len(t, critOnly.sent(), 1)
	assert.Len(t, everything.sent(), 2)
}

func TestBodyIsRedactedAndHostnamePrefixed(t *testing.T) {
	redactor, err := NewRedactor([]string{`password=\S+`}, "[REDACTED]")
	require.NoError(t, err)

	sender := &fakeSender{name: "test"}
	d := testDispatcher(redactor,
		&channel{sender: sender, minSeverity: events.SeverityInfo, timeout: time.Second})

	e := events.NewServiceDown("db", "custom_command", "auth failed: password=hunter2", false)
	d.Notify(e)
	waitAll(t, d)

	bodies := sender.sent()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "[host1] ")
	assert.Contains(t, bodies[0], "[REDACTED]")
	assert.NotContains(t, bodies[0], "hunter2")

	// The event handed to the sender is redacted too, for structured payloads.
	assert.NotContains(t, sender.events[0].Detail, "hunter2")
}

func TestDisabledDispatcherDropsEverything(t *testing.T) {
	sender := &fakeSender{name: "test"}
	d := testDispatcher(nil,
		&channel{sender: sender, minSeverity: events.SeverityInfo, timeout: time.Second})
	d.enabled = false

	d.Notify(events.NewServiceRecovered("svc", "ok"))
	waitAll(t, d)
	assert.Empty(t, sender.sent())
}

func TestNewBuildsConfiguredChannels(t *testing.T) {
	cfg := config.Notifications{
		MinSeverity: "warning",
		Telegram: config.TelegramChannel{
			ChannelBase: config.ChannelBase{Enabled: true},
			BotToken:    "tok",
			ChatIDs:     []string{"-100123"},
		},
		Slack: config.WebhookChannel{
			ChannelBase: config.ChannelBase{Enabled: true, MinSeverity: "critical"},
			WebhookURL:  "https://hooks.slack.example/T000",
		},
	}
	d, err := New(cfg, checks.NetworkOptions{}, testLogger())
	require.NoError(t, err)
	require.Len(t, d.channels, 2)

	assert.Equal(t, "telegram", d.channels[0].sender.Name())
	assert.Equal(t, events.SeverityWarning, d.channels[0].minSeverity)
	assert.Equal(t, "slack", d.channels[1].sender.Name())
	assert.Equal(t, events.SeverityCritical, d.channels[1].minSeverity)
}

func TestNewRejectsBadTelegramConfig(t *testing.T) {
	cfg := config.Notifications{
		Telegram: config.TelegramChannel{
			ChannelBase: config.ChannelBase{Enabled: true},
			ChatIDs:     []string{"-100123"},
		},
	}
	_, err := New(cfg, checks.NetworkOptions{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot_token")
}
