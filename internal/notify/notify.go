// Package notify delivers events to the configured alert channels. The
// pipeline is: redact, route by severity, rate-limit, prefix with hostname,
// then hand off to the channel sender asynchronously. Delivery outcome is
// logged; callers never wait on it.
package notify

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xnetvn/monitord/internal/checks"
	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/events"
)

// defaultSendTimeout bounds one delivery attempt when the channel does not
// configure its own timeout.
const defaultSendTimeout = 30 * time.Second

// Sender delivers one rendered message to an external channel.
type Sender interface {
	// Name identifies the channel in logs.
	Name() string
	// Send delivers the message. body is the redacted, hostname-prefixed
	// text for this event.
	Send(ctx context.Context, event events.Event, body string) error
}

// channel pairs a sender with its routing policy.
type channel struct {
	sender        Sender
	minSeverity   events.Severity
	gate          *gate
	timeout       time.Duration
	testOnStartup bool
}

// Dispatcher fans events out to all eligible channels.
type Dispatcher struct {
	enabled  bool
	hostname string
	redactor *Redactor
	channels []*channel
	log      *logrus.Entry

	wg sync.WaitGroup
}

// New builds the dispatcher and its channel senders from configuration.
func New(cfg config.Notifications, netOpts checks.NetworkOptions, log *logrus.Entry) (*Dispatcher, error) {
	redactor := &Redactor{}
	if config.BoolOr(cfg.ContentFilter.Enabled, true) {
		var err error
		redactor, err = NewRedactor(cfg.ContentFilter.RedactPatterns, cfg.ContentFilter.RedactReplacement)
		if err != nil {
			return nil, fmt.Errorf("content filter: %w", err)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	d := &Dispatcher{
		enabled:  config.BoolOr(cfg.Enabled, true),
		hostname: hostname,
		redactor: redactor,
		log:      log,
	}

	globalMin := events.ParseSeverity(cfg.MinSeverity)

	add := func(base config.ChannelBase, sender Sender) {
		min := globalMin
		if base.MinSeverity != "" {
			min = events.ParseSeverity(base.MinSeverity)
		}
		d.channels = append(d.channels, &channel{
			sender:        sender,
			minSeverity:   min,
			gate:          buildGate(cfg.RateLimit, base.RateLimit),
			timeout:       base.Timeout.Or(defaultSendTimeout),
			testOnStartup: base.TestOnStartup,
		})
	}

	if cfg.Email.Enabled {
		add(cfg.Email.ChannelBase, newEmailSender(cfg.Email))
	}
	if cfg.Telegram.Enabled {
		sender, err := newTelegramSender(cfg.Telegram, netOpts)
		if err != nil {
			return nil, err
		}
		add(cfg.Telegram.ChannelBase, sender)
	}
	if cfg.Slack.Enabled {
		add(cfg.Slack.ChannelBase, newSlackSender(cfg.Slack, netOpts))
	}
	if cfg.Discord.Enabled {
		add(cfg.Discord.ChannelBase, newDiscordSender(cfg.Discord, netOpts))
	}
	if cfg.Webhook.Enabled {
		sender, err := newWebhookSender(cfg.Webhook, netOpts)
		if err != nil {
			return nil, err
		}
		add(cfg.Webhook.ChannelBase, sender)
	}

	return d, nil
}

// buildGate resolves the effective rate limit: channel override, else global.
func buildGate(global config.RateLimit, override *config.RateLimit) *gate {
	rl := global
	if override != nil {
		rl = *override
	}
	if !config.BoolOr(rl.Enabled, true) {
		return nil
	}
	return newGate(rl.MinInterval.Or(0), rl.MaxPerHour)
}

// Notify routes one event. It never blocks on delivery.
func (d *Dispatcher) Notify(event events.Event) {
	d.dispatch(event, false)
}

// StartupTests sends one synthetic test event on every channel that asked
// for it. The interval gate is bypassed; redaction and hourly accounting
// still apply.
func (d *Dispatcher) StartupTests() {
	if !d.enabled {
		return
	}
	for _, ch := range d.channels {
		if !ch.testOnStartup {
			continue
		}
		d.deliver(ch, events.NewStartupTest(ch.sender.Name()), true)
	}
}

func (d *Dispatcher) dispatch(event events.Event, bypassInterval bool) {
	if !d.enabled {
		return
	}
	for _, ch := range d.channels {
		if !event.Severity.AtLeast(ch.minSeverity) {
			continue
		}
		d.deliver(ch, event, bypassInterval)
	}
}

func (d *Dispatcher) deliver(ch *channel, event events.Event, bypassInterval bool) {
	log := d.log.WithFields(logrus.Fields{
		"channel":  ch.sender.Name(),
		"event":    event.Type,
		"severity": event.Severity,
	})

	if !ch.gate.allow(bypassInterval) {
		log.Warn("notification suppressed by rate limit")
		return
	}

	body := fmt.Sprintf("[%s] %s", d.hostname, d.redactor.Redact(renderBody(event)))
	redacted := event
	redacted.Message = d.redactor.Redact(event.Message)
	redacted.Detail = d.redactor.Redact(event.Detail)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), ch.timeout)
		defer cancel()
		if err := ch.sender.Send(ctx, redacted, body); err != nil {
			log.WithError(err).Error("notification delivery failed")
			return
		}
		log.Debug("notification delivered")
	}()
}

// Wait blocks until in-flight deliveries finish or the context expires.
func (d *Dispatcher) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn("shutdown grace expired with deliveries in flight")
	}
}

func renderBody(event events.Event) string {
	body := event.Message
	if event.Detail != "" {
		body += "\n" + event.Detail
	}
	return body
}
