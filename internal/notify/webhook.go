package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/xnetvn/monitord/internal/checks"
	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/events"
)

// slackSender posts to a Slack incoming webhook.
type slackSender struct {
	url      string
	username string
	client   *http.Client
}

func newSlackSender(cfg config.WebhookChannel, netOpts checks.NetworkOptions) *slackSender {
	return &slackSender{
		url:      cfg.WebhookURL,
		username: cfg.Username,
		client:   checks.NewHTTPClient(netOpts, config.BoolOr(cfg.VerifySSL, true), 0),
	}
}

func (s *slackSender) Name() string { return "slack" }

func (s *slackSender) Send(ctx context.Context, _ events.Event, body string) error {
	if s.url == "" {
		return errors.New("slack: webhook_url is required")
	}
	payload := map[string]any{"text": body}
	if s.username != "" {
		payload["username"] = s.username
	}
	return postJSON(ctx, s.client, s.url, nil, payload)
}

// discordSender posts to a Discord webhook.
type discordSender struct {
	url      string
	username string
	client   *http.Client
}

func newDiscordSender(cfg config.WebhookChannel, netOpts checks.NetworkOptions) *discordSender {
	return &discordSender{
		url:      cfg.WebhookURL,
		username: cfg.Username,
		client:   checks.NewHTTPClient(netOpts, config.BoolOr(cfg.VerifySSL, true), 0),
	}
}

func (s *discordSender) Name() string { return "discord" }

func (s *discordSender) Send(ctx context.Context, _ events.Event, body string) error {
	if s.url == "" {
		return errors.New("discord: webhook_url is required")
	}
	payload := map[string]any{"content": body}
	if s.username != "" {
		payload["username"] = s.username
	}
	return postJSON(ctx, s.client, s.url, nil, payload)
}

// webhookSender posts the structured event as JSON to arbitrary endpoints.
type webhookSender struct {
	urls    []string
	headers map[string]string
	client  *http.Client
}

func newWebhookSender(cfg config.GenericWebhook, netOpts checks.NetworkOptions) (*webhookSender, error) {
	urls := cfg.URLs
	if cfg.URL != "" {
		urls = append(urls, cfg.URL)
	}
	if len(urls) == 0 {
		return nil, errors.New("webhook: at least one url is required")
	}
	return &webhookSender{
		urls:    urls,
		headers: cfg.Headers,
		client:  checks.NewHTTPClient(netOpts, config.BoolOr(cfg.VerifySSL, true), 0),
	}, nil
}

func (s *webhookSender) Name() string { return "webhook" }

func (s *webhookSender) Send(ctx context.Context, event events.Event, body string) error {
	payload := map[string]any{
		"id":        event.ID,
		"type":      event.Type,
		"source":    event.Source,
		"severity":  event.Severity,
		"timestamp": event.Timestamp,
		"entity":    event.Entity,
		"message":   event.Message,
		"detail":    event.Detail,
		"data":      event.Data,
		"text":      body,
	}

	var errs []error
	for _, url := range s.urls {
		if err := postJSON(ctx, s.client, url, s.headers, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}
