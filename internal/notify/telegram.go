package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/xnetvn/monitord/internal/checks"
	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/events"
)

const telegramAPIBase = "https://api.telegram.org"

// chatTarget is one resolved Telegram destination. Forum supergroups encode
// a topic as "<chat_id>_<thread_id>" in configuration.
type chatTarget struct {
	chatID   string
	threadID int
}

// parseChatID splits a configured chat id into chat and optional topic
// thread. "-1001234_56" targets thread 56 of chat -1001234.
func parseChatID(raw string) (chatTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return chatTarget{}, errors.New("empty chat id")
	}
	chat, thread, found := strings.Cut(raw, "_")
	if !found {
		return chatTarget{chatID: raw}, nil
	}
	id, err := strconv.Atoi(thread)
	if err != nil || id <= 0 {
		return chatTarget{}, fmt.Errorf("invalid thread id in chat id %q", raw)
	}
	return chatTarget{chatID: chat, threadID: id}, nil
}

// telegramSender posts messages through the Telegram Bot API.
type telegramSender struct {
	token     string
	targets   []chatTarget
	parseMode string
	apiBase   string
	client    *http.Client
}

func newTelegramSender(cfg config.TelegramChannel, netOpts checks.NetworkOptions) (*telegramSender, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram: bot_token is required")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, errors.New("telegram: at least one chat id is required")
	}
	targets := make([]chatTarget, 0, len(cfg.ChatIDs))
	for _, raw := range cfg.ChatIDs {
		target, err := parseChatID(raw)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		targets = append(targets, target)
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = telegramAPIBase
	}
	return &telegramSender{
		token:     cfg.BotToken,
		targets:   targets,
		parseMode: cfg.ParseMode,
		apiBase:   apiBase,
		client:    checks.NewHTTPClient(netOpts, true, 0),
	}, nil
}

func (s *telegramSender) Name() string { return "telegram" }

func (s *telegramSender) Send(ctx context.Context, _ events.Event, body string) error {
	var errs []error
	for _, target := range s.targets {
		if err := s.sendMessage(ctx, target, body); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", target.chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *telegramSender) sendMessage(ctx context.Context, target chatTarget, body string) error {
	payload := map[string]any{
		"chat_id": target.chatID,
		"text":    body,
	}
	if target.threadID > 0 {
		payload["message_thread_id"] = target.threadID
	}
	if s.parseMode != "" {
		payload["parse_mode"] = s.parseMode
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.token)
	return postJSON(ctx, s.client, url, nil, payload)
}

// postJSON posts a JSON payload and treats any non-2xx response as an error
// carrying a snippet of the response body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
