package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xnetvn/monitord/internal/checks"
	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/events"
)

func TestParseChatID(t *testing.T) {
	cases := []struct {
		in      string
		chat    string
		thread  int
		wantErr bool
	}{
		{in: "-1001234567", chat: "-1001234567"},
		{in: "-1001234567_89", chat: "-1001234567", thread: 89},
		{in: "12345", chat: "12345"},
		{in: "-100_0", wantErr: true},
		{in: "-100_abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		target, err := parseChatID(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.chat, target.chatID)
		assert.Equal(t, tc.thread, target.threadID)
	}
}

func TestTelegramSendMessage(t *testing.T) {
	type sendReq struct {
		ChatID   string `json:"chat_id"`
		Text     string `json:"text"`
		ThreadID int    `json:"message_thread_id"`
		Mode     string `json:"parse_mode"`
	}
	var got []sendReq

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottok123/sendMessage", r.URL.Path)
		var req sendReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = append(got, req)
	}))
	defer srv.Close()

	sender, err := newTelegramSender(config.TelegramChannel{
		BotToken:   "tok123",
		ChatIDs:    []string{"-100111", "-100222_7"},
		ParseMode:  "HTML",
		APIBaseURL: srv.URL,
	}, checks.NetworkOptions{})
	require.NoError(t, err)

	err = sender.Send(context.Background(), events.NewStartupTest("telegram"), "[host1] hello")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "-100111", got[0].ChatID)
	assert.Zero(t, got[0].ThreadID)
	assert.Equal(t, "-100222", got[1].ChatID)
	assert.Equal(t, 7, got[1].ThreadID)
	assert.Equal(t, "[host1] hello", got[0].Text)
	assert.Equal(t, "HTML", got[0].Mode)
}

func TestTelegramAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	sender, err := newTelegramSender(config.TelegramChannel{
		BotToken:   "tok",
		ChatIDs:    []string{"-100111"},
		APIBaseURL: srv.URL,
	}, checks.NetworkOptions{})
	require.NoError(t, err)

	err = sender.Send(context.Background(), events.NewStartupTest("telegram"), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "chat not found")
}
