package update

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
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

type captureNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureNotifier) Notify(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

type fakeApplier struct {
	applied []Release
	err     error
}

func (f *fakeApplier) Apply(_ context.Context, rel Release) error {
	f.applied = append(f.applied, rel)
	return f.err
}

type fakeRestarter struct {
	restarted []string
}

func (f *fakeRestarter) Restart(_ context.Context, service string) error {
	f.restarted = append(f.restarted, service)
	return nil
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func releaseServer(t *testing.T, tag string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/xnetvn/monitord/releases/latest", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tag_name":"` + tag + `","tarball_url":"https://example.com/tar","html_url":"https://example.com/rel"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newChecker(cfg config.UpdateConfig, current string, notifier Notifier, applier Applier, restarter Restarter) *Checker {
	return New(cfg, current, checks.NetworkOptions{}, notifier, applier, restarter, testLogger())
}

func TestIsDueFailsOpen(t *testing.T) {
	dir := t.TempDir()

	// No state file at all.
	c := newChecker(config.UpdateConfig{
		StateFile: filepath.Join(dir, "state.json"),
		Interval:  config.Seconds(3600),
	}, "1.0.0", nil, nil, nil)
	assert.True(t, c.IsDue())

	// Corrupt state file.
	require.NoError(t, os.WriteFile(c.cfg.StateFile, []byte("{not json"), 0o644))
	assert.True(t, c.IsDue())

	// Fresh state within the interval.
	c.persist("v1.0.0")
	assert.False(t, c.IsDue())

	// Interval elapsed.
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.True(t, c.IsDue())
}

func TestFetchLatest(t *testing.T) {
	srv := releaseServer(t, "v2.1.0")

	c := newChecker(config.UpdateConfig{
		Repo:       "xnetvn/monitord",
		APIBaseURL: srv.URL,
	}, "2.0.0", nil, nil, nil)

	rel, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2.1.0", rel.Tag)
	assert.Equal(t, "https://example.com/tar", rel.TarballURL)
	assert.Equal(t, "https://example.com/rel", rel.ReleaseURL)
}

func TestFetchLatestSendsAuthToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"tag_name":"v1.0.0"}`))
	}))
	defer srv.Close()

	c := newChecker(config.UpdateConfig{
		Repo:       "xnetvn/monitord",
		APIBaseURL: srv.URL,
		AuthToken:  "ghp_test",
	}, "1.0.0", nil, nil, nil)

	_, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer ghp_test", gotAuth)
}

func TestRunNotifiesOnNewerRelease(t *testing.T) {
	srv := releaseServer(t, "v1.1.0")
	notifier := &captureNotifier{}
	on := true

	c := newChecker(config.UpdateConfig{
		Enabled:        &on,
		Repo:           "xnetvn/monitord",
		APIBaseURL:     srv.URL,
		StateFile:      filepath.Join(t.TempDir(), "state.json"),
		Interval:       config.Seconds(3600),
		NotifyOnUpdate: true,
	}, "1.0.0", notifier, nil, nil)

	c.Run(context.Background(), false)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, events.TypeUpdateAvailable, notifier.events[0].Type)
	assert.Equal(t, "v1.1.0", notifier.events[0].Data["latest_version"])

	// State was persisted, so an immediate re-run is not due.
	assert.False(t, c.IsDue())
}

func TestRunSkipsIncomparableTag(t *testing.T) {
	srv := releaseServer(t, "nightly-2024")
	notifier := &captureNotifier{}
	on := true
	applier := &fakeApplier{}

	c := newChecker(config.UpdateConfig{
		Enabled:        &on,
		Repo:           "xnetvn/monitord",
		APIBaseURL:     srv.URL,
		NotifyOnUpdate: true,
		AutoUpdate:     true,
	}, "1.0.0", notifier, applier, nil)

	c.Run(context.Background(), true)

	assert.Empty(t, notifier.events)
	assert.Empty(t, applier.applied)
}

func TestRunAutoUpdateAppliesAndRestarts(t *testing.T) {
	srv := releaseServer(t, "v1.2.0")
	on := true
	applier := &fakeApplier{}
	restarter := &fakeRestarter{}

	c := newChecker(config.UpdateConfig{
		Enabled:     &on,
		Repo:        "xnetvn/monitord",
		APIBaseURL:  srv.URL,
		AutoUpdate:  true,
		ServiceName: "monitord",
	}, "1.0.0", nil, applier, restarter)

	c.Run(context.Background(), true)

	require.Len(t, applier.applied, 1)
	assert.Equal(t, "v1.2.0", applier.applied[0].Tag)
	assert.Equal(t, []string{"monitord"}, restarter.restarted)
}

func TestRunApplierFailureSkipsRestart(t *testing.T) {
	srv := releaseServer(t, "v1.2.0")
	on := true
	applier := &fakeApplier{err: errors.New("download failed")}
	restarter := &fakeRestarter{}

	c := newChecker(config.UpdateConfig{
		Enabled:     &on,
		Repo:        "xnetvn/monitord",
		APIBaseURL:  srv.URL,
		AutoUpdate:  true,
		ServiceName: "monitord",
	}, "1.0.0", nil, applier, restarter)

	c.Run(context.Background(), true)

	assert.Len(t, applier.applied, 1)
	assert.Empty(t, restarter.restarted)
}

func TestRunDisabledDoesNothing(t *testing.T) {
	off := false
	c := newChecker(config.UpdateConfig{Enabled: &off}, "1.0.0", nil, nil, nil)
	// No server configured; a fetch attempt would fail loudly.
	c.Run(context.Background(), true)
}
