// Package update checks a release endpoint for newer versions of the daemon
// and optionally triggers self-update through an external applier.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xnetvn/monitord/internal/checks"
	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/events"
)

// Release is one published release of the daemon.
type Release struct {
	Tag        string
	TarballURL string
	ReleaseURL string
}

// Applier performs the actual self-update. The daemon itself never replaces
// its binary; it delegates to this collaborator (an external updater script
// in production).
type Applier interface {
	Apply(ctx context.Context, rel Release) error
}

// Restarter restarts the daemon's own service after a successful update.
type Restarter interface {
	Restart(ctx context.Context, service string) error
}

// Notifier receives update events.
type Notifier interface {
	Notify(event events.Event)
}

// state is persisted between checks. A missing or corrupt file simply means
// the next check is due immediately.
type state struct {
	LastCheckEpoch int64  `json:"last_check_epoch"`
	LastSeenTag    string `json:"last_seen_tag,omitempty"`
}

// Checker performs periodic release checks.
type Checker struct {
	cfg       config.UpdateConfig
	current   string
	client    *http.Client
	notifier  Notifier
	applier   Applier
	restarter Restarter
	log       *logrus.Entry

	now func() time.Time
}

// New builds a checker. applier and restarter may be nil when auto_update is
// disabled.
func New(
	cfg config.UpdateConfig,
	currentVersion string,
	netOpts checks.NetworkOptions,
	notifier Notifier,
	applier Applier,
	restarter Restarter,
	log *logrus.Entry,
) *Checker {
	return &Checker{
		cfg:       cfg,
		current:   currentVersion,
		client:    checks.NewHTTPClient(netOpts, true, 0),
		notifier:  notifier,
		applier:   applier,
		restarter: restarter,
		log:       log,
		now:       time.Now,
	}
}

// IsDue reports whether the check interval has elapsed since the last
// persisted check. Missing or unreadable state fails open: a check is due.
func (c *Checker) IsDue() bool {
	st, err := c.readState()
	if err != nil {
		c.log.WithError(err).Debug("no usable update state, check is due")
		return true
	}
	last := time.Unix(st.LastCheckEpoch, 0)
	return c.now().Sub(last) >= c.cfg.Interval.Or(0)
}

// FetchLatest queries the releases endpoint for the newest release.
func (c *Checker) FetchLatest(ctx context.Context) (Release, error) {
	if c.cfg.Repo == "" {
		return Release{}, fmt.Errorf("update_checker.repo is not configured")
	}
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.cfg.APIBaseURL, c.cfg.Repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Release{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("fetching latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Release{}, fmt.Errorf("release endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	var payload struct {
		TagName    string `json:"tag_name"`
		TarballURL string `json:"tarball_url"`
		HTMLURL    string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Release{}, fmt.Errorf("decoding release: %w", err)
	}
	if payload.TagName == "" {
		return Release{}, fmt.Errorf("release has no tag name")
	}
	return Release{
		Tag:        payload.TagName,
		TarballURL: payload.TarballURL,
		ReleaseURL: payload.HTMLURL,
	}, nil
}

// Run performs one update check. force skips the IsDue gate (used by the
// check-update command). All failures are logged, never fatal.
func (c *Checker) Run(ctx context.Context, force bool) {
	if !config.BoolOr(c.cfg.Enabled, false) {
		return
	}
	if !force && !c.IsDue() {
		return
	}

	rel, err := c.FetchLatest(ctx)
	if err != nil {
		c.log.WithError(err).Warn("update check failed")
		return
	}

	switch Compare(c.current, rel.Tag) {
	case Incomparable:
		c.log.WithFields(logrus.Fields{
			"current": c.current,
			"latest":  rel.Tag,
		}).Warn("cannot compare versions, skipping update check")
		c.persist(rel.Tag)
		return
	case Equal, Greater:
		c.log.WithField("latest", rel.Tag).Debug("no newer release")
		c.persist(rel.Tag)
		return
	}

	c.log.WithFields(logrus.Fields{
		"current": c.current,
		"latest":  rel.Tag,
	}).Info("newer release available")
	c.persist(rel.Tag)

	if c.cfg.NotifyOnUpdate && c.notifier != nil {
		c.notifier.Notify(events.NewUpdateAvailable(c.current, rel.Tag, rel.ReleaseURL))
	}

	if !c.cfg.AutoUpdate || c.applier == nil {
		return
	}
	if err := c.applier.Apply(ctx, rel); err != nil {
		// Leave the retry decision to the next interval; nothing else to do.
		c.log.WithError(err).Error("update apply failed")
		return
	}
	c.log.WithField("version", rel.Tag).Info("update applied")

	if c.cfg.ServiceName != "" && c.restarter != nil {
		if err := c.restarter.Restart(ctx, c.cfg.ServiceName); err != nil {
			c.log.WithError(err).Error("post-update restart failed")
		}
	}
}

func (c *Checker) readState() (state, error) {
	if c.cfg.StateFile == "" {
		return state{}, fmt.Errorf("no state file configured")
	}
	raw, err := os.ReadFile(c.cfg.StateFile)
	if err != nil {
		return state{}, err
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return state{}, fmt.Errorf("corrupt state file: %w", err)
	}
	if st.LastCheckEpoch <= 0 {
		return state{}, fmt.Errorf("state file has no last check time")
	}
	return st, nil
}

// persist records the check time and the tag we saw. Persistence failures
// only cost an extra check next tick.
func (c *Checker) persist(tag string) {
	if c.cfg.StateFile == "" {
		return
	}
	st := state{
		LastCheckEpoch: c.now().Unix(),
		LastSeenTag:    tag,
	}
	raw, err := json.Marshal(st)
	if err != nil {
		c.log.WithError(err).Warn("encoding update state failed")
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.cfg.StateFile), 0o755); err != nil {
		c.log.WithError(err).Warn("creating state directory failed")
		return
	}
	if err := os.WriteFile(c.cfg.StateFile, raw, 0o644); err != nil {
		c.log.WithError(err).Warn("writing update state failed")
	}
}
