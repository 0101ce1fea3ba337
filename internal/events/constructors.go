package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func newEvent(typ Type, source Source, severity Severity, entity, message string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Source:    source,
		Severity:  severity,
		Timestamp: time.Now(),
		Entity:    entity,
		Message:   message,
	}
}

// NewServiceDown creates a failure event for a service check. Critical
// services alert at critical severity, others at error.
func NewServiceDown(service, checkMethod, detail string, critical bool) Event {
	sev := SeverityError
	if critical {
		sev = SeverityCritical
	}
	e := newEvent(TypeServiceDown, SourceService, sev, service,
		fmt.Sprintf("Service %s is not running", service))
	e.Detail = detail
	e.Data = map[string]any{
		"check_method": checkMethod,
		"critical":     critical,
	}
	return e
}

// NewServiceRecoveryStart announces that a restart is about to be attempted.
func NewServiceRecoveryStart(service string, attempt, maxAttempts int) Event {
	e := newEvent(TypeServiceRecoveryStart, SourceAction, SeverityWarning, service,
		fmt.Sprintf("Restarting service %s (attempt %d/%d)", service, attempt, maxAttempts))
	e.Data = map[string]any{
		"attempt":      attempt,
		"max_attempts": maxAttempts,
	}
	return e
}

// NewServiceRecovered reports a successful recovery after restart.
func NewServiceRecovered(service, detail string) Event {
	e := newEvent(TypeServiceRecovered, SourceAction, SeverityInfo, service,
		fmt.Sprintf("Service %s recovered", service))
	e.Detail = detail
	return e
}

// NewServiceEscalated reports that restart attempts are exhausted and no
// further automatic recovery will run.
func NewServiceEscalated(service string, attempts int, detail string) Event {
	e := newEvent(TypeServiceEscalated, SourceService, SeverityCritical, service,
		fmt.Sprintf("Service %s escalated after %d failed restart attempts", service, attempts))
	e.Detail = detail
	e.Data = map[string]any{"attempts": attempts}
	return e
}

// NewResourceThreshold reports a breached resource rule.
func NewResourceThreshold(rule, message, detail string, data map[string]any) Event {
	e := newEvent(TypeResourceThreshold, SourceResource, SeverityError, rule, message)
	e.Detail = detail
	e.Data = data
	return e
}

// NewResourceRecovery reports the outcome of resource recovery actions.
func NewResourceRecovery(rule string, success bool, detail string, data map[string]any) Event {
	sev := SeverityInfo
	if !success {
		sev = SeverityError
	}
	e := newEvent(TypeResourceRecovery, SourceAction, sev, rule,
		fmt.Sprintf("Recovery for %s %s", rule, successWord(success)))
	e.Detail = detail
	e.Data = data
	return e
}

// NewUpdateAvailable reports a newer release.
func NewUpdateAvailable(current, latest, releaseURL string) Event {
	e := newEvent(TypeUpdateAvailable, SourceUpdate, SeverityInfo, "monitord",
		fmt.Sprintf("Update available: %s (current %s)", latest, current))
	e.Data = map[string]any{
		"current_version": current,
		"latest_version":  latest,
		"release_url":     releaseURL,
	}
	return e
}

// NewStartupTest creates the synthetic event used to verify a channel at
// startup when test_on_startup is enabled.
func NewStartupTest(channel string) Event {
	return newEvent(TypeStartupTest, SourceAction, SeverityInfo, channel,
		fmt.Sprintf("Test notification for channel %s", channel))
}

func successWord(ok bool) string {
	if ok {
		return "succeeded"
	}
	return "failed"
}
