// Package events defines the structured notification events exchanged
// between the monitors and the notification dispatcher. Events cross
// component boundaries by value; no monitor state leaks through them.
package events

import (
	"time"
)

// Type identifies what happened.
type Type string

const (
	// TypeServiceDown indicates a service health check failed
	TypeServiceDown Type = "service_down"
	// TypeServiceRecoveryStart indicates a recovery action is about to run
	TypeServiceRecoveryStart Type = "service_recovery_start"
	// TypeServiceRecovered indicates a service came back after a restart
	TypeServiceRecovered Type = "service_recovered"
	// TypeServiceEscalated indicates restart attempts were exhausted
	TypeServiceEscalated Type = "service_escalated"
	// TypeResourceThreshold indicates a resource rule breached its threshold
	TypeResourceThreshold Type = "resource_threshold"
	// TypeResourceRecovery indicates a resource recovery action completed
	TypeResourceRecovery Type = "resource_recovery"
	// TypeUpdateAvailable indicates a newer release was found
	TypeUpdateAvailable Type = "update_available"
	// TypeStartupTest is the synthetic event sent when test_on_startup is set
	TypeStartupTest Type = "startup_test"
)

// Source identifies which component emitted the event.
type Source string

const (
	SourceService  Source = "service"
	SourceResource Source = "resource"
	SourceAction   Source = "action"
	SourceUpdate   Source = "update"
)

// Severity is the alert level of an event. Severity is assigned at creation
// and never downgraded on the way to delivery.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityDebug:    0,
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityError:    3,
	SeverityCritical: 4,
}

// Rank returns the numeric rank of s. Unknown severities rank as info so a
// typo in configuration cannot silently drop alerts.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeverityInfo]
}

// AtLeast reports whether s meets the minimum severity min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity normalizes a configured severity string. Empty or unknown
// values fall back to info.
func ParseSeverity(v string) Severity {
	switch Severity(v) {
	case SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return Severity(v)
	}
	return SeverityInfo
}

// Event is one notification-worthy occurrence.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is what happened
	Type Type `json:"type"`
	// Source is the component that emitted the event
	Source Source `json:"source"`
	// Severity is the alert level, fixed at creation
	Severity Severity `json:"severity"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// Entity names the service, resource rule, or subject of the event
	Entity string `json:"entity"`
	// Message is the one-line human-readable summary
	Message string `json:"message"`
	// Detail carries diagnostic text (check output, command output)
	Detail string `json:"detail,omitempty"`
	// Data holds structured, type-specific fields for webhook payloads
	Data map[string]any `json:"data,omitempty"`
}
