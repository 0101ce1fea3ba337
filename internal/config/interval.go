package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Interval is a duration that accepts either a bare number of seconds or a
// {value, unit} mapping in YAML:
//
//	check_interval: 60
//	action_cooldown: {value: 15, unit: minutes}
type Interval struct {
	time.Duration
}

// Seconds constructs an Interval from a number of seconds.
func Seconds(n int) Interval {
	return Interval{Duration: time.Duration(n) * time.Second}
}

var unitMultipliers = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second,
	"second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute,
	"minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour,
	"hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (i *Interval) UnmarshalYAML(node *yaml.Node) error {
	// Unresolved ${VAR} placeholders become null; treat as unset.
	if node.Tag == "!!null" {
		i.Duration = 0
		return nil
	}

	var secs float64
	if err := node.Decode(&secs); err == nil {
		if secs < 0 {
			secs = 0
		}
		i.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}

	var vu struct {
		Value float64 `yaml:"value"`
		Unit  string  `yaml:"unit"`
	}
	if err := node.Decode(&vu); err != nil {
		return fmt.Errorf("interval must be seconds or {value, unit}: %w", err)
	}

	unit := strings.ToLower(strings.TrimSpace(vu.Unit))
	if unit == "" {
		unit = "seconds"
	}
	mult, ok := unitMultipliers[unit]
	if !ok {
		return fmt.Errorf("unsupported interval unit %q", vu.Unit)
	}
	if vu.Value < 0 {
		vu.Value = 0
	}
	i.Duration = time.Duration(vu.Value * float64(mult))
	return nil
}

// Or returns the interval, or fallback when unset.
func (i Interval) Or(fallback time.Duration) time.Duration {
	if i.Duration <= 0 {
		return fallback
	}
	return i.Duration
}
