package update

import (
	"regexp"
	"strconv"
	"strings"
)

// Ordering is the outcome of a version comparison. Incomparable means at
// least one side is not a strict semantic version; callers must treat it as
// "cannot decide", never as "older".
type Ordering int

const (
	Less         Ordering = -1
	Equal        Ordering = 0
	Greater      Ordering = 1
	Incomparable Ordering = 2
)

// semverPattern accepts MAJOR.MINOR.PATCH with optional prerelease and build
// metadata, and an optional leading "v". Two-component versions like "1.0"
// deliberately do not match.
var semverPattern = regexp.MustCompile(
	`^v?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?(?:\+[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*)?$`)

type version struct {
	major, minor, patch int
	prerelease          []string
}

func parse(s string) (version, bool) {
	m := semverPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return version{}, false
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	v := version{major: major, minor: minor, patch: patch}
	if m[4] != "" {
		v.prerelease = strings.Split(m[4], ".")
	}
	return v, true
}

// Compare orders two version strings. Build metadata is ignored; prerelease
// precedence follows SemVer §11.
func Compare(a, b string) Ordering {
	va, okA := parse(a)
	vb, okB := parse(b)
	if !okA || !okB {
		return Incomparable
	}

	if c := cmpInt(va.major, vb.major); c != Equal {
		return c
	}
	if c := cmpInt(va.minor, vb.minor); c != Equal {
		return c
	}
	if c := cmpInt(va.patch, vb.patch); c != Equal {
		return c
	}
	return cmpPrerelease(va.prerelease, vb.prerelease)
}

func cmpInt(a, b int) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

func cmpPrerelease(a, b []string) Ordering {
	// A release outranks any prerelease of the same version.
	if len(a) == 0 && len(b) == 0 {
		return Equal
	}
	if len(a) == 0 {
		return Greater
	}
	if len(b) == 0 {
		return Less
	}

	for i := 0; i < len(a) && i < len(b); i++ {
		if c := cmpIdentifier(a[i], b[i]); c != Equal {
			return c
		}
	}
	return cmpInt(len(a), len(b))
}

func cmpIdentifier(a, b string) Ordering {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return cmpInt(na, nb)
	case errA == nil:
		// Numeric identifiers always have lower precedence.
		return Less
	case errB == nil:
		return Greater
	default:
		return cmpInt(strings.Compare(a, b), 0)
	}
}
