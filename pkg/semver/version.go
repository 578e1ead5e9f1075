// Package semver implements the plugin runtime's version and range
// grammar: three-component versions with an optional prerelease tag, and
// range expressions (exact, caret, tilde, comparator list) over them.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a three-component version with an optional prerelease tag.
// Build metadata, if present in the source string, is parsed but ignored
// by Compare (it carries no ordering weight).
type Version struct {
	Major, Minor, Patch int
	Prerelease          string
	raw                 string
}

var versionPattern = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z.-]+))?(?:\+([0-9A-Za-z.-]+))?$`)

// InvalidVersionError reports a version string that does not match the
// grammar.
type InvalidVersionError struct {
	Input string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version: %q", e.Input)
}

// ParseVersion parses a version string, zero-padding shorter forms such
// as "1" or "1.2".
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	m := versionPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Version{}, &InvalidVersionError{Input: s}
	}

	major, _ := strconv.Atoi(m[1])
	minor := 0
	if m[2] != "" {
		minor, _ = strconv.Atoi(m[2])
	}
	patch := 0
	if m[3] != "" {
		patch, _ = strconv.Atoi(m[3])
	}

	return Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: m[4],
		raw:        trimmed,
	}, nil
}

// MustParseVersion parses s, panicking on failure. Intended for
// compile-time-known literals (tests, constants), never for
// manifest-sourced input.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version in canonical major.minor.patch[-prerelease]
// form.
func (v Version) String() string {
	base := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		base += "-" + v.Prerelease
	}
	return base
}

// MarshalText implements encoding.TextMarshaler so a Version round-trips
// through JSON as a plain version string. Descriptors and manifests hold
// their versions as strings and do not use it.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other. The core is compared component-wise; a present prerelease
// compares lower than its absence; two present prereleases compare
// lexicographically.
func (v Version) Compare(other Version) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}

	switch {
	case v.Prerelease == "" && other.Prerelease == "":
		return 0
	case v.Prerelease == "" && other.Prerelease != "":
		return 1
	case v.Prerelease != "" && other.Prerelease == "":
		return -1
	default:
		return strings.Compare(v.Prerelease, other.Prerelease)
	}
}

// LessThan reports whether v sorts strictly before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// GreaterOrEqual reports whether v sorts at or after other.
func (v Version) GreaterOrEqual(other Version) bool { return v.Compare(other) >= 0 }

// Core returns v with its prerelease tag cleared, used when comparing
// range bounds against "the same core version".
func (v Version) Core() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IsVersionCompatible implements the Bundle Loader's lexical
// "current >= min" host-version gate, tolerant of differing segment
// counts and a prerelease tag on either side. A blank min is always
// compatible.
func IsVersionCompatible(current, min string) bool {
	if strings.TrimSpace(min) == "" {
		return true
	}
	cv, err := ParseVersion(current)
	if err != nil {
		return false
	}
	mv, err := ParseVersion(min)
	if err != nil {
		return false
	}
	return cv.GreaterOrEqual(mv)
}
