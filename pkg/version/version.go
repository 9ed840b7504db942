// SPDX-License-Identifier: MPL-2.0

// Package version contains the value type for container engine versions of
// the form "$major.$minor.$patch[-$release][ build $build]".
package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
var ErrInvalidVersion = errors.New("invalid version string")

// InvalidVersionError is returned by Parse for strings that do not match the
// version grammar.
type InvalidVersionError struct {
	Value string
}

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version string %q", e.Value)
}

// Unwrap returns ErrInvalidVersion so callers can use errors.Is for
// programmatic detection.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// Version is an engine version. Patch is optional: a version parsed without a
// patch level keeps HasPatch unset, prints without the patch and compares as
// patch 0. Release and Build take part in equality but never in ordering.
type Version struct {
	Major    int
	Minor    int
	Patch    int
	HasPatch bool
	Release  string
	Build    string
}

var versionRe = regexp.MustCompile(
	`^(?P<major>\d+)(\.(?P<minor>\d+))?(\.(?P<patch>\d+))?` +
		`([+-](?P<release>\S+))?( build (?P<build>\S+))?$`)

// Parse parses a version string. Leading and trailing whitespace is
// tolerated, the minor and patch levels are optional.
func Parse(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, &InvalidVersionError{Value: s}
	}

	group := func(name string) string {
		return m[versionRe.SubexpIndex(name)]
	}

	// the regexp guarantees the numeric groups are digit-only
	v := Version{
		Release: group("release"),
		Build:   group("build"),
	}
	v.Major, _ = strconv.Atoi(group("major"))
	if minor := group("minor"); minor != "" {
		v.Minor, _ = strconv.Atoi(minor)
	}
	if patch := group("patch"); patch != "" {
		v.Patch, _ = strconv.Atoi(patch)
		v.HasPatch = true
	}
	return v, nil
}

// MustParse is Parse for static version strings; it panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version. The patch level is omitted when it was absent,
// so Parse(v.String()) reproduces v.
func (v Version) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d", v.Major, v.Minor)
	if v.HasPatch {
		fmt.Fprintf(&sb, ".%d", v.Patch)
	}
	if v.Release != "" {
		sb.WriteString("-" + v.Release)
	}
	if v.Build != "" {
		sb.WriteString(" build " + v.Build)
	}
	return sb.String()
}

// effectivePatch treats an absent patch level as 0.
func (v Version) effectivePatch() int {
	if !v.HasPatch {
		return 0
	}
	return v.Patch
}

// Compare orders two versions by major, minor and patch. Release and build
// are deliberately ignored: they carry no defined ordering.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return cmpInt(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return cmpInt(v.Minor, other.Minor)
	}
	return cmpInt(v.effectivePatch(), other.effectivePatch())
}

// Equal reports full equality including release and build. An absent patch
// level equals an explicit patch 0.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0 &&
		v.Release == other.Release &&
		v.Build == other.Build
}

// AtLeast reports whether v orders greater than or equal to other.
func (v Version) AtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
