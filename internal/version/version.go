// Package version carries the build version and the protocol compatibility
// check used by `miner compat`.
package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Set at build time with -ldflags "-X checkerminer/internal/version.Version=...".
var (
	Version = "1.2.0"
	Commit  = "dev"
)

// Canonical returns s as "vMAJOR.MINOR.PATCH[-pre]". The leading "v" is
// optional and missing minor/patch parts read as zero; build metadata is
// dropped.
func Canonical(s string) (string, error) {
	v := strings.TrimSpace(s)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid version %q", s)
	}
	return semver.Canonical(v), nil
}

// Current returns the canonical build version, or the raw Version string if
// it does not parse.
func Current() string {
	v, err := Canonical(Version)
	if err != nil {
		return Version
	}
	return v
}

// Compatible reports whether a miner at canonical version have can serve a
// validator requiring canonical version want: same major, and have's minor at
// least want's. Patch levels and pre-release tags are ignored.
func Compatible(have, want string) bool {
	if !semver.IsValid(have) || !semver.IsValid(want) {
		return false
	}
	return semver.Major(have) == semver.Major(want) &&
		semver.Compare(semver.MajorMinor(have), semver.MajorMinor(want)) >= 0
}

// Check parses required and compares it with the build version.
func Check(required string) error {
	want, err := Canonical(required)
	if err != nil {
		return err
	}
	have := Current()
	if !Compatible(have, want) {
		return fmt.Errorf("miner %s is not compatible with required version %s", have, want)
	}
	return nil
}
