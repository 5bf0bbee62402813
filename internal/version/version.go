// Package version exposes the build version and the version gate used by
// the remote entrypoint. The gate runs before any task code loads so that
// incompatible orchestrator/remote pairs fail loudly instead of silently
// producing wrong results.
package version

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

//go:embed VERSION
var versionContent string

// MinRemoteVersion is the constraint passed to every remote job via
// --check-version. Remote binaries that do not satisfy it abort before
// loading task code.
const MinRemoteVersion = ">=0.3.0"

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// Satisfies reports whether current meets the constraint. Supported forms
// are ">=X.Y.Z", "==X.Y.Z", and a bare "X.Y.Z" which means ">=".
func Satisfies(current, constraint string) (bool, error) {
	constraint = strings.TrimSpace(constraint)

	op := ">="
	switch {
	case strings.HasPrefix(constraint, ">="):
		constraint = constraint[2:]
	case strings.HasPrefix(constraint, "=="):
		op = "=="
		constraint = constraint[2:]
	}

	cur := canonical(current)
	want := canonical(constraint)
	if !semver.IsValid(cur) {
		return false, fmt.Errorf("invalid version %q", current)
	}
	if !semver.IsValid(want) {
		return false, fmt.Errorf("invalid version constraint %q", constraint)
	}

	cmp := semver.Compare(cur, want)
	if op == "==" {
		return cmp == 0, nil
	}
	return cmp >= 0, nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
