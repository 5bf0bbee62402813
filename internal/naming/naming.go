// Package naming maps between logical eval hashes and backend job names.
// The name is the only correlation the startup reconciler has with jobs
// already running on a backend, so the mapping must be deterministic and
// reversible.
package naming

import "strings"

// MaxNameLength is the longest name accepted by the strictest supported
// backend (container-orchestration object names cap at 63 characters).
const MaxNameLength = 63

// JobName derives a backend-legal job name from a prefix and an eval hash.
// The hash is appended after a dash and is never truncated; the prefix is
// sanitized and shortened as needed to stay within MaxNameLength. The hash
// must not contain a dash, otherwise HashFromName cannot invert the name.
func JobName(prefix, evalHash string) string {
	prefix = sanitize(prefix)
	if prefix == "" {
		prefix = "job"
	}
	max := MaxNameLength - len(evalHash) - 1
	if max < 1 {
		max = 1
	}
	if len(prefix) > max {
		prefix = strings.TrimRight(prefix[:max], "-")
	}
	return prefix + "-" + evalHash
}

// HashFromName extracts the eval hash embedded in a job name, returning
// ("", false) when the name carries no recognizable hash. Backends may
// return jobs from unrelated processes under a shared prefix (for example a
// manually launched control job); those must be skipped silently rather than
// treated as a parse failure.
func HashFromName(name string) (string, bool) {
	idx := strings.LastIndex(name, "-")
	if idx < 0 || idx == len(name)-1 {
		return "", false
	}
	return name[idx+1:], true
}

// sanitize lowercases the prefix and replaces characters the backends
// reject in object names. Runs of invalid characters collapse to one dash.
func sanitize(prefix string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(prefix) {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		switch {
		case valid:
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
