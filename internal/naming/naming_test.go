package naming

import (
	"strings"
	"testing"
)

func TestJobNameRoundTrip(t *testing.T) {
	hashes := []string{
		"c000d7f9b6275c58aff9d5466f6a1174e99195ca",
		"eval_hash",
		"h1",
		"123456789",
	}

	for _, hash := range hashes {
		name := JobName("regatta-job", hash)
		if !strings.HasPrefix(name, "regatta-job") {
			t.Errorf("expected name with prefix regatta-job, got %q", name)
		}
		got, ok := HashFromName(name)
		if !ok {
			t.Fatalf("expected hash in name %q", name)
		}
		if got != hash {
			t.Errorf("expected hash %q from %q, got %q", hash, name, got)
		}
	}
}

func TestJobNameLengthBound(t *testing.T) {
	hash := strings.Repeat("a", 40)
	name := JobName(strings.Repeat("very-long-prefix-", 10), hash)
	if len(name) > MaxNameLength {
		t.Errorf("expected name within %d characters, got %d (%q)", MaxNameLength, len(name), name)
	}

	// The hash must survive truncation whole.
	got, ok := HashFromName(name)
	if !ok || got != hash {
		t.Errorf("expected hash %q after truncation, got %q (ok=%v)", hash, got, ok)
	}
}

func TestJobNameSanitizesPrefix(t *testing.T) {
	name := JobName("My Weird//Prefix", "abc123")
	if name != "my-weird-prefix-abc123" {
		t.Errorf("unexpected sanitized name %q", name)
	}
}

func TestHashFromNameUnrelatedJobs(t *testing.T) {
	// Names not produced by JobName must yield no hash, never an error.
	for _, name := range []string{
		"liveratlas_spearmancor_automation_headnode",
		"headnode",
		"",
		"trailing-",
	} {
		if hash, ok := HashFromName(name); ok {
			t.Errorf("expected no hash for %q, got %q", name, hash)
		}
	}
}

func TestHashFromNameSharedPrefix(t *testing.T) {
	// Jobs spawned by an unrelated control job can share our prefix; the
	// ones that do embed hashes must still be recognized.
	prefix := "liveratlas_spearmancor"

	hash, ok := HashFromName(prefix + "_preprocess-123456789")
	if !ok || hash != "123456789" {
		t.Errorf("expected hash 123456789, got %q (ok=%v)", hash, ok)
	}

	hash, ok = HashFromName(prefix + "_decode-987654321")
	if !ok || hash != "987654321" {
		t.Errorf("expected hash 987654321, got %q (ok=%v)", hash, ok)
	}
}
