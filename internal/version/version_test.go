package version

import "testing"

func TestGet(t *testing.T) {
	if Get() == "" {
		t.Fatal("expected non-empty version")
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		current    string
		constraint string
		want       bool
	}{
		{"0.3.0", ">=0.3.0", true},
		{"0.4.1", ">=0.3.0", true},
		{"0.2.9", ">=0.3.0", false},
		{"0.3.0", "==0.3.0", true},
		{"0.3.1", "==0.3.0", false},
		{"0.3.0", "0.3.0", true},
		{"0.2.0", "0.3.0", false},
		{"1.0.0", ">=0.3.0", true},
	}

	for _, tt := range tests {
		got, err := Satisfies(tt.current, tt.constraint)
		if err != nil {
			t.Errorf("Satisfies(%q, %q): %v", tt.current, tt.constraint, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Satisfies(%q, %q) = %v, want %v", tt.current, tt.constraint, got, tt.want)
		}
	}
}

func TestSatisfiesInvalid(t *testing.T) {
	if _, err := Satisfies("not-a-version", ">=0.3.0"); err == nil {
		t.Error("expected error for invalid current version")
	}
	if _, err := Satisfies("0.3.0", ">=bogus"); err == nil {
		t.Error("expected error for invalid constraint")
	}
}
