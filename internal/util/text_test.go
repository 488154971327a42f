package util

import "testing"

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than max", "abc", 10, "abc"},
		{"exact length", "abc", 3, "abc"},
		{"truncated", "abcdef", 3, "abc"},
		{"multibyte boundary", "héllo wörld", 4, "héll"},
		{"zero max", "abc", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.in, tt.max); got != tt.want {
				t.Fatalf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestHasAlnum(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"abc", true},
		{"123", true},
		{"ümlaut", true},
		{"!!", false},
		{"  ", false},
		{"", false},
		{"--a", true},
	}
	for _, tt := range tests {
		if got := HasAlnum(tt.in); got != tt.want {
			t.Errorf("HasAlnum(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	if got := CollapseWhitespace("  a \t b\n\nc "); got != "a b c" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestSanitizePostgresText(t *testing.T) {
	if got := SanitizePostgresText("a\x00b"); got != "ab" {
		t.Fatalf("null byte not removed: %q", got)
	}
	if got := SanitizePostgresText(""); got != "" {
		t.Fatalf("expected empty passthrough, got %q", got)
	}
}
