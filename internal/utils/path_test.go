package utils

import "testing"

func TestJoinPath(t *testing.T) {
	tests := []struct {
		parts    []string
		expected string
	}{
		{nil, "/"},
		{[]string{"", "/"}, "/"},
		{[]string{"api", "histories"}, "/api/histories"},
		{[]string{"/api/", "histories", "f2db41e1fa331b3e", "contents"}, "/api/histories/f2db41e1fa331b3e/contents"},
		{[]string{"api", "histories", "a b"}, "/api/histories/a%20b"},
	}

	for _, tt := range tests {
		if got := JoinPath(tt.parts...); got != tt.expected {
			t.Errorf("JoinPath(%q) = %q, want %q", tt.parts, got, tt.expected)
		}
	}
}

func TestJoinURL(t *testing.T) {
	if got := JoinURL("https://example.org/galaxy/", "api", "histories"); got != "https://example.org/galaxy/api/histories" {
		t.Errorf("Unexpected URL: %s", got)
	}
}
