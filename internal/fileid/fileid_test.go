package fileid

import (
	"strings"
	"testing"
)

func TestSourceKey(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"identical", "/data/hotels.json", "/data/hotels.json", true},
		{"trailing slash", "/data/dir", "/data/dir/", true},
		{"dot segment", "/data/hotels.json", "/data/./hotels.json", true},
		{"different files", "/data/a.json", "/data/b.json", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, kb := SourceKey(tt.a), SourceKey(tt.b)
			if (ka == kb) != tt.same {
				t.Errorf("SourceKey(%q)=%q, SourceKey(%q)=%q, same=%v", tt.a, ka, tt.b, kb, tt.same)
			}
			if !strings.HasPrefix(ka, prefix) {
				t.Errorf("key should have prefix %q: %q", prefix, ka)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("hello"))
	if a != Fingerprint([]byte("hello")) {
		t.Error("fingerprint should be deterministic")
	}
	if a == Fingerprint([]byte("hello!")) {
		t.Error("different content should differ")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}
