package heart

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := NewID(PrefixBreath, now)

	if !strings.HasPrefix(id, "inhale-") {
		t.Errorf("id = %q, want inhale- prefix", id)
	}
	if got := SanitizeID(id); got != id {
		t.Errorf("generated id is not safe: %q -> %q", id, got)
	}
	// same millisecond still sorts in generation order
	next := NewID(PrefixBreath, now)
	if next <= id {
		t.Errorf("ids not monotonic: %q then %q", id, next)
	}
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"meet-01ABC", "meet-01ABC"},
		{"../../etc/passwd", "etcpasswd"},
		{" a b_c ", "ab_c"},
		{"회의-1", "-1"},
		{"", ""},
		{strings.Repeat("x", 100), strings.Repeat("x", MaxMeetingID)},
	}
	for _, tt := range tests {
		if got := SanitizeID(tt.in); got != tt.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
