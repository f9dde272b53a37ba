package heart

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// ID prefixes, one per record kind.
const (
	PrefixBreath     = "inhale"
	PrefixPurify     = "purify"
	PrefixMeeting    = "meet"
	PrefixDefinition = "def"
	PrefixEvent      = "evt"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns "<prefix>-<ULID>" stamped with at. IDs generated within the same
// millisecond sort in generation order.
func NewID(prefix string, at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	// MustNew only fails when crypto/rand does, which leaves nothing to recover.
	return prefix + "-" + ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// SanitizeID keeps only [A-Za-z0-9_-] and truncates to MaxMeetingID characters,
// so the result is safe as a file name.
func SanitizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(id) {
		if r < utf8.RuneSelf && isIDByte(byte(r)) {
			b.WriteRune(r)
			if b.Len() == MaxMeetingID {
				break
			}
		}
	}
	return b.String()
}

func isIDByte(c byte) bool {
	return c == '-' || c == '_' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// Millis returns t as Unix milliseconds, the unit of every *At field on stored records.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// ISO formats t the way promotedAt and ledger "at" fields are written.
func ISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
