package ops

import (
	"strings"
	"time"

	"github.com/harulua/coreheart/internal/errors"
)

// Read limits
const (
	DefaultBreathRecentLimit = 10
	DefaultInhaleRecentLimit = 30
	DefaultLedgerLimit       = 200
)

// Defaults applied by ConsumeBreath, MoveToPurify and RestoreFromPurify.
const (
	DefaultConsumeTo      = "meaning-cross"
	DefaultConsumeReason  = "MOVED"
	DefaultConsumeUserID  = "web"
	DefaultConsumePersona = "haru"
	DefaultPurifyReason   = "hold"
	RestoredRoomID        = "purify-bin"
)

// Journal reasons written by ConsumeBreath.
const (
	ReasonBreathConsume        = "BREATH_CONSUME"
	ReasonBreathConsumeToCross = "BREATH_CONSUME_TO_CROSS"
)

// previewRunes is how much of a dropped text reaches the log.
const previewRunes = 20

// nowFunc is the operation clock. Tests replace it.
var nowFunc = time.Now

// clampLimit applies def when limit is 0 and clamps the result to [1, max].
func clampLimit(limit, def, max int) int {
	if limit == 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// internal converts a storage failure to an INTERNAL error, passing typed
// errors through unchanged.
func internal(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewInternal(err)
}

// cleanStrings trims every element and drops blanks. Never returns nil.
func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
