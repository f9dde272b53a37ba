package heart

import (
	"strings"
	"unicode/utf8"
)

// Drop reasons reported by ShouldDrop.
const (
	DropEmpty    = "empty"
	DropDenylist = "denylist"
	DropRepeat   = "repeat"
	DropTooLong  = "too_long"
)

// denylist is the built-in set of hard profanity, threat and slur terms.
var denylist = []string{
	"씨발", "시발", "병신", "좆", "존나", "꺼져", "죽어", "좃나", "쌍", "개새끼", "미친놈", "미친년",
}

// FilterPolicy tunes ShouldDrop. Zero values fall back to the defaults.
type FilterPolicy struct {
	MaxChars   int
	RepeatRun  int
	ExtraTerms []string
}

const (
	defaultMaxChars  = 2000
	defaultRepeatRun = 8
)

// ShouldDrop reports whether an inbound breath text must be discarded without
// being stored, and why. It is a best-effort heuristic with no allow-list.
func ShouldDrop(text string, policy FilterPolicy) (bool, string) {
	t := strings.TrimSpace(text)
	if t == "" {
		return true, DropEmpty
	}

	for _, term := range denylist {
		if strings.Contains(t, term) {
			return true, DropDenylist
		}
	}
	for _, term := range policy.ExtraTerms {
		if term = strings.TrimSpace(term); term != "" && strings.Contains(t, term) {
			return true, DropDenylist
		}
	}

	runLimit := policy.RepeatRun
	if runLimit <= 0 {
		runLimit = defaultRepeatRun
	}
	if longestRun(t) >= runLimit {
		return true, DropRepeat
	}

	maxChars := policy.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	if utf8.RuneCountInString(t) > maxChars {
		return true, DropTooLong
	}

	return false, ""
}

// longestRun returns the length of the longest run of one repeated rune.
// Line terminators never form or extend a run.
func longestRun(s string) int {
	longest, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		if isLineTerminator(r) {
			prev, run = -1, 0
			continue
		}
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

func isLineTerminator(r rune) bool {
	return r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029'
}

// Preview returns at most n runes of s, for log lines.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
