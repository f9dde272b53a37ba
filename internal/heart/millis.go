package heart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxMillis bounds accepted timestamps to what int64 and float64 agree on.
const maxMillis = 1 << 53

// ParseMillis reads a JSON timestamp as Unix milliseconds. Integers, fractional
// numbers (truncated), numeric strings and RFC 3339 strings are accepted.
// null and "" are zero.
func ParseMillis(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		if ms, err := parseNumber(s); err == nil {
			return ms, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return 0, fmt.Errorf("timestamp %q is neither milliseconds nor RFC 3339", s)
		}
		return t.UnixMilli(), nil
	}

	return parseNumber(string(raw))
}

func parseNumber(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("timestamp %s is not a number", s)
	}
	if math.IsNaN(f) || math.Abs(f) > maxMillis {
		return 0, fmt.Errorf("timestamp %s out of range", s)
	}
	return int64(f), nil
}

// Timestamp is an int64 millisecond field that decodes with ParseMillis.
// Request bodies use it; stored records keep plain int64.
type Timestamp int64

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	ms, err := ParseMillis(b)
	if err != nil {
		return err
	}
	*t = Timestamp(ms)
	return nil
}
