package db

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/harulua/coreheart/internal/heart"
)

// migration rewrites a raw document in place and reports whether it changed anything.
type migration struct {
	name  string
	apply func(doc map[string]json.RawMessage) bool
}

// Applied in order, once per load. New shapes go at the end of a list.
var (
	breathMigrations = []migration{
		{"items-array", ensureArray("items")},
	}
	purifyMigrations = []migration{
		{"items-array", ensureArray("items")},
	}
	centralMigrations = []migration{
		{"central-to-items", renameArray("central", "items")},
		{"items-array", ensureArray("items")},
	}
	ledgerMigrations = []migration{
		{"events-array", ensureArray("events")},
	}
)

func applyMigrations(logger *slog.Logger, key string, doc map[string]json.RawMessage, migrations []migration) {
	for _, m := range migrations {
		if m.apply(doc) {
			logger.Debug("document migrated", "key", key, "migration", m.name)
		}
	}
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// ensureArray coerces a missing or non-array field to [].
func ensureArray(field string) func(map[string]json.RawMessage) bool {
	return func(doc map[string]json.RawMessage) bool {
		if isArray(doc[field]) {
			return false
		}
		doc[field] = json.RawMessage("[]")
		return true
	}
}

// renameArray moves an array stored under from to to, unless to already holds one.
func renameArray(from, to string) func(map[string]json.RawMessage) bool {
	return func(doc map[string]json.RawMessage) bool {
		if isArray(doc[to]) || !isArray(doc[from]) {
			return false
		}
		doc[to] = doc[from]
		delete(doc, from)
		return true
	}
}

// Timestamp fields coerced with heart.ParseMillis when an item fails to decode.
var (
	breathMillisFields = []string{"createdAt", "receivedAt", "consumedAt"}
	purifyMillisFields = []string{"movedAt"}
)

// decodeItems decodes a JSON array element by element. An element that does
// not decode as T is retried with millisFields coerced to integer
// milliseconds; if it still fails it is returned in skipped, so one bad record
// cannot hide the rest and the caller can copy it aside.
func decodeItems[T any](logger *slog.Logger, key string, raw json.RawMessage, millisFields ...string) (items []T, skipped []json.RawMessage) {
	items = []T{}
	if len(raw) == 0 {
		return items, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		logger.Warn("document items not an array", "key", key, "error", err)
		return items, nil
	}

	for i, e := range elems {
		if bytes.Equal(bytes.TrimSpace(e), []byte("null")) {
			continue
		}
		var v T
		err := json.Unmarshal(e, &v)
		if err != nil {
			if fixed, ok := coerceMillis(e, millisFields); ok {
				var zero T
				v = zero
				err = json.Unmarshal(fixed, &v)
			}
		}
		if err != nil {
			logger.Warn("skipping undecodable item", "key", key, "index", i, "error", err)
			skipped = append(skipped, e)
			continue
		}
		items = append(items, v)
	}
	return items, skipped
}

// coerceMillis rewrites the named fields of a JSON object as integer
// milliseconds. It reports false when elem is not an object, no field
// changed, or a field is not a timestamp.
func coerceMillis(elem json.RawMessage, fields []string) (json.RawMessage, bool) {
	if len(fields) == 0 {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(elem, &obj); err != nil || obj == nil {
		return nil, false
	}

	changed := false
	for _, f := range fields {
		v, ok := obj[f]
		if !ok {
			continue
		}
		ms, err := heart.ParseMillis(v)
		if err != nil {
			return nil, false
		}
		norm := json.RawMessage(strconv.FormatInt(ms, 10))
		if !bytes.Equal(bytes.TrimSpace(v), norm) {
			obj[f] = norm
			changed = true
		}
	}
	if !changed {
		return nil, false
	}

	fixed, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	return fixed, true
}

// normalizeBreathItems assigns a primary id to legacy items that only carry a
// messageId (or nothing). Generated ids depend only on the item position and
// receivedAt, so repeated reads agree until the next save persists them.
// Returns how many items were changed.
func normalizeBreathItems(items []heart.BreathItem) int {
	changed := 0
	for i := range items {
		if items[i].ID != "" {
			continue
		}
		if items[i].MessageID != "" {
			items[i].ID = items[i].MessageID
		} else {
			items[i].ID = fmt.Sprintf("%s-legacy-%d-%d", heart.PrefixBreath, items[i].ReceivedAt, i)
		}
		changed++
	}
	return changed
}
