package db

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"

	"github.com/harulua/coreheart/internal/heart"
)

// Document keys, relative to the base directory.
const (
	KeyBreathLog       = "breath-log.json"
	KeyPurifyBin       = "public/data/purify-bin.json"
	KeyMeetingTemplate = "public/meeting.json"
	KeyCentral         = "public/central-memory.json"
	KeyLedger          = "public/ha-coin.json"
	KeyJournal         = "public/data/hacoin-events.jsonl"
)

// ErrCorruptDocument is returned when a single-record document cannot be decoded.
var ErrCorruptDocument = stderrors.New("corrupt document")

// MeetingKey returns the key of one meeting document. id must already be sanitized.
func MeetingKey(id string) string {
	return "meetings/" + id + ".json"
}

// IsNotExist reports whether err means the document was never written.
func IsNotExist(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist)
}

// loadRaw reads key as a JSON object and runs its migrations. A missing key
// yields an empty object. A document that is not a JSON object is copied aside
// to <key>.corrupt-<ms> and treated as empty.
func (s *Store) loadRaw(ctx context.Context, key string, migrations []migration) (map[string]json.RawMessage, error) {
	data, err := s.backend.Read(ctx, key)
	if err != nil {
		if IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		if aside, werr := s.copyAside(ctx, key, data); werr != nil {
			s.logger.Error("failed to quarantine corrupt document", "key", key, "error", werr)
		} else {
			s.logger.Warn("corrupt document recovered", "key", key, "copy", aside, "cause", err)
		}
		return map[string]json.RawMessage{}, nil
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}

	applyMigrations(s.logger, key, doc, migrations)
	return doc, nil
}

// copyAside writes data to <key>.corrupt-<ms> and returns that key.
func (s *Store) copyAside(ctx context.Context, key string, data []byte) (string, error) {
	aside := fmt.Sprintf("%s.corrupt-%d", key, s.now().UnixMilli())
	if err := s.backend.Write(ctx, aside, data); err != nil {
		return "", err
	}
	return aside, nil
}

// setAside copies items that failed to decode to <key>.corrupt-<ms> as a JSON
// array before a later save can drop them. The same set is written once per Store.
func (s *Store) setAside(ctx context.Context, key string, skipped []json.RawMessage) {
	if len(skipped) == 0 {
		return
	}
	data, err := json.MarshalIndent(skipped, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode skipped items", "key", key, "error", err)
		return
	}

	sum := sha256.Sum256(data)
	mark := key + "#" + hex.EncodeToString(sum[:])
	s.mu.Lock()
	seen := s.asideSeen[mark]
	s.asideSeen[mark] = true
	s.mu.Unlock()
	if seen {
		return
	}

	aside, err := s.copyAside(ctx, key, data)
	if err != nil {
		s.mu.Lock()
		delete(s.asideSeen, mark)
		s.mu.Unlock()
		s.logger.Error("failed to set aside undecodable items", "key", key, "count", len(skipped), "error", err)
		return
	}
	s.logger.Warn("undecodable items set aside", "key", key, "count", len(skipped), "copy", aside)
}

// decodeField decodes doc[field] into dst, leaving dst untouched when the
// field is missing or has the wrong type.
func decodeField(doc map[string]json.RawMessage, field string, dst any) {
	raw, ok := doc[field]
	if !ok {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// save writes v as indented JSON without HTML escaping.
func (s *Store) save(ctx context.Context, key string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.backend.Write(ctx, key, buf.Bytes())
}

// LoadBreathLog returns the breath log, newest first.
func (s *Store) LoadBreathLog(ctx context.Context) (*heart.BreathLog, error) {
	doc, err := s.loadRaw(ctx, KeyBreathLog, breathMigrations)
	if err != nil {
		return nil, err
	}
	items, skipped := decodeItems[heart.BreathItem](s.logger, KeyBreathLog, doc["items"], breathMillisFields...)
	s.setAside(ctx, KeyBreathLog, skipped)
	if n := normalizeBreathItems(items); n > 0 {
		s.logger.Debug("assigned ids to legacy breath items", "count", n)
	}
	return &heart.BreathLog{OK: true, Items: items}, nil
}

// SaveBreathLog replaces the breath log.
func (s *Store) SaveBreathLog(ctx context.Context, log *heart.BreathLog) error {
	log.OK = true
	if log.Items == nil {
		log.Items = []heart.BreathItem{}
	}
	return s.save(ctx, KeyBreathLog, log)
}

// LoadPurifyBin returns the purify bin, newest first.
func (s *Store) LoadPurifyBin(ctx context.Context) (*heart.PurifyBin, error) {
	doc, err := s.loadRaw(ctx, KeyPurifyBin, purifyMigrations)
	if err != nil {
		return nil, err
	}
	bin := &heart.PurifyBin{Version: heart.PurifyVersion}
	decodeField(doc, "version", &bin.Version)
	decodeField(doc, "updatedAt", &bin.UpdatedAt)
	var skipped []json.RawMessage
	bin.Items, skipped = decodeItems[heart.PurifyItem](s.logger, KeyPurifyBin, doc["items"], purifyMillisFields...)
	s.setAside(ctx, KeyPurifyBin, skipped)
	for i := range bin.Items {
		if bin.Items[i].Tags == nil {
			bin.Items[i].Tags = []string{}
		}
	}
	return bin, nil
}

// SavePurifyBin stamps updatedAt and replaces the purify bin.
func (s *Store) SavePurifyBin(ctx context.Context, bin *heart.PurifyBin) error {
	if bin.Version == 0 {
		bin.Version = heart.PurifyVersion
	}
	bin.UpdatedAt = heart.Millis(s.now())
	if bin.Items == nil {
		bin.Items = []heart.PurifyItem{}
	}
	return s.save(ctx, KeyPurifyBin, bin)
}

// LoadMeeting returns one meeting. A missing document wraps fs.ErrNotExist;
// an undecodable one wraps ErrCorruptDocument.
func (s *Store) LoadMeeting(ctx context.Context, id string) (*heart.MeetingData, error) {
	key := MeetingKey(id)
	data, err := s.backend.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return decodeMeeting(key, data)
}

// LoadMeetingTemplate returns the optional seed template, or nil when there
// is none or it cannot be decoded.
func (s *Store) LoadMeetingTemplate(ctx context.Context) (*heart.MeetingData, error) {
	data, err := s.backend.Read(ctx, KeyMeetingTemplate)
	if err != nil {
		if IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	m, err := decodeMeeting(KeyMeetingTemplate, data)
	if err != nil {
		s.logger.Warn("ignoring unreadable meeting template", "key", KeyMeetingTemplate, "error", err)
		return nil, nil
	}
	return m, nil
}

func decodeMeeting(key string, data []byte) (*heart.MeetingData, error) {
	var m heart.MeetingData
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", key, ErrCorruptDocument, err)
	}
	if m.AutoCandidates == nil {
		m.AutoCandidates = []heart.Candidate{}
	}
	if m.AfterLanguage.Versions == nil {
		m.AfterLanguage.Versions = []heart.AfterLanguageVersion{}
	}
	return &m, nil
}

// SaveMeeting writes a meeting to its own document and returns the key.
func (s *Store) SaveMeeting(ctx context.Context, m *heart.MeetingData) (string, error) {
	key := MeetingKey(m.MeetingID)
	if err := s.save(ctx, key, m); err != nil {
		return "", err
	}
	return key, nil
}

// LoadCentral returns central memory, newest first. Reads never fail on shape.
func (s *Store) LoadCentral(ctx context.Context) (*heart.CentralMemory, error) {
	doc, err := s.loadRaw(ctx, KeyCentral, centralMigrations)
	if err != nil {
		return nil, err
	}
	items, skipped := decodeItems[heart.CentralDefinition](s.logger, KeyCentral, doc["items"])
	s.setAside(ctx, KeyCentral, skipped)
	return &heart.CentralMemory{OK: true, Items: items}, nil
}

// SaveCentral replaces central memory.
func (s *Store) SaveCentral(ctx context.Context, mem *heart.CentralMemory) error {
	mem.OK = true
	if mem.Items == nil {
		mem.Items = []heart.CentralDefinition{}
	}
	return s.save(ctx, KeyCentral, mem)
}

// LoadLedger returns the primary ha-coin ledger, oldest first.
func (s *Store) LoadLedger(ctx context.Context) (*heart.Ledger, error) {
	doc, err := s.loadRaw(ctx, KeyLedger, ledgerMigrations)
	if err != nil {
		return nil, err
	}
	ledger := &heart.Ledger{Version: heart.LedgerVersion}
	decodeField(doc, "version", &ledger.Version)
	if ledger.Version == "" {
		ledger.Version = heart.LedgerVersion
	}
	var skipped []json.RawMessage
	ledger.Events, skipped = decodeItems[heart.HaCoinEvent](s.logger, KeyLedger, doc["events"])
	s.setAside(ctx, KeyLedger, skipped)
	return ledger, nil
}

// SaveLedger replaces the primary ledger.
func (s *Store) SaveLedger(ctx context.Context, ledger *heart.Ledger) error {
	if ledger.Version == "" {
		ledger.Version = heart.LedgerVersion
	}
	if ledger.Events == nil {
		ledger.Events = []heart.HaCoinEvent{}
	}
	return s.save(ctx, KeyLedger, ledger)
}

// AppendJournal appends one event to the secondary ledger as a JSON line.
func (s *Store) AppendJournal(ctx context.Context, ev *heart.HaCoinEvent) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return fmt.Errorf("encode journal event: %w", err)
	}
	return s.backend.Append(ctx, KeyJournal, bytes.TrimRight(buf.Bytes(), "\n"))
}

// ReadJournal returns every event in the secondary ledger, oldest first.
// Lines that fail to decode are skipped. No operation reads the journal back;
// this is the audit accessor used by tests.
func (s *Store) ReadJournal(ctx context.Context) ([]heart.HaCoinEvent, error) {
	data, err := s.backend.Read(ctx, KeyJournal)
	if err != nil {
		if IsNotExist(err) {
			return []heart.HaCoinEvent{}, nil
		}
		return nil, err
	}
	events := []heart.HaCoinEvent{}
	for i, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var ev heart.HaCoinEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			s.logger.Warn("skipping undecodable journal line", "line", i+1, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
