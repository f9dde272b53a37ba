// Package heart holds the lifecycle records of the reflection pipeline
// (breath, purify item, meeting, central definition, ha-coin event) and the
// pure functions that operate on them.
package heart

import "encoding/json"

// Constant values stamped on records.
const (
	RouteCentral   = "central"
	SourceMeeting  = "meeting"
	FromBreath     = "breath"
	FromPurifyBin  = "purify-bin"
	FromAppDirect  = "app-direct"
	StatusOpen     = "open"
	StatusDone     = "done"
	LedgerVersion  = "hacoin-ledger-v1"
	PurifyVersion  = 1
	MaxMeetingID   = 80
	CandidateCount = 3
)

// Ha-coin event types. The taxonomy is open; these are the ones this module writes.
const (
	EventPromote = "promote"
	EventPenalty = "penalty"
	EventAction  = "action"
	EventReward  = "reward"
)

// BreathItem is one inbound fragment in the breath log.
// ID is the primary key; MessageID is accepted as a deprecated alias on lookup.
type BreathItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	RoomID    string `json:"roomId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Kind      string `json:"kind,omitempty"`
	InhaleID  string `json:"inhaleId,omitempty"`
	Summary   string `json:"summary,omitempty"`

	// CreatedAt is the client clock (optional); ReceivedAt is the server clock.
	CreatedAt  int64 `json:"createdAt,omitempty"`
	ReceivedAt int64 `json:"receivedAt"`

	RestoredFrom string `json:"restoredFrom,omitempty"`

	// Client annotations carried through untouched.
	Score                *float64        `json:"score,omitempty"`
	EmotionKey           string          `json:"emotionKey,omitempty"`
	EmotionTendency      json.RawMessage `json:"emotionTendency,omitempty"` // string or number
	WillKey              string          `json:"willKey,omitempty"`
	CentralTopics        []string        `json:"centralTopics,omitempty"`
	CentralDefinitionIDs []string        `json:"centralDefinitionIds,omitempty"`
	PersonaHints         []string        `json:"personaHints,omitempty"`
	SelectedPersonaID    string          `json:"selectedPersonaId,omitempty"`
	Inhale               json.RawMessage `json:"inhale,omitempty"`

	// Set once by consume, never cleared.
	ConsumedAt     int64    `json:"consumedAt,omitempty"`
	ConsumedTo     string   `json:"consumedTo,omitempty"`
	ConsumedReason string   `json:"consumedReason,omitempty"`
	ConsumedTags   []string `json:"consumedTags,omitempty"`
}

// Matches reports whether key addresses this item by primary id or by the messageId alias.
func (b *BreathItem) Matches(key string) bool {
	if key == "" {
		return false
	}
	return b.ID == key || (b.MessageID != "" && b.MessageID == key)
}

// Consumed reports whether the item has been consumed.
func (b *BreathItem) Consumed() bool {
	return b.ConsumedAt != 0
}

// BreathLog is the persisted breath collection, newest first.
type BreathLog struct {
	OK    bool         `json:"ok"`
	Items []BreathItem `json:"items"`
}

// PurifySource is a back-reference to where a purify item came from.
type PurifySource struct {
	RoomID     string `json:"roomId,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
	ReceivedAt int64  `json:"receivedAt,omitempty"`
}

// PurifyItem is a quarantined fragment.
type PurifyItem struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Reason  string       `json:"reason,omitempty"`
	MovedAt int64        `json:"movedAt"`
	Source  PurifySource `json:"source"`
	Tags    []string     `json:"tags"`
}

// PurifyBin is the persisted quarantine collection, newest first.
type PurifyBin struct {
	Version   int          `json:"version"`
	UpdatedAt int64        `json:"updatedAt"`
	Items     []PurifyItem `json:"items"`
}

// MeetingSource is a snapshot of the text that triggered a meeting.
type MeetingSource struct {
	From       string `json:"from"`
	MessageID  string `json:"messageId,omitempty"`
	RoomID     string `json:"roomId,omitempty"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"createdAt,omitempty"`
	ReceivedAt int64  `json:"receivedAt,omitempty"`
}

// Candidate is one auto-generated phrasing.
type Candidate struct {
	Text string `json:"text"`
}

// Promotion records whether an after-language version reached central memory.
type Promotion struct {
	Promoted            bool    `json:"promoted"`
	CentralDefinitionID *string `json:"centralDefinitionId"`
}

// AfterLanguageVersion is one revision of a meeting's after-language lines.
type AfterLanguageVersion struct {
	V            int             `json:"v"`
	CreatedAt    string          `json:"createdAt"`
	Lines        []string        `json:"lines"`
	SpecSnapshot json.RawMessage `json:"specSnapshot,omitempty"`
	Promotion    *Promotion      `json:"promotion,omitempty"`
}

// AfterLanguage is the versioned history of a meeting's lines.
type AfterLanguage struct {
	CurrentVersion int                    `json:"currentVersion"`
	Versions       []AfterLanguageVersion `json:"versions"`
}

// Current returns the version matching CurrentVersion, or nil.
func (a *AfterLanguage) Current() *AfterLanguageVersion {
	for i := range a.Versions {
		if a.Versions[i].V == a.CurrentVersion {
			return &a.Versions[i]
		}
	}
	return nil
}

// MeetingData is one deliberation record, stored as its own document.
type MeetingData struct {
	MeetingID      string        `json:"meetingId"`
	CreatedAt      int64         `json:"createdAt"`
	Status         string        `json:"status"`
	Source         MeetingSource `json:"source"`
	Topic          string        `json:"topic,omitempty"`
	Emotions       []string      `json:"emotions,omitempty"`
	AutoCandidates []Candidate   `json:"autoCandidates"`
	AfterLanguage  AfterLanguage `json:"afterLanguage"`
}

// CentralDefinition is one promoted statement. Never mutated after creation.
type CentralDefinition struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Summary    string         `json:"summary"`
	Topic      string         `json:"topic,omitempty"`
	Route      string         `json:"route"`
	Source     string         `json:"source"`
	PromotedAt string         `json:"promotedAt"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// CentralMemory is the persisted definition collection, newest first.
type CentralMemory struct {
	OK    bool                `json:"ok"`
	Items []CentralDefinition `json:"items"`
}

// HaCoinEvent is one ledger entry.
type HaCoinEvent struct {
	ID        string         `json:"id"`
	At        string         `json:"at"`
	Type      string         `json:"type"`
	Delta     float64        `json:"delta"`
	Reason    string         `json:"reason"`
	UserID    string         `json:"userId,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	InhaleID  string         `json:"inhaleId,omitempty"`
	Persona   string         `json:"persona,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Ledger is the bounded primary ha-coin ledger, oldest first.
type Ledger struct {
	Version string        `json:"version"`
	Events  []HaCoinEvent `json:"events"`
}

// EventTypeForDelta derives the primary-ledger type from the sign of delta.
func EventTypeForDelta(delta float64) string {
	if delta > 0 {
		return EventPromote
	}
	return EventPenalty
}
