package ops

import (
	"context"
	"log/slog"
	"strings"

	"github.com/harulua/coreheart/internal/config"
	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

// PromoteInput contains parameters for the Promote operation.
type PromoteInput struct {
	MeetingID string // required
	Text      string // required
	Summary   string // default: Text
	Topic     string
}

// PromoteOutput contains the stored definition.
type PromoteOutput struct {
	Definition     heart.CentralDefinition `json:"definition"`
	MeetingUpdated bool                    `json:"meetingUpdated"`
}

// Promote commits one statement from a meeting into central memory. When the
// meeting exists, its current after-language version is marked promoted and
// the meeting is closed.
func Promote(ctx context.Context, st *db.Store, cfg *config.Config, input PromoteInput) (*PromoteOutput, error) {
	meetingID := heart.SanitizeID(input.MeetingID)
	if meetingID == "" {
		return nil, errors.NewMissingField("meetingId")
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, errors.NewMissingField("text")
	}

	now := nowFunc()
	def := heart.CentralDefinition{
		ID:         heart.NewID(heart.PrefixDefinition, now),
		Text:       text,
		Summary:    firstNonEmpty(input.Summary, text),
		Topic:      strings.TrimSpace(input.Topic),
		Route:      heart.RouteCentral,
		Source:     heart.SourceMeeting,
		PromotedAt: heart.ISO(now),
		Meta:       map[string]any{"meetingId": meetingID},
	}

	unlock := st.Lock(db.KeyCentral, db.MeetingKey(meetingID))
	defer unlock()

	if err := prependDefinition(ctx, st, cfg, def); err != nil {
		return nil, err
	}

	slog.Info("central definition stored", "id", def.ID, "meetingId", meetingID)

	return &PromoteOutput{
		Definition:     def,
		MeetingUpdated: markPromoted(ctx, st, meetingID, def.ID),
	}, nil
}

// markPromoted closes the meeting and flags its current version. Failures are
// logged; the central write has already happened.
func markPromoted(ctx context.Context, st *db.Store, meetingID, defID string) bool {
	m, err := st.LoadMeeting(ctx, meetingID)
	if err != nil {
		if !db.IsNotExist(err) {
			slog.Warn("promote: meeting not updated", "meetingId", meetingID, "error", err)
		}
		return false
	}

	if cur := m.AfterLanguage.Current(); cur != nil {
		id := defID
		cur.Promotion = &heart.Promotion{Promoted: true, CentralDefinitionID: &id}
	}
	m.Status = heart.StatusDone

	if _, err := st.SaveMeeting(ctx, m); err != nil {
		slog.Warn("promote: meeting not updated", "meetingId", meetingID, "error", err)
		return false
	}
	return true
}

// WriteDefinitionInput contains parameters for the WriteDefinition operation.
// Body wins over Text and Title over Summary.
type WriteDefinitionInput struct {
	ID         string
	Text       string
	Body       string
	Summary    string
	Title      string
	Topic      string
	PromotedAt string
	Meta       map[string]any // default: {"from": "app-direct"}
}

// WriteDefinitionOutput contains the stored definition.
type WriteDefinitionOutput struct {
	Definition heart.CentralDefinition `json:"definition"`
}

// WriteDefinition stores a definition directly, without a meeting.
func WriteDefinition(ctx context.Context, st *db.Store, cfg *config.Config, input WriteDefinitionInput) (*WriteDefinitionOutput, error) {
	text := firstNonEmpty(input.Body, input.Text)
	if text == "" {
		return nil, errors.NewMissingField("text")
	}

	now := nowFunc()
	def := heart.CentralDefinition{
		ID:         firstNonEmpty(input.ID, heart.NewID(heart.PrefixDefinition, now)),
		Text:       text,
		Summary:    firstNonEmpty(input.Title, input.Summary, text),
		Topic:      strings.TrimSpace(input.Topic),
		Route:      heart.RouteCentral,
		Source:     heart.SourceMeeting,
		PromotedAt: firstNonEmpty(input.PromotedAt, heart.ISO(now)),
		Meta:       input.Meta,
	}
	if def.Meta == nil {
		def.Meta = map[string]any{"from": heart.FromAppDirect}
	}

	unlock := st.Lock(db.KeyCentral)
	defer unlock()

	if err := prependDefinition(ctx, st, cfg, def); err != nil {
		return nil, err
	}
	return &WriteDefinitionOutput{Definition: def}, nil
}

// ListDefinitions returns central memory, newest first.
func ListDefinitions(ctx context.Context, st *db.Store) (*heart.CentralMemory, error) {
	mem, err := st.LoadCentral(ctx)
	if err != nil {
		return nil, internal(err)
	}
	return mem, nil
}

// prependDefinition adds def at the head of central memory and enforces the cap.
// The caller holds the central lock.
func prependDefinition(ctx context.Context, st *db.Store, cfg *config.Config, def heart.CentralDefinition) error {
	mem, err := st.LoadCentral(ctx)
	if err != nil {
		return internal(err)
	}
	mem.Items = append([]heart.CentralDefinition{def}, mem.Items...)
	if len(mem.Items) > cfg.CentralCap {
		mem.Items = mem.Items[:cfg.CentralCap]
	}
	if err := st.SaveCentral(ctx, mem); err != nil {
		return internal(err)
	}
	return nil
}
