package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/harulua/coreheart/internal/config"
	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

// SubmitBreathInput contains parameters for the SubmitBreath operation.
type SubmitBreathInput struct {
	ID        string // optional; falls back to MessageID, then a generated id
	MessageID string
	Text      string // required
	RoomID    string
	UserID    string
	Kind      string
	InhaleID  string
	Summary   string
	CreatedAt int64 // client clock, optional

	Score                *float64
	EmotionKey           string
	EmotionTendency      json.RawMessage
	WillKey              string
	CentralTopics        []string
	CentralDefinitionIDs []string
	PersonaHints         []string
	SelectedPersonaID    string
	Inhale               json.RawMessage
}

// SubmitBreathOutput contains the result of the SubmitBreath operation.
// A filtered text yields Dropped and nothing else.
type SubmitBreathOutput struct {
	ID       string            `json:"id,omitempty"`
	Dropped  bool              `json:"dropped,omitempty"`
	Replaced bool              `json:"replaced,omitempty"`
	Item     *heart.BreathItem `json:"item,omitempty"`
}

func filterPolicy(cfg *config.Config) heart.FilterPolicy {
	return heart.FilterPolicy{
		MaxChars:   cfg.Filter.MaxChars,
		RepeatRun:  cfg.Filter.RepeatRun,
		ExtraTerms: cfg.Filter.ExtraTerms,
	}
}

// SubmitBreath stores an inbound fragment at the head of the breath log.
// Resubmitting an existing id replaces the earlier item.
func SubmitBreath(ctx context.Context, st *db.Store, cfg *config.Config, input SubmitBreathInput) (*SubmitBreathOutput, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, errors.NewMissingField("text")
	}

	if !cfg.Filter.Disabled {
		if drop, reason := heart.ShouldDrop(text, filterPolicy(cfg)); drop {
			slog.Info("breath dropped", "reason", reason, "preview", heart.Preview(text, previewRunes))
			return &SubmitBreathOutput{Dropped: true}, nil
		}
	}

	now := nowFunc()
	id := firstNonEmpty(input.ID, input.MessageID)
	if id == "" {
		id = heart.NewID(heart.PrefixBreath, now)
	}

	item := heart.BreathItem{
		ID:                   id,
		Text:                 text,
		RoomID:               strings.TrimSpace(input.RoomID),
		UserID:               strings.TrimSpace(input.UserID),
		MessageID:            strings.TrimSpace(input.MessageID),
		Kind:                 strings.TrimSpace(input.Kind),
		InhaleID:             strings.TrimSpace(input.InhaleID),
		Summary:              strings.TrimSpace(input.Summary),
		CreatedAt:            input.CreatedAt,
		ReceivedAt:           heart.Millis(now),
		Score:                input.Score,
		EmotionKey:           input.EmotionKey,
		EmotionTendency:      input.EmotionTendency,
		WillKey:              input.WillKey,
		CentralTopics:        input.CentralTopics,
		CentralDefinitionIDs: input.CentralDefinitionIDs,
		PersonaHints:         input.PersonaHints,
		SelectedPersonaID:    input.SelectedPersonaID,
		Inhale:               input.Inhale,
	}

	unlock := st.Lock(db.KeyBreathLog)
	defer unlock()

	log, err := st.LoadBreathLog(ctx)
	if err != nil {
		return nil, internal(err)
	}

	replaced := false
	items := make([]heart.BreathItem, 0, len(log.Items)+1)
	items = append(items, item)
	for _, existing := range log.Items {
		if existing.ID == id {
			replaced = true
			continue
		}
		items = append(items, existing)
	}
	if len(items) > cfg.BreathLogCap {
		items = items[:cfg.BreathLogCap]
	}
	log.Items = items

	if err := st.SaveBreathLog(ctx, log); err != nil {
		return nil, internal(err)
	}

	slog.Info("breath stored", "id", id, "messageId", item.MessageID, "roomId", item.RoomID, "replaced", replaced)

	return &SubmitBreathOutput{
		ID:       id,
		Replaced: replaced,
		Item:     &item,
	}, nil
}
