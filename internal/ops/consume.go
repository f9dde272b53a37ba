package ops

import (
	"context"
	"log/slog"
	"strings"

	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

// ConsumeBreathInput contains parameters for the ConsumeBreath operation.
type ConsumeBreathInput struct {
	ID      string // required; id or messageId
	To      string // default: DefaultConsumeTo
	Reason  string // default: DefaultConsumeReason
	UserID  string // default: DefaultConsumeUserID
	Persona string // default: DefaultConsumePersona
	Tags    []string
}

// ConsumeBreathOutput contains the result of the ConsumeBreath operation.
// Warning is set instead of failing when the item is missing or was already consumed.
type ConsumeBreathOutput struct {
	ID      string              `json:"id,omitempty"`
	Warning string              `json:"warning,omitempty"`
	Events  []heart.HaCoinEvent `json:"events,omitempty"`
}

// Warnings returned by ConsumeBreath.
const (
	WarningNotFound        = "not found"
	WarningAlreadyConsumed = "already consumed"
)

// ConsumeBreath marks a breath as consumed and journals an action event
// (delta 0) followed by a reward event (delta +1).
func ConsumeBreath(ctx context.Context, st *db.Store, input ConsumeBreathInput) (*ConsumeBreathOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewMissingField("id")
	}
	to := firstNonEmpty(input.To, DefaultConsumeTo)
	reason := firstNonEmpty(input.Reason, DefaultConsumeReason)
	userID := firstNonEmpty(input.UserID, DefaultConsumeUserID)
	persona := firstNonEmpty(input.Persona, DefaultConsumePersona)
	tags := cleanStrings(input.Tags)

	unlock := st.Lock(db.KeyBreathLog, db.KeyJournal)
	defer unlock()

	log, err := st.LoadBreathLog(ctx)
	if err != nil {
		return nil, internal(err)
	}

	idx := indexOfBreath(log.Items, id)
	if idx < 0 {
		return &ConsumeBreathOutput{Warning: WarningNotFound}, nil
	}
	target := &log.Items[idx]
	if target.Consumed() {
		return &ConsumeBreathOutput{ID: target.ID, Warning: WarningAlreadyConsumed}, nil
	}

	now := nowFunc()
	target.ConsumedAt = heart.Millis(now)
	target.ConsumedTo = to
	target.ConsumedReason = reason
	target.ConsumedTags = tags

	if err := st.SaveBreathLog(ctx, log); err != nil {
		return nil, internal(err)
	}

	at := heart.ISO(now)
	meta := map[string]any{"to": to, "reason": reason, "tags": tags}
	rewardReason := ReasonBreathConsume
	if to == DefaultConsumeTo {
		rewardReason = ReasonBreathConsumeToCross
	}

	events := []heart.HaCoinEvent{
		{Type: heart.EventAction, Delta: 0, Reason: ReasonBreathConsume},
		{Type: heart.EventReward, Delta: 1, Reason: rewardReason},
	}
	for i := range events {
		events[i].ID = heart.NewID(heart.PrefixEvent, now)
		events[i].At = at
		events[i].UserID = userID
		events[i].Persona = persona
		events[i].MessageID = id
		events[i].Meta = meta
		if err := st.AppendJournal(ctx, &events[i]); err != nil {
			return nil, internal(err)
		}
	}

	slog.Info("breath consumed", "id", target.ID, "to", to, "reason", reason)

	return &ConsumeBreathOutput{ID: target.ID, Events: events}, nil
}
