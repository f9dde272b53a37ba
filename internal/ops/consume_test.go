package ops

import (
	"context"
	"testing"

	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

func TestConsumeBreath_MarksAndJournals(t *testing.T) {
	st, cfg := testStore(t)
	fixClock(t, 1700000000000)
	ctx := context.Background()
	SubmitBreath(ctx, st, cfg, SubmitBreathInput{ID: "inhale-1", MessageID: "m-1", Text: "숨"})

	out, err := ConsumeBreath(ctx, st, ConsumeBreathInput{ID: "m-1", Tags: []string{"cross", " "}})
	if err != nil {
		t.Fatalf("ConsumeBreath failed: %v", err)
	}
	if out.Warning != "" {
		t.Fatalf("Warning = %q, want none", out.Warning)
	}

	got, _ := GetBreath(ctx, st, GetBreathInput{ID: "inhale-1"})
	item := got.Item
	if item.ConsumedAt != 1700000000000 {
		t.Errorf("ConsumedAt = %d", item.ConsumedAt)
	}
	if item.ConsumedTo != DefaultConsumeTo || item.ConsumedReason != DefaultConsumeReason {
		t.Errorf("consumed to/reason = %q/%q", item.ConsumedTo, item.ConsumedReason)
	}
	if len(item.ConsumedTags) != 1 || item.ConsumedTags[0] != "cross" {
		t.Errorf("ConsumedTags = %v", item.ConsumedTags)
	}

	events, err := st.ReadJournal(ctx)
	if err != nil {
		t.Fatalf("ReadJournal failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}

	action, reward := events[0], events[1]
	if action.Type != heart.EventAction || action.Delta != 0 || action.Reason != ReasonBreathConsume {
		t.Errorf("action event = %+v", action)
	}
	if reward.Type != heart.EventReward || reward.Delta != 1 || reward.Reason != ReasonBreathConsumeToCross {
		t.Errorf("reward event = %+v", reward)
	}
	for _, ev := range events {
		if ev.UserID != DefaultConsumeUserID || ev.Persona != DefaultConsumePersona || ev.MessageID != "m-1" {
			t.Errorf("event correlation fields = %q/%q/%q", ev.UserID, ev.Persona, ev.MessageID)
		}
		if ev.Meta["to"] != DefaultConsumeTo || ev.Meta["reason"] != DefaultConsumeReason {
			t.Errorf("event meta = %v", ev.Meta)
		}
		if ev.At == "" || ev.ID == "" {
			t.Error("event must carry id and at")
		}
	}
	if action.ID == reward.ID {
		t.Error("events must have distinct ids")
	}

	// the primary ledger is untouched
	ledger, _ := GetLedger(ctx, st, cfg, GetLedgerInput{})
	if len(ledger.Events) != 0 {
		t.Errorf("primary ledger has %d events, want 0", len(ledger.Events))
	}
}

func TestConsumeBreath_OtherDestination(t *testing.T) {
	st, cfg := testStore(t)
	ctx := context.Background()
	SubmitBreath(ctx, st, cfg, SubmitBreathInput{ID: "inhale-1", Text: "숨"})

	if _, err := ConsumeBreath(ctx, st, ConsumeBreathInput{ID: "inhale-1", To: "archive", UserID: "u-9", Persona: "sori"}); err != nil {
		t.Fatalf("ConsumeBreath failed: %v", err)
	}

	events, _ := st.ReadJournal(ctx)
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[1].Reason != ReasonBreathConsume {
		t.Errorf("reward reason = %q, want %q", events[1].Reason, ReasonBreathConsume)
	}
	if events[0].UserID != "u-9" || events[0].Persona != "sori" {
		t.Errorf("explicit user/persona not used: %+v", events[0])
	}
}

func TestConsumeBreath_NotFoundIsWarning(t *testing.T) {
	st, _ := testStore(t)
	ctx := context.Background()

	out, err := ConsumeBreath(ctx, st, ConsumeBreathInput{ID: "nope"})
	if err != nil {
		t.Fatalf("ConsumeBreath failed: %v", err)
	}
	if out.Warning != WarningNotFound {
		t.Errorf("Warning = %q, want %q", out.Warning, WarningNotFound)
	}
	events, _ := st.ReadJournal(ctx)
	if len(events) != 0 {
		t.Errorf("no events expected on a miss, got %d", len(events))
	}
}

func TestConsumeBreath_SecondConsumeKeepsFirst(t *testing.T) {
	st, cfg := testStore(t)
	ctx := context.Background()
	SubmitBreath(ctx, st, cfg, SubmitBreathInput{ID: "inhale-1", Text: "숨"})

	ConsumeBreath(ctx, st, ConsumeBreathInput{ID: "inhale-1", To: "first"})
	out, err := ConsumeBreath(ctx, st, ConsumeBreathInput{ID: "inhale-1", To: "second"})
	if err != nil {
		t.Fatalf("ConsumeBreath failed: %v", err)
	}
	if out.Warning != WarningAlreadyConsumed {
		t.Errorf("Warning = %q", out.Warning)
	}

	got, _ := GetBreath(ctx, st, GetBreathInput{ID: "inhale-1"})
	if got.Item.ConsumedTo != "first" {
		t.Errorf("ConsumedTo = %q, want first", got.Item.ConsumedTo)
	}
	events, _ := st.ReadJournal(ctx)
	if len(events) != 2 {
		t.Errorf("len(events) = %d, want 2", len(events))
	}
}

func TestConsumeBreath_EmptyID(t *testing.T) {
	st, _ := testStore(t)
	_, err := ConsumeBreath(context.Background(), st, ConsumeBreathInput{ID: " "})
	assertCode(t, err, errors.ErrInvalidRequest)
}
