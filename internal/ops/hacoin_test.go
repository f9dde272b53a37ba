package ops

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

func TestPostEvent_RejectsZeroAndNonFinite(t *testing.T) {
	st, cfg := testStore(t)
	ctx := context.Background()

	for _, delta := range []float64{0, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := PostEvent(ctx, st, cfg, PostEventInput{Delta: delta})
		assertCode(t, err, errors.ErrInvalidRequest)
	}

	ledger, _ := GetLedger(ctx, st, cfg, GetLedgerInput{})
	if len(ledger.Events) != 0 {
		t.Errorf("rejected events were stored: %d", len(ledger.Events))
	}
}

func TestPostEvent_ZeroThenFive(t *testing.T) {
	st, cfg := testStore(t)
	ctx := context.Background()

	_, err := PostEvent(ctx, st, cfg, PostEventInput{Delta: 0})
	assertCode(t, err, errors.ErrInvalidRequest)

	out, err := PostEvent(ctx, st, cfg, PostEventInput{Delta: 5, Reason: "good", UserID: "u1", InhaleID: "inhale-1"})
	if err != nil {
		t.Fatalf("PostEvent failed: %v", err)
	}
	if out.Event.Type != heart.EventPromote || out.Event.Delta != 5 {
		t.Errorf("event = %+v", out.Event)
	}

	ledger, _ := GetLedger(ctx, st, cfg, GetLedgerInput{})
	if ledger.Version != heart.LedgerVersion {
		t.Errorf("Version = %q", ledger.Version)
	}
	if len(ledger.Events) != 1 || ledger.Events[0].Type != heart.EventPromote {
		t.Errorf("events = %+v", ledger.Events)
	}
}

func TestPostEvent_NegativeIsPenalty(t *testing.T) {
	st, cfg := testStore(t)

	out, err := PostEvent(context.Background(), st, cfg, PostEventInput{Delta: -0.5})
	if err != nil {
		t.Fatalf("PostEvent failed: %v", err)
	}
	if out.Event.Type != heart.EventPenalty {
		t.Errorf("Type = %q, want penalty", out.Event.Type)
	}
}

func TestPostEvent_CapKeepsNewest(t *testing.T) {
	st, cfg := testStore(t)
	cfg.LedgerCap = 4
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		if _, err := PostEvent(ctx, st, cfg, PostEventInput{Delta: float64(i), Reason: fmt.Sprintf("r%d", i)}); err != nil {
			t.Fatalf("PostEvent %d failed: %v", i, err)
		}
	}

	ledger, _ := GetLedger(ctx, st, cfg, GetLedgerInput{})
	if len(ledger.Events) != 4 {
		t.Fatalf("len(events) = %d, want 4", len(ledger.Events))
	}
	if ledger.Events[0].Reason != "r3" || ledger.Events[3].Reason != "r6" {
		t.Errorf("events = %s..%s, want r3..r6", ledger.Events[0].Reason, ledger.Events[3].Reason)
	}
}

func TestGetLedger_ReturnsLastInOrder(t *testing.T) {
	st, cfg := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		PostEvent(ctx, st, cfg, PostEventInput{Delta: float64(i), Reason: fmt.Sprintf("r%d", i)})
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{2, []string{"r4", "r5"}},
		{0, []string{"r1", "r2", "r3", "r4", "r5"}},
		{-7, []string{"r5"}},
		{100000, []string{"r1", "r2", "r3", "r4", "r5"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit=%d", tt.limit), func(t *testing.T) {
			ledger, err := GetLedger(ctx, st, cfg, GetLedgerInput{Limit: tt.limit})
			if err != nil {
				t.Fatalf("GetLedger failed: %v", err)
			}
			if len(ledger.Events) != len(tt.want) {
				t.Fatalf("len(events) = %d, want %d", len(ledger.Events), len(tt.want))
			}
			for i, ev := range ledger.Events {
				if ev.Reason != tt.want[i] {
					t.Errorf("events[%d] = %s, want %s", i, ev.Reason, tt.want[i])
				}
			}
		})
	}
}
