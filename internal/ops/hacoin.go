package ops

import (
	"context"
	"math"
	"strings"

	"github.com/harulua/coreheart/internal/config"
	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

// PostEventInput contains parameters for the PostEvent operation.
type PostEventInput struct {
	Delta     float64 // required; non-zero and finite
	Reason    string
	UserID    string
	MessageID string
	InhaleID  string
	Summary   string
}

// PostEventOutput contains the stored event.
type PostEventOutput struct {
	Event heart.HaCoinEvent `json:"event"`
}

// PostEvent appends a promote (delta > 0) or penalty (delta < 0) event to the
// primary ledger, keeping only the newest LedgerCap events.
func PostEvent(ctx context.Context, st *db.Store, cfg *config.Config, input PostEventInput) (*PostEventOutput, error) {
	if input.Delta == 0 || math.IsNaN(input.Delta) || math.IsInf(input.Delta, 0) {
		return nil, errors.NewInvalidRequest("delta must be a non-zero number")
	}

	now := nowFunc()
	ev := heart.HaCoinEvent{
		ID:        heart.NewID(heart.PrefixEvent, now),
		At:        heart.ISO(now),
		Type:      heart.EventTypeForDelta(input.Delta),
		Delta:     input.Delta,
		Reason:    strings.TrimSpace(input.Reason),
		UserID:    strings.TrimSpace(input.UserID),
		MessageID: strings.TrimSpace(input.MessageID),
		InhaleID:  strings.TrimSpace(input.InhaleID),
		Summary:   strings.TrimSpace(input.Summary),
	}

	unlock := st.Lock(db.KeyLedger)
	defer unlock()

	ledger, err := st.LoadLedger(ctx)
	if err != nil {
		return nil, internal(err)
	}
	ledger.Events = append(ledger.Events, ev)
	if over := len(ledger.Events) - cfg.LedgerCap; over > 0 {
		ledger.Events = ledger.Events[over:]
	}

	if err := st.SaveLedger(ctx, ledger); err != nil {
		return nil, internal(err)
	}
	return &PostEventOutput{Event: ev}, nil
}

// GetLedgerInput contains parameters for the GetLedger operation.
type GetLedgerInput struct {
	Limit int // 0 means DefaultLedgerLimit; clamped to [1, LedgerReadMax]
}

// GetLedger returns the last limit events in their original order.
func GetLedger(ctx context.Context, st *db.Store, cfg *config.Config, input GetLedgerInput) (*heart.Ledger, error) {
	limit := clampLimit(input.Limit, DefaultLedgerLimit, cfg.LedgerReadMax)

	ledger, err := st.LoadLedger(ctx)
	if err != nil {
		return nil, internal(err)
	}
	if len(ledger.Events) > limit {
		ledger.Events = ledger.Events[len(ledger.Events)-limit:]
	}
	return ledger, nil
}
