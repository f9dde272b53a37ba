package ops

import (
	"context"
	"strings"

	"github.com/harulua/coreheart/internal/config"
	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

// RecentBreathsInput contains parameters for the RecentBreaths operation.
type RecentBreathsInput struct {
	Limit        int // 0 means DefaultLimit
	DefaultLimit int // 0 means DefaultBreathRecentLimit
}

// RecentBreathsOutput contains the newest items, newest first.
type RecentBreathsOutput struct {
	Items []heart.BreathItem `json:"items"`
}

// RecentBreaths returns the first limit items of the breath log.
func RecentBreaths(ctx context.Context, st *db.Store, cfg *config.Config, input RecentBreathsInput) (*RecentBreathsOutput, error) {
	def := input.DefaultLimit
	if def <= 0 {
		def = DefaultBreathRecentLimit
	}
	limit := clampLimit(input.Limit, def, cfg.BreathLogCap)

	log, err := st.LoadBreathLog(ctx)
	if err != nil {
		return nil, internal(err)
	}

	items := log.Items
	if len(items) > limit {
		items = items[:limit]
	}
	return &RecentBreathsOutput{Items: items}, nil
}

// GetBreathInput addresses one breath by id or its messageId alias.
type GetBreathInput struct {
	ID string
}

// GetBreathOutput contains the found item.
type GetBreathOutput struct {
	Item heart.BreathItem `json:"item"`
}

// GetBreath returns one breath item.
func GetBreath(ctx context.Context, st *db.Store, input GetBreathInput) (*GetBreathOutput, error) {
	id := heart.SanitizeID(input.ID)
	if id == "" {
		return nil, errors.NewMissingField("id")
	}

	log, err := st.LoadBreathLog(ctx)
	if err != nil {
		return nil, internal(err)
	}
	for _, item := range log.Items {
		if item.Matches(id) {
			return &GetBreathOutput{Item: item}, nil
		}
	}
	return nil, errors.NewNotFound("breath", id)
}

// DeleteBreathInput addresses one breath by id or its messageId alias.
type DeleteBreathInput struct {
	ID string
}

// DeleteBreathOutput reports how many items were removed (0 or 1).
type DeleteBreathOutput struct {
	Removed int `json:"removed"`
}

// DeleteBreath removes one breath item. A miss is not an error.
func DeleteBreath(ctx context.Context, st *db.Store, input DeleteBreathInput) (*DeleteBreathOutput, error) {
	id := heart.SanitizeID(input.ID)
	if id == "" {
		return nil, errors.NewMissingField("id")
	}

	unlock := st.Lock(db.KeyBreathLog)
	defer unlock()

	log, err := st.LoadBreathLog(ctx)
	if err != nil {
		return nil, internal(err)
	}

	idx := indexOfBreath(log.Items, id)
	if idx < 0 {
		return &DeleteBreathOutput{Removed: 0}, nil
	}
	log.Items = append(log.Items[:idx], log.Items[idx+1:]...)
	if err := st.SaveBreathLog(ctx, log); err != nil {
		return nil, internal(err)
	}
	return &DeleteBreathOutput{Removed: 1}, nil
}

// BreathLog returns the whole stored breath log.
func BreathLog(ctx context.Context, st *db.Store) (*heart.BreathLog, error) {
	log, err := st.LoadBreathLog(ctx)
	if err != nil {
		return nil, internal(err)
	}
	return log, nil
}

func indexOfBreath(items []heart.BreathItem, key string) int {
	key = strings.TrimSpace(key)
	for i := range items {
		if items[i].Matches(key) {
			return i
		}
	}
	return -1
}
