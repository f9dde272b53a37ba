package ops

import (
	"context"
	"encoding/json"

	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

// ReviseMeetingInput contains parameters for the ReviseMeeting operation.
type ReviseMeetingInput struct {
	MeetingID    string
	Lines        []string // required; blanks dropped
	SpecSnapshot json.RawMessage
}

// ReviseMeetingOutput contains the new version number and the updated meeting.
type ReviseMeetingOutput struct {
	Version int                `json:"version"`
	Meeting *heart.MeetingData `json:"meeting"`
}

// ReviseMeeting appends an after-language version and makes it current.
func ReviseMeeting(ctx context.Context, st *db.Store, input ReviseMeetingInput) (*ReviseMeetingOutput, error) {
	id := heart.SanitizeID(input.MeetingID)
	if id == "" {
		return nil, errors.NewMissingField("meetingId")
	}
	lines := cleanStrings(input.Lines)
	if len(lines) == 0 {
		return nil, errors.NewMissingField("lines")
	}

	unlock := st.Lock(db.MeetingKey(id))
	defer unlock()

	m, err := loadMeeting(ctx, st, id)
	if err != nil {
		return nil, err
	}

	next := 1
	for _, v := range m.AfterLanguage.Versions {
		if v.V >= next {
			next = v.V + 1
		}
	}

	m.AfterLanguage.Versions = append(m.AfterLanguage.Versions, heart.AfterLanguageVersion{
		V:            next,
		CreatedAt:    heart.ISO(nowFunc()),
		Lines:        lines,
		SpecSnapshot: input.SpecSnapshot,
		Promotion:    &heart.Promotion{Promoted: false},
	})
	m.AfterLanguage.CurrentVersion = next

	if _, err := st.SaveMeeting(ctx, m); err != nil {
		return nil, internal(err)
	}
	return &ReviseMeetingOutput{Version: next, Meeting: m}, nil
}
