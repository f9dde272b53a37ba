package ops

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

// CreateMeetingInput contains parameters for the CreateMeeting operation.
type CreateMeetingInput struct {
	SourceText string // required
	MeetingID  string // optional; sanitized, generated when empty
	MessageID  string
	RoomID     string
	CreatedAt  int64
	ReceivedAt int64
}

// CreateMeetingOutput contains the written meeting and its document key.
type CreateMeetingOutput struct {
	MeetingID string             `json:"meetingId"`
	Key       string             `json:"meetingPath"`
	Meeting   *heart.MeetingData `json:"meeting"`
}

// CreateMeeting opens (or reopens) a meeting on a source text.
func CreateMeeting(ctx context.Context, st *db.Store, input CreateMeetingInput) (*CreateMeetingOutput, error) {
	text := strings.TrimSpace(input.SourceText)
	if text == "" {
		return nil, errors.NewMissingField("text")
	}

	now := nowFunc()
	id := heart.SanitizeID(input.MeetingID)
	if id == "" {
		id = heart.NewID(heart.PrefixMeeting, now)
	}

	unlock := st.Lock(db.MeetingKey(id))
	defer unlock()

	source := heart.MeetingSource{
		From:       heart.FromBreath,
		MessageID:  strings.TrimSpace(input.MessageID),
		RoomID:     strings.TrimSpace(input.RoomID),
		Text:       text,
		CreatedAt:  input.CreatedAt,
		ReceivedAt: input.ReceivedAt,
	}
	meeting, key, err := writeMeeting(ctx, st, id, source, now)
	if err != nil {
		return nil, err
	}

	return &CreateMeetingOutput{MeetingID: id, Key: key, Meeting: meeting}, nil
}

// writeMeeting builds a meeting from the seed template and writes it.
// The caller holds the meeting's lock.
func writeMeeting(ctx context.Context, st *db.Store, id string, source heart.MeetingSource, now time.Time) (*heart.MeetingData, string, error) {
	tmpl, err := st.LoadMeetingTemplate(ctx)
	if err != nil {
		return nil, "", internal(err)
	}

	m := heart.MeetingData{
		AfterLanguage: heart.AfterLanguage{CurrentVersion: 1, Versions: []heart.AfterLanguageVersion{}},
	}
	if tmpl != nil {
		m = *tmpl
	}

	m.MeetingID = id
	m.Status = heart.StatusOpen
	m.Source = source
	m.AutoCandidates = heart.GenerateCandidates(source.Text)
	if m.Topic == "" {
		m.Topic = heart.DetectTopic(source.Text)
	}
	if len(m.Emotions) == 0 {
		m.Emotions = []string{heart.DetectEmotion(source.Text)}
	}
	if m.AfterLanguage.Versions == nil {
		m.AfterLanguage.Versions = []heart.AfterLanguageVersion{}
	}

	m.CreatedAt = heart.Millis(now)
	existing, err := st.LoadMeeting(ctx, id)
	switch {
	case err == nil && existing.CreatedAt != 0:
		m.CreatedAt = existing.CreatedAt
	case err != nil && !db.IsNotExist(err) && !stderrors.Is(err, db.ErrCorruptDocument):
		return nil, "", internal(err)
	}

	key, err := st.SaveMeeting(ctx, &m)
	if err != nil {
		return nil, "", internal(err)
	}
	return &m, key, nil
}

// GetMeetingInput addresses one meeting.
type GetMeetingInput struct {
	MeetingID string
}

// GetMeetingOutput contains the stored meeting.
type GetMeetingOutput struct {
	Meeting *heart.MeetingData `json:"meeting"`
	Key     string             `json:"meetingPath"`
}

// GetMeeting returns one meeting. Missing and unreadable documents are both NOT_FOUND.
func GetMeeting(ctx context.Context, st *db.Store, input GetMeetingInput) (*GetMeetingOutput, error) {
	id := heart.SanitizeID(input.MeetingID)
	if id == "" {
		return nil, errors.NewMissingField("meetingId")
	}

	m, err := loadMeeting(ctx, st, id)
	if err != nil {
		return nil, err
	}
	return &GetMeetingOutput{Meeting: m, Key: db.MeetingKey(id)}, nil
}

func loadMeeting(ctx context.Context, st *db.Store, id string) (*heart.MeetingData, error) {
	m, err := st.LoadMeeting(ctx, id)
	if err != nil {
		if db.IsNotExist(err) || stderrors.Is(err, db.ErrCorruptDocument) {
			return nil, errors.NewNotFound("meeting", id)
		}
		return nil, internal(err)
	}
	return m, nil
}
