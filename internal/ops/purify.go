package ops

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harulua/coreheart/internal/config"
	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

// MoveToPurifyInput contains parameters for the MoveToPurify operation.
// MessageID, ReceivedAt and Text locate the breath to remove, in that order.
type MoveToPurifyInput struct {
	Text       string // required
	Reason     string // default: DefaultPurifyReason
	MessageID  string
	RoomID     string
	ReceivedAt int64
	Tags       []string
}

// MoveToPurifyOutput contains the result of the MoveToPurify operation.
type MoveToPurifyOutput struct {
	ID                string `json:"id"`
	RemovedFromBreath bool   `json:"removedFromBreath"`
}

// MoveToPurify quarantines a fragment. The matching breath, if any, is removed
// from the log before the purify item is written.
func MoveToPurify(ctx context.Context, st *db.Store, input MoveToPurifyInput) (*MoveToPurifyOutput, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, errors.NewMissingField("text")
	}
	reason := firstNonEmpty(input.Reason, DefaultPurifyReason)
	messageID := strings.TrimSpace(input.MessageID)

	unlock := st.Lock(db.KeyBreathLog, db.KeyPurifyBin)
	defer unlock()

	log, err := st.LoadBreathLog(ctx)
	if err != nil {
		return nil, internal(err)
	}

	idx := findBreathForPurify(log.Items, messageID, input.ReceivedAt, text)
	if idx >= 0 {
		log.Items = append(log.Items[:idx], log.Items[idx+1:]...)
		if err := st.SaveBreathLog(ctx, log); err != nil {
			return nil, internal(err)
		}
	}

	bin, err := st.LoadPurifyBin(ctx)
	if err != nil {
		return nil, internal(err)
	}

	now := nowFunc()
	item := heart.PurifyItem{
		ID:      heart.NewID(heart.PrefixPurify, now),
		Text:    text,
		Reason:  reason,
		MovedAt: heart.Millis(now),
		Source: heart.PurifySource{
			RoomID:     strings.TrimSpace(input.RoomID),
			MessageID:  messageID,
			ReceivedAt: input.ReceivedAt,
		},
		Tags: cleanStrings(input.Tags),
	}
	bin.Items = append([]heart.PurifyItem{item}, bin.Items...)

	if err := st.SavePurifyBin(ctx, bin); err != nil {
		return nil, internal(err)
	}

	slog.Info("moved to purify bin", "id", item.ID, "reason", reason, "removedFromBreath", idx >= 0)

	return &MoveToPurifyOutput{ID: item.ID, RemovedFromBreath: idx >= 0}, nil
}

// findBreathForPurify returns the index of the breath to quarantine: first by
// messageId, then by receivedAt, then by exact text. -1 when nothing matches.
func findBreathForPurify(items []heart.BreathItem, messageID string, receivedAt int64, text string) int {
	if messageID != "" {
		for i := range items {
			if items[i].Matches(messageID) {
				return i
			}
		}
	}
	if receivedAt != 0 {
		for i := range items {
			if items[i].ReceivedAt == receivedAt {
				return i
			}
		}
	}
	for i := range items {
		if strings.TrimSpace(items[i].Text) == text {
			return i
		}
	}
	return -1
}

// PurifyIDInput addresses one purify item.
type PurifyIDInput struct {
	ID string
}

// RestoreFromPurifyOutput contains the id of the re-created breath.
type RestoreFromPurifyOutput struct {
	ID       string `json:"id"`
	BreathID string `json:"breathId"`
}

// RestoreFromPurify removes an item from the purify bin and re-creates it as a
// fresh breath at the head of the log.
func RestoreFromPurify(ctx context.Context, st *db.Store, cfg *config.Config, input PurifyIDInput) (*RestoreFromPurifyOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewMissingField("id")
	}

	unlock := st.Lock(db.KeyBreathLog, db.KeyPurifyBin)
	defer unlock()

	item, err := takePurifyItem(ctx, st, id, false)
	if err != nil {
		return nil, err
	}

	log, err := st.LoadBreathLog(ctx)
	if err != nil {
		return nil, internal(err)
	}

	now := nowFunc()
	breath := heart.BreathItem{
		ID:           heart.NewID(heart.PrefixBreath, now),
		Text:         item.Text,
		MessageID:    firstNonEmpty(item.Source.MessageID, fmt.Sprintf("restored-%d", heart.Millis(now))),
		RoomID:       firstNonEmpty(item.Source.RoomID, RestoredRoomID),
		ReceivedAt:   heart.Millis(now),
		RestoredFrom: heart.FromPurifyBin,
	}
	log.Items = append([]heart.BreathItem{breath}, log.Items...)
	if len(log.Items) > cfg.BreathLogCap {
		log.Items = log.Items[:cfg.BreathLogCap]
	}

	if err := st.SaveBreathLog(ctx, log); err != nil {
		return nil, internal(err)
	}

	slog.Info("restored from purify bin", "id", id, "breathId", breath.ID)

	return &RestoreFromPurifyOutput{ID: id, BreathID: breath.ID}, nil
}

// SendToMeetingOutput contains the meeting created from a purify item.
type SendToMeetingOutput struct {
	ID        string `json:"id"`
	MeetingID string `json:"meetingId"`
	Key       string `json:"meetingPath"`
}

// SendToMeeting removes an item from the purify bin and opens a meeting on its text.
func SendToMeeting(ctx context.Context, st *db.Store, input PurifyIDInput) (*SendToMeetingOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewMissingField("id")
	}

	now := nowFunc()
	meetingID := heart.NewID(heart.PrefixMeeting, now)

	unlock := st.Lock(db.KeyPurifyBin, db.MeetingKey(meetingID))
	defer unlock()

	item, err := takePurifyItem(ctx, st, id, true)
	if err != nil {
		return nil, err
	}

	source := heart.MeetingSource{
		From:       heart.FromPurifyBin,
		MessageID:  item.Source.MessageID,
		RoomID:     item.Source.RoomID,
		Text:       strings.TrimSpace(item.Text),
		ReceivedAt: item.Source.ReceivedAt,
	}
	meeting, key, err := writeMeeting(ctx, st, meetingID, source, now)
	if err != nil {
		return nil, err
	}

	slog.Info("purify item sent to meeting", "id", id, "meetingId", meeting.MeetingID)

	return &SendToMeetingOutput{ID: id, MeetingID: meeting.MeetingID, Key: key}, nil
}

// DeletePurifiedOutput contains the id of the removed item.
type DeletePurifiedOutput struct {
	ID string `json:"id"`
}

// DeletePurified removes an item from the purify bin for good.
func DeletePurified(ctx context.Context, st *db.Store, input PurifyIDInput) (*DeletePurifiedOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewMissingField("id")
	}

	unlock := st.Lock(db.KeyPurifyBin)
	defer unlock()

	if _, err := takePurifyItem(ctx, st, id, false); err != nil {
		return nil, err
	}
	return &DeletePurifiedOutput{ID: id}, nil
}

// ListPurify returns the purify bin document as stored.
func ListPurify(ctx context.Context, st *db.Store) (*heart.PurifyBin, error) {
	bin, err := st.LoadPurifyBin(ctx)
	if err != nil {
		return nil, internal(err)
	}
	return bin, nil
}

// takePurifyItem removes the item with id from the bin and saves the bin.
// The caller holds the purify bin lock. With needText, an item whose text is
// blank is refused before anything is removed.
func takePurifyItem(ctx context.Context, st *db.Store, id string, needText bool) (*heart.PurifyItem, error) {
	bin, err := st.LoadPurifyBin(ctx)
	if err != nil {
		return nil, internal(err)
	}

	idx := -1
	for i := range bin.Items {
		if bin.Items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.NewNotFound("purify item", id)
	}

	item := bin.Items[idx]
	if needText && strings.TrimSpace(item.Text) == "" {
		return nil, errors.NewInvalidRequest("purify item has no text")
	}

	bin.Items = append(bin.Items[:idx], bin.Items[idx+1:]...)
	if err := st.SavePurifyBin(ctx, bin); err != nil {
		return nil, internal(err)
	}
	return &item, nil
}
