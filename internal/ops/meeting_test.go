package ops

import (
	"context"
	"strings"
	"testing"

	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

func TestCreateMeeting_AnxietyScenario(t *testing.T) {
	st, _ := testStore(t)
	fixClock(t, 1700000000000)
	ctx := context.Background()

	out, err := CreateMeeting(ctx, st, CreateMeetingInput{SourceText: "내일 발표가 너무 불안해", MessageID: "m-1"})
	if err != nil {
		t.Fatalf("CreateMeeting failed: %v", err)
	}
	if !strings.HasPrefix(out.MeetingID, "meet-") {
		t.Errorf("MeetingID = %q", out.MeetingID)
	}
	if out.Key != db.MeetingKey(out.MeetingID) {
		t.Errorf("Key = %q", out.Key)
	}

	m := out.Meeting
	if m.Status != heart.StatusOpen {
		t.Errorf("Status = %q", m.Status)
	}
	if len(m.AutoCandidates) != heart.CandidateCount {
		t.Fatalf("len(autoCandidates) = %d", len(m.AutoCandidates))
	}
	if !strings.Contains(m.AutoCandidates[0].Text, "두려움") {
		t.Errorf("candidate[0] = %q, want 두려움", m.AutoCandidates[0].Text)
	}
	if m.Source.From != heart.FromBreath || m.Source.MessageID != "m-1" {
		t.Errorf("source = %+v", m.Source)
	}
	if m.Topic != heart.DefaultTopic || len(m.Emotions) != 1 || m.Emotions[0] != "두려움" {
		t.Errorf("topic/emotions = %q/%v", m.Topic, m.Emotions)
	}
	if m.AfterLanguage.CurrentVersion != 1 || len(m.AfterLanguage.Versions) != 0 {
		t.Errorf("afterLanguage = %+v", m.AfterLanguage)
	}
	if m.CreatedAt != 1700000000000 {
		t.Errorf("CreatedAt = %d", m.CreatedAt)
	}
}

func TestCreateMeeting_ReuseKeepsCreatedAt(t *testing.T) {
	st, _ := testStore(t)
	ctx := context.Background()

	fixClock(t, 1000)
	if _, err := CreateMeeting(ctx, st, CreateMeetingInput{SourceText: "첫 번째", MeetingID: "meet-x"}); err != nil {
		t.Fatalf("CreateMeeting failed: %v", err)
	}

	fixClock(t, 5000)
	out, err := CreateMeeting(ctx, st, CreateMeetingInput{SourceText: "두 번째", MeetingID: "meet-x"})
	if err != nil {
		t.Fatalf("second CreateMeeting failed: %v", err)
	}
	if out.Meeting.CreatedAt != 1000 {
		t.Errorf("CreatedAt = %d, want 1000", out.Meeting.CreatedAt)
	}
	if out.Meeting.Source.Text != "두 번째" {
		t.Errorf("Source.Text = %q", out.Meeting.Source.Text)
	}
}

func TestCreateMeeting_SanitizesID(t *testing.T) {
	st, _ := testStore(t)
	ctx := context.Background()

	out, err := CreateMeeting(ctx, st, CreateMeetingInput{SourceText: "말", MeetingID: "../../evil id"})
	if err != nil {
		t.Fatalf("CreateMeeting failed: %v", err)
	}
	if out.MeetingID != "evilid" {
		t.Errorf("MeetingID = %q, want evilid", out.MeetingID)
	}

	// an id that sanitizes to nothing falls back to a generated one
	out, err = CreateMeeting(ctx, st, CreateMeetingInput{SourceText: "말", MeetingID: "회의"})
	if err != nil {
		t.Fatalf("CreateMeeting failed: %v", err)
	}
	if !strings.HasPrefix(out.MeetingID, "meet-") {
		t.Errorf("MeetingID = %q", out.MeetingID)
	}
}

func TestCreateMeeting_UsesTemplate(t *testing.T) {
	st, _ := testStore(t)
	ctx := context.Background()

	tmpl := `{"meetingId":"ignored","status":"done","topic":"약속","emotions":["기대감"],"autoCandidates":[{"text":"old"}],"afterLanguage":{"currentVersion":0,"versions":[]}}`
	if err := st.Backend().Write(ctx, db.KeyMeetingTemplate, []byte(tmpl)); err != nil {
		t.Fatal(err)
	}

	out, err := CreateMeeting(ctx, st, CreateMeetingInput{SourceText: "눈물이 났다", MeetingID: "meet-t"})
	if err != nil {
		t.Fatalf("CreateMeeting failed: %v", err)
	}
	m := out.Meeting
	if m.MeetingID != "meet-t" || m.Status != heart.StatusOpen {
		t.Errorf("id/status not overwritten: %q/%q", m.MeetingID, m.Status)
	}
	if m.Topic != "약속" || m.Emotions[0] != "기대감" {
		t.Errorf("template topic/emotions lost: %q/%v", m.Topic, m.Emotions)
	}
	if !strings.Contains(m.AutoCandidates[0].Text, "슬픔") {
		t.Errorf("candidates not regenerated: %q", m.AutoCandidates[0].Text)
	}
}

func TestCreateMeeting_EmptyText(t *testing.T) {
	st, _ := testStore(t)
	_, err := CreateMeeting(context.Background(), st, CreateMeetingInput{SourceText: "  "})
	assertCode(t, err, errors.ErrInvalidRequest)
}

func TestGetMeeting(t *testing.T) {
	st, _ := testStore(t)
	ctx := context.Background()

	created, _ := CreateMeeting(ctx, st, CreateMeetingInput{SourceText: "말", MeetingID: "meet-1"})
	got, err := GetMeeting(ctx, st, GetMeetingInput{MeetingID: "meet-1"})
	if err != nil {
		t.Fatalf("GetMeeting failed: %v", err)
	}
	if got.Meeting.MeetingID != created.MeetingID {
		t.Errorf("MeetingID = %q", got.Meeting.MeetingID)
	}

	_, err = GetMeeting(ctx, st, GetMeetingInput{MeetingID: "meet-missing"})
	assertCode(t, err, errors.ErrNotFound)

	_, err = GetMeeting(ctx, st, GetMeetingInput{MeetingID: "!!"})
	assertCode(t, err, errors.ErrInvalidRequest)

	if err := st.Backend().Write(ctx, db.MeetingKey("meet-bad"), []byte("{broken")); err != nil {
		t.Fatal(err)
	}
	_, err = GetMeeting(ctx, st, GetMeetingInput{MeetingID: "meet-bad"})
	assertCode(t, err, errors.ErrNotFound)
}

func TestReviseMeeting(t *testing.T) {
	st, _ := testStore(t)
	ctx := context.Background()
	CreateMeeting(ctx, st, CreateMeetingInput{SourceText: "말", MeetingID: "meet-1"})

	out, err := ReviseMeeting(ctx, st, ReviseMeetingInput{MeetingID: "meet-1", Lines: []string{" 첫 줄 ", "", "둘째 줄"}})
	if err != nil {
		t.Fatalf("ReviseMeeting failed: %v", err)
	}
	if out.Version != 1 {
		t.Errorf("Version = %d, want 1", out.Version)
	}
	v := out.Meeting.AfterLanguage.Current()
	if v == nil || len(v.Lines) != 2 || v.Lines[0] != "첫 줄" {
		t.Fatalf("current version = %+v", v)
	}
	if v.Promotion == nil || v.Promotion.Promoted || v.Promotion.CentralDefinitionID != nil {
		t.Errorf("promotion = %+v, want unpromoted", v.Promotion)
	}

	out, err = ReviseMeeting(ctx, st, ReviseMeetingInput{MeetingID: "meet-1", Lines: []string{"셋째"}, SpecSnapshot: []byte(`{"k":1}`)})
	if err != nil {
		t.Fatalf("second ReviseMeeting failed: %v", err)
	}
	if out.Version != 2 || out.Meeting.AfterLanguage.CurrentVersion != 2 {
		t.Errorf("Version = %d, current = %d", out.Version, out.Meeting.AfterLanguage.CurrentVersion)
	}

	got, _ := GetMeeting(ctx, st, GetMeetingInput{MeetingID: "meet-1"})
	if len(got.Meeting.AfterLanguage.Versions) != 2 {
		t.Errorf("stored versions = %d, want 2", len(got.Meeting.AfterLanguage.Versions))
	}

	_, err = ReviseMeeting(ctx, st, ReviseMeetingInput{MeetingID: "meet-1", Lines: []string{" "}})
	assertCode(t, err, errors.ErrInvalidRequest)
	_, err = ReviseMeeting(ctx, st, ReviseMeetingInput{MeetingID: "meet-none", Lines: []string{"x"}})
	assertCode(t, err, errors.ErrNotFound)
}
